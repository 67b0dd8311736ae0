package models

import "strings"

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelSlack Channel = "slack"
	ChannelPush  Channel = "push"
	ChannelInApp Channel = "in_app"
)

var validChannels = map[Channel]bool{
	ChannelEmail: true,
	ChannelSMS:   true,
	ChannelSlack: true,
	ChannelPush:  true,
	ChannelInApp: true,
}

func (c Channel) IsValid() bool {
	return validChannels[c]
}

// IsInterruptive reports whether the channel actively interrupts the recipient.
// Interruptive channels are the ones quiet hours suppress.
func (c Channel) IsInterruptive() bool {
	return c == ChannelSMS || c == ChannelPush
}

// IsExternal reports whether delivery goes through an outside gateway.
func (c Channel) IsExternal() bool {
	return c != ChannelInApp
}

func ParseChannel(raw string) (Channel, bool) {
	c := Channel(strings.ToLower(strings.TrimSpace(raw)))
	if c == "inapp" || c == "in-app" {
		c = ChannelInApp
	}
	return c, c.IsValid()
}

// NormalizeChannels drops unknown and duplicate channels, keeping first-seen order.
func NormalizeChannels(channels []Channel) []Channel {
	seen := make(map[Channel]bool, len(channels))
	out := make([]Channel, 0, len(channels))
	for _, c := range channels {
		parsed, ok := ParseChannel(string(c))
		if !ok || seen[parsed] {
			continue
		}
		seen[parsed] = true
		out = append(out, parsed)
	}
	return out
}

// ContainsChannel reports whether c is in channels.
func ContainsChannel(channels []Channel, c Channel) bool {
	for _, existing := range channels {
		if existing == c {
			return true
		}
	}
	return false
}
