package models

import "strings"

// Recipient is a concrete person (or literal address) alerts are delivered to.
type Recipient struct {
	UserID       string   `json:"user_id" db:"user_id"`
	Name         string   `json:"name" db:"name"`
	Email        string   `json:"email,omitempty" db:"email"`
	Phone        string   `json:"phone,omitempty" db:"phone"`
	SlackWebhook string   `json:"slack_webhook,omitempty" db:"slack_webhook"`
	PushTopic    string   `json:"push_topic,omitempty" db:"push_topic"`
	Roles        []string `json:"roles,omitempty" db:"roles"`
}

// Address returns the delivery address for a channel, or "" if the recipient has none.
func (r Recipient) Address(c Channel) string {
	switch c {
	case ChannelEmail:
		return r.Email
	case ChannelSMS:
		return r.Phone
	case ChannelSlack:
		return r.SlackWebhook
	case ChannelPush:
		return r.PushTopic
	case ChannelInApp:
		return r.UserID
	}
	return ""
}

// RecipientFromAddress builds a recipient for a literal address. The address doubles as
// the user id so the in-app record has an owner.
func RecipientFromAddress(address string) Recipient {
	address = strings.TrimSpace(address)
	r := Recipient{UserID: address, Name: address}
	switch {
	case strings.HasPrefix(address, "http://"), strings.HasPrefix(address, "https://"):
		r.SlackWebhook = address
	case strings.HasPrefix(address, "+"):
		r.Phone = address
	case strings.Contains(address, "@"):
		r.Email = address
	}
	return r
}
