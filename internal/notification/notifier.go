package notification

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stanstork/beacon/internal/models"
)

// Message is what a channel sender hands to its gateway.
type Message struct {
	To             string
	Title          string
	Body           string
	Priority       models.Priority
	Category       string
	NotificationID string
}

// ChannelSender delivers a message over one external channel.
type ChannelSender interface {
	Channel() models.Channel
	Send(ctx context.Context, msg Message) error
}

// PermanentError marks a send failure that retrying cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err so delivery stops retrying it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

// Delivery is one notification going to one recipient over one channel.
type Delivery struct {
	Channel      models.Channel      `json:"channel"`
	Recipient    models.Recipient    `json:"recipient"`
	Notification models.Notification `json:"notification"`
}

func (d Delivery) Message() Message {
	return Message{
		To:             strings.TrimSpace(d.Recipient.Address(d.Channel)),
		Title:          d.Notification.Title,
		Body:           d.Notification.Message,
		Priority:       d.Notification.Priority,
		Category:       d.Notification.Category,
		NotificationID: d.Notification.ID,
	}
}

// Registry holds the sender for each external channel.
type Registry struct {
	senders map[models.Channel]ChannelSender
}

func NewRegistry(senders ...ChannelSender) *Registry {
	r := &Registry{senders: make(map[models.Channel]ChannelSender, len(senders))}
	for _, s := range senders {
		if s != nil {
			r.senders[s.Channel()] = s
		}
	}
	return r
}

func (r *Registry) Sender(c models.Channel) (ChannelSender, bool) {
	s, ok := r.senders[c]
	return s, ok
}

// Channels lists the channels that have a sender, sorted by name.
func (r *Registry) Channels() []models.Channel {
	out := make([]models.Channel, 0, len(r.senders))
	for c := range r.senders {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Send makes exactly one attempt. A missing sender or address is permanent.
func (r *Registry) Send(ctx context.Context, d Delivery) error {
	sender, ok := r.senders[d.Channel]
	if !ok {
		return Permanent(fmt.Errorf("no sender configured for channel %s", d.Channel))
	}
	msg := d.Message()
	if msg.To == "" {
		return Permanent(fmt.Errorf("recipient %s has no %s address", d.Recipient.UserID, d.Channel))
	}
	return sender.Send(ctx, msg)
}

func logDeliveryError(logger zerolog.Logger, err error, d Delivery, attempt int) {
	if err == nil {
		return
	}
	logger.Warn().
		Err(err).
		Str("notification_id", d.Notification.ID).
		Str("user_id", d.Recipient.UserID).
		Str("channel", string(d.Channel)).
		Int("attempt", attempt).
		Bool("permanent", IsPermanent(err)).
		Msg("failed to deliver notification")
}
