package notification

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/stanstork/beacon/internal/models"
)

// Dispatcher fans a stored notification out to the recipient's external channels.
type Dispatcher struct {
	deliverer Deliverer
	logger    zerolog.Logger
}

func NewDispatcher(deliverer Deliverer, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		deliverer: deliverer,
		logger:    logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Dispatch delivers notif over every channel and waits for all of them. The
// in-app channel is the stored record itself, so it is sent as soon as it is asked for.
// Attempts come back in channel order.
func (d *Dispatcher) Dispatch(ctx context.Context, notif models.Notification, recipient models.Recipient, channels []models.Channel) []models.DeliveryAttempt {
	attempts := make([]models.DeliveryAttempt, len(channels))

	var wg sync.WaitGroup
	for i, channel := range channels {
		if !channel.IsExternal() {
			attempts[i] = models.DeliveryAttempt{Channel: channel, Status: models.DeliverySent, AttemptCount: 1}
			continue
		}
		wg.Add(1)
		go func(i int, channel models.Channel) {
			defer wg.Done()
			attempts[i] = d.deliverer.Deliver(ctx, Delivery{
				Channel:      channel,
				Recipient:    recipient,
				Notification: notif,
			})
		}(i, channel)
	}
	wg.Wait()

	for _, a := range attempts {
		event := d.logger.Debug()
		if a.Status == models.DeliveryFailed {
			event = d.logger.Error()
		}
		event.
			Str("notification_id", notif.ID).
			Str("user_id", recipient.UserID).
			Str("channel", string(a.Channel)).
			Str("status", string(a.Status)).
			Int("attempts", a.AttemptCount).
			Str("last_error", a.LastError).
			Msg("delivery finished")
	}
	return attempts
}
