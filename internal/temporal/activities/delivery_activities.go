package activities

import (
	"context"

	"github.com/stanstork/beacon/internal/notification"
	"github.com/stanstork/beacon/internal/temporal"
	"go.temporal.io/sdk/activity"
	sdktemporal "go.temporal.io/sdk/temporal"
)

type Activities struct {
	Registry *notification.Registry
}

// SendActivity makes one send attempt. Permanent failures come back as
// non-retryable application errors carrying the attempt number as detail.
func (a *Activities) SendActivity(ctx context.Context, d notification.Delivery) (temporal.SendResult, error) {
	logger := activity.GetLogger(ctx)
	info := activity.GetInfo(ctx)

	err := a.Registry.Send(ctx, d)
	if err == nil {
		logger.Info("Delivery sent", "notificationID", d.Notification.ID, "channel", d.Channel, "attempt", info.Attempt)
		return temporal.SendResult{Attempt: info.Attempt}, nil
	}

	logger.Warn("Delivery attempt failed", "notificationID", d.Notification.ID, "channel", d.Channel, "attempt", info.Attempt, "error", err)
	if notification.IsPermanent(err) {
		return temporal.SendResult{}, sdktemporal.NewNonRetryableApplicationError(err.Error(), temporal.PermanentErrorType, err, info.Attempt)
	}
	return temporal.SendResult{}, err
}
