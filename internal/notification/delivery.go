package notification

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/stanstork/beacon/internal/config"
	"github.com/stanstork/beacon/internal/models"
)

// Deliverer pushes one delivery through to its final state.
type Deliverer interface {
	Deliver(ctx context.Context, d Delivery) models.DeliveryAttempt
}

type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	BackoffFactor  float64
	SendTimeout    time.Duration
}

func RetryPolicyFromConfig(cfg config.DeliveryConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    cfg.MaxAttempts,
		InitialBackoff: cfg.InitialBackoff,
		BackoffFactor:  cfg.BackoffFactor,
		SendTimeout:    cfg.SendTimeout,
	}
}

// Backoff returns the wait after the given failed attempt (1-based):
// InitialBackoff * BackoffFactor^(attempt-1).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(float64(p.InitialBackoff) * math.Pow(p.BackoffFactor, float64(attempt-1)))
}

// RetryingDeliverer sends in-process, retrying transient failures with exponential backoff.
type RetryingDeliverer struct {
	registry *Registry
	policy   RetryPolicy
	logger   zerolog.Logger
}

func NewRetryingDeliverer(registry *Registry, policy RetryPolicy, logger zerolog.Logger) *RetryingDeliverer {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &RetryingDeliverer{
		registry: registry,
		policy:   policy,
		logger:   logger.With().Str("component", "deliverer").Logger(),
	}
}

func (d *RetryingDeliverer) Deliver(ctx context.Context, delivery Delivery) models.DeliveryAttempt {
	attempt := models.DeliveryAttempt{Channel: delivery.Channel, Status: models.DeliveryPending}

	for n := 1; n <= d.policy.MaxAttempts; n++ {
		attempt.AttemptCount = n
		err := d.sendOnce(ctx, delivery)
		if err == nil {
			attempt.Status = models.DeliverySent
			attempt.LastError = ""
			if n > 1 {
				d.logger.Info().
					Str("notification_id", delivery.Notification.ID).
					Str("channel", string(delivery.Channel)).
					Int("attempt", n).
					Msg("delivery succeeded after retry")
			}
			return attempt
		}

		attempt.LastError = err.Error()
		logDeliveryError(d.logger, err, delivery, n)
		if IsPermanent(err) || n == d.policy.MaxAttempts {
			break
		}

		if err := wait(ctx, d.policy.Backoff(n)); err != nil {
			attempt.LastError = err.Error()
			break
		}
	}

	attempt.Status = models.DeliveryFailed
	return attempt
}

func (d *RetryingDeliverer) sendOnce(ctx context.Context, delivery Delivery) error {
	if d.policy.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.policy.SendTimeout)
		defer cancel()
	}
	return d.registry.Send(ctx, delivery)
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
