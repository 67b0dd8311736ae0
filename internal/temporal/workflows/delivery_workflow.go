package workflows

import (
	"errors"

	"github.com/stanstork/beacon/internal/models"
	"github.com/stanstork/beacon/internal/temporal"
	"github.com/stanstork/beacon/internal/temporal/activities"
	sdktemporal "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// DeliveryWorkflow drives one channel of one notification to a terminal state.
// A failed delivery is a result, not a workflow error.
func DeliveryWorkflow(ctx workflow.Context, params temporal.DeliveryParams) (models.DeliveryAttempt, error) {
	policy := params.Policy
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: policy.SendTimeout,
		RetryPolicy: &sdktemporal.RetryPolicy{
			InitialInterval:        policy.InitialBackoff,
			BackoffCoefficient:     policy.BackoffFactor,
			MaximumAttempts:        int32(policy.MaxAttempts),
			NonRetryableErrorTypes: []string{temporal.PermanentErrorType},
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	logger := workflow.GetLogger(ctx)
	d := params.Delivery
	logger.Info("Starting delivery workflow", "NotificationID", d.Notification.ID, "Channel", d.Channel)

	var a *activities.Activities
	var res temporal.SendResult
	err := workflow.ExecuteActivity(ctx, a.SendActivity, d).Get(ctx, &res)
	if err == nil {
		logger.Info("Delivery workflow completed.", "attempts", res.Attempt)
		return models.DeliveryAttempt{Channel: d.Channel, Status: models.DeliverySent, AttemptCount: int(res.Attempt)}, nil
	}

	attempt := models.DeliveryAttempt{
		Channel:      d.Channel,
		Status:       models.DeliveryFailed,
		AttemptCount: policy.MaxAttempts,
		LastError:    err.Error(),
	}
	var appErr *sdktemporal.ApplicationError
	if errors.As(err, &appErr) {
		attempt.LastError = appErr.Error()
		if appErr.Type() == temporal.PermanentErrorType {
			var n int32
			if appErr.Details(&n) == nil && n > 0 {
				attempt.AttemptCount = int(n)
			}
		}
	}
	logger.Error("Delivery failed.", "attempts", attempt.AttemptCount, "error", err)
	return attempt, nil
}
