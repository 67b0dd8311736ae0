package temporal

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/stanstork/beacon/internal/models"
	"github.com/stanstork/beacon/internal/notification"
	"go.temporal.io/sdk/client"
)

// WorkflowDeliverer hands each delivery to a Temporal workflow so retries
// survive a restart of this process.
type WorkflowDeliverer struct {
	client    client.Client
	taskQueue string
	policy    notification.RetryPolicy
	logger    zerolog.Logger
}

func NewWorkflowDeliverer(c client.Client, taskQueue string, policy notification.RetryPolicy, logger zerolog.Logger) *WorkflowDeliverer {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &WorkflowDeliverer{
		client:    c,
		taskQueue: taskQueue,
		policy:    policy,
		logger:    logger.With().Str("component", "workflow-deliverer").Logger(),
	}
}

func (d *WorkflowDeliverer) Deliver(ctx context.Context, delivery notification.Delivery) models.DeliveryAttempt {
	opts := client.StartWorkflowOptions{
		ID:        WorkflowID(delivery),
		TaskQueue: d.taskQueue,
	}
	run, err := d.client.ExecuteWorkflow(ctx, opts, DeliveryWorkflowName, DeliveryParams{Delivery: delivery, Policy: d.policy})
	if err != nil {
		d.logger.Error().Err(err).Str("workflow_id", opts.ID).Msg("failed to start delivery workflow")
		return models.DeliveryAttempt{Channel: delivery.Channel, Status: models.DeliveryFailed, LastError: err.Error()}
	}

	var attempt models.DeliveryAttempt
	if err := run.Get(ctx, &attempt); err != nil {
		d.logger.Error().Err(err).Str("workflow_id", opts.ID).Str("run_id", run.GetRunID()).Msg("delivery workflow failed")
		return models.DeliveryAttempt{Channel: delivery.Channel, Status: models.DeliveryFailed, LastError: err.Error()}
	}
	return attempt
}
