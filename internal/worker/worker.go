package worker

import (
	"github.com/rs/zerolog"
	"github.com/stanstork/beacon/internal/notification"
	"github.com/stanstork/beacon/internal/temporal"
	"github.com/stanstork/beacon/internal/temporal/activities"
	"github.com/stanstork/beacon/internal/temporal/workflows"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
)

// New builds a Temporal worker that executes delivery workflows against the
// given channel senders. The caller starts and stops it.
func New(c client.Client, taskQueue string, registry *notification.Registry, logger zerolog.Logger) worker.Worker {
	w := worker.New(c, taskQueue, worker.Options{})
	w.RegisterWorkflowWithOptions(workflows.DeliveryWorkflow, workflow.RegisterOptions{Name: temporal.DeliveryWorkflowName})
	w.RegisterActivity(&activities.Activities{Registry: registry})

	logger.Info().
		Str("component", "temporal-worker").
		Str("task_queue", taskQueue).
		Strs("channels", channelNames(registry)).
		Msg("delivery worker registered")
	return w
}

func channelNames(registry *notification.Registry) []string {
	channels := registry.Channels()
	out := make([]string, 0, len(channels))
	for _, c := range channels {
		out = append(out, string(c))
	}
	return out
}
