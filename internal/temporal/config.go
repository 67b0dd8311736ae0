package temporal

import "github.com/stanstork/beacon/internal/notification"

// DeliveryWorkflowName is the registered name of the per-channel delivery workflow.
const DeliveryWorkflowName = "DeliveryWorkflow"

// DeliveryWorkflowIDPrefix prefixes workflow IDs; the rest is notification ID and channel.
const DeliveryWorkflowIDPrefix = "beacon-delivery-"

// PermanentErrorType marks activity failures the server must not retry.
const PermanentErrorType = "PermanentDeliveryError"

// DeliveryParams is the input of the delivery workflow.
type DeliveryParams struct {
	Delivery notification.Delivery
	Policy   notification.RetryPolicy
}

// SendResult is what a successful send activity reports back.
type SendResult struct {
	Attempt int32
}

func WorkflowID(d notification.Delivery) string {
	return DeliveryWorkflowIDPrefix + d.Notification.ID + "-" + string(d.Channel)
}
