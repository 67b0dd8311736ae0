package models

type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
)

// DeliveryAttempt tracks one channel of one notification.
type DeliveryAttempt struct {
	Channel      Channel        `json:"channel"`
	Status       DeliveryStatus `json:"status"`
	AttemptCount int            `json:"attempt_count"`
	LastError    string         `json:"last_error,omitempty"`
}
