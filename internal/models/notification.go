package models

import "time"

type Notification struct {
	ID        string                 `json:"id" db:"id"`
	UserID    string                 `json:"user_id" db:"user_id"`
	Title     string                 `json:"title" db:"title"`
	Message   string                 `json:"message" db:"message"`
	Category  string                 `json:"category" db:"category"`
	Priority  Priority               `json:"priority" db:"priority"`
	Read      bool                   `json:"read" db:"read"`
	Metadata  map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
	CreatedAt time.Time              `json:"created_at" db:"created_at"`
}

// NotificationFilter narrows a notification query for one user.
type NotificationFilter struct {
	Category string
	Read     *bool
	Search   string
	Limit    int
	Offset   int
}

const (
	DefaultNotificationLimit = 25
	MaxNotificationLimit     = 100
)

// Normalize clamps paging values into their allowed ranges.
func (f NotificationFilter) Normalize() NotificationFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultNotificationLimit
	}
	if f.Limit > MaxNotificationLimit {
		f.Limit = MaxNotificationLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
