package models

// NotificationStats aggregates a user's notifications at the time of the call.
type NotificationStats struct {
	Total      int              `json:"total"`
	Unread     int              `json:"unread"`
	ByPriority map[Priority]int `json:"by_priority"`
}

// NewNotificationStats returns zeroed stats with every priority bucket present.
func NewNotificationStats() NotificationStats {
	byPriority := make(map[Priority]int, len(Priorities))
	for _, p := range Priorities {
		byPriority[p] = 0
	}
	return NotificationStats{ByPriority: byPriority}
}
