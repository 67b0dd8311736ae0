package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock time expressed as minutes after midnight.
type TimeOfDay int

const minutesPerDay = 24 * 60

// ParseTimeOfDay parses "HH:MM" in 24-hour notation.
func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time of day %q: want HH:MM", raw)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", raw)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", raw)
	}
	return TimeOfDay(h*60 + m), nil
}

// TimeOfDayOf returns the wall-clock time of t in its own location.
func TimeOfDayOf(t time.Time) TimeOfDay {
	return TimeOfDay(t.Hour()*60 + t.Minute())
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// QuietHours is a recipient-local window during which interruptive channels are held back.
type QuietHours struct {
	Enabled  bool      `json:"enabled"`
	Start    TimeOfDay `json:"start"`
	End      TimeOfDay `json:"end"`
	Timezone string    `json:"timezone,omitempty"`
}

// Contains reports whether the wall-clock time tod falls in [Start, End).
// Start after End wraps across midnight; Start equal to End is an empty window.
func (q QuietHours) Contains(tod TimeOfDay) bool {
	tod = TimeOfDay(((int(tod) % minutesPerDay) + minutesPerDay) % minutesPerDay)
	switch {
	case q.Start == q.End:
		return false
	case q.Start < q.End:
		return tod >= q.Start && tod < q.End
	default:
		return tod >= q.Start || tod < q.End
	}
}

// EventPreference narrows delivery for one event type.
type EventPreference struct {
	Enabled  bool      `json:"enabled"`
	Channels []Channel `json:"channels"`
}

type NotificationPreference struct {
	UserID           string                     `json:"user_id" db:"user_id"`
	EventPreferences map[string]EventPreference `json:"event_preferences" db:"event_preferences"`
	QuietHours       *QuietHours                `json:"quiet_hours,omitempty" db:"quiet_hours"`
	UpdatedAt        time.Time                  `json:"updated_at" db:"updated_at"`
}

// DefaultPreference is what a user without stored preferences gets: every channel, no quiet hours.
func DefaultPreference(userID string) NotificationPreference {
	return NotificationPreference{
		UserID:           userID,
		EventPreferences: map[string]EventPreference{},
	}
}

// ForEvent returns the entry for eventType, if any.
func (p NotificationPreference) ForEvent(eventType string) (EventPreference, bool) {
	if p.EventPreferences == nil {
		return EventPreference{}, false
	}
	pref, ok := p.EventPreferences[eventType]
	return pref, ok
}

// Validate checks a preference document before it is written.
func (p NotificationPreference) Validate() error {
	for eventType, pref := range p.EventPreferences {
		if strings.TrimSpace(eventType) == "" {
			return fmt.Errorf("event type key must not be empty")
		}
		for _, c := range pref.Channels {
			if !c.IsValid() {
				return fmt.Errorf("event %s: invalid channel %q", eventType, c)
			}
		}
	}
	if p.QuietHours != nil && p.QuietHours.Timezone != "" {
		if _, err := time.LoadLocation(p.QuietHours.Timezone); err != nil {
			return fmt.Errorf("invalid quiet hours timezone %q", p.QuietHours.Timezone)
		}
	}
	return nil
}
