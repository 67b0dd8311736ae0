package alerting

import (
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stanstork/beacon/internal/models"
)

// Resolution is the channel set one recipient gets for one rule firing.
type Resolution struct {
	Channels []models.Channel
	// Suppressed lists channels held back by quiet hours.
	Suppressed []models.Channel
	// Dropped means the recipient opted out of this event type; no record is created.
	Dropped bool
}

// Resolver applies recipient preferences and quiet hours to a rule's channels.
type Resolver struct {
	defaultLocation *time.Location
	logger          zerolog.Logger
}

func NewResolver(defaultTimezone string, logger zerolog.Logger) (*Resolver, error) {
	if defaultTimezone == "" {
		defaultTimezone = "UTC"
	}
	loc, err := time.LoadLocation(defaultTimezone)
	if err != nil {
		return nil, errors.Wrapf(err, "load default timezone %s", defaultTimezone)
	}
	return &Resolver{
		defaultLocation: loc,
		logger:          logger.With().Str("component", "preference_resolver").Logger(),
	}, nil
}

func (r *Resolver) Resolve(rule models.AlertRule, pref models.NotificationPreference, occurredAt time.Time) Resolution {
	channels := models.NormalizeChannels(rule.Actions.Channels)

	if entry, ok := pref.ForEvent(rule.EventType); ok {
		if !entry.Enabled {
			return Resolution{Dropped: true}
		}
		channels = intersect(channels, entry.Channels)
	}

	if rule.Actions.Priority == models.PriorityCritical || !r.inQuietHours(pref, occurredAt) {
		return Resolution{Channels: channels}
	}

	kept := make([]models.Channel, 0, len(channels))
	var suppressed []models.Channel
	for _, c := range channels {
		if c.IsInterruptive() {
			suppressed = append(suppressed, c)
			continue
		}
		kept = append(kept, c)
	}
	return Resolution{Channels: kept, Suppressed: suppressed}
}

func (r *Resolver) inQuietHours(pref models.NotificationPreference, at time.Time) bool {
	q := pref.QuietHours
	if q == nil || !q.Enabled {
		return false
	}
	return q.Contains(models.TimeOfDayOf(at.In(r.location(pref.UserID, q.Timezone))))
}

func (r *Resolver) location(userID, name string) *time.Location {
	if name == "" {
		return r.defaultLocation
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		r.logger.Warn().Err(err).Str("user_id", userID).Str("timezone", name).Msg("unknown quiet hours timezone, using default")
		return r.defaultLocation
	}
	return loc
}

// intersect keeps the channels of base that also appear in allowed, in base order.
func intersect(base, allowed []models.Channel) []models.Channel {
	allowed = models.NormalizeChannels(allowed)
	out := make([]models.Channel, 0, len(base))
	for _, c := range base {
		if models.ContainsChannel(allowed, c) {
			out = append(out, c)
		}
	}
	return out
}
