package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"github.com/stanstork/beacon/internal/models"
)

type preferenceRepository struct {
	db *sql.DB
}

func NewPreferenceRepository(db *sql.DB) PreferenceRepository {
	return &preferenceRepository{db: db}
}

func (r *preferenceRepository) Get(ctx context.Context, userID string) (models.NotificationPreference, error) {
	const query = `
		SELECT user_id, event_preferences, quiet_hours, updated_at
		FROM alerting.notification_preferences
		WHERE user_id = $1`
	pref, err := scanPreference(r.db.QueryRowContext(ctx, query, strings.TrimSpace(userID)))
	if err != nil {
		return models.NotificationPreference{}, dbError("get preferences", err)
	}
	return pref, nil
}

// Upsert is last-write-wins for the whole document.
func (r *preferenceRepository) Upsert(ctx context.Context, pref models.NotificationPreference) (models.NotificationPreference, error) {
	const query = `
		INSERT INTO alerting.notification_preferences (user_id, event_preferences, quiet_hours, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET event_preferences = EXCLUDED.event_preferences,
			quiet_hours = EXCLUDED.quiet_hours,
			updated_at = NOW()
		RETURNING user_id, event_preferences, quiet_hours, updated_at`

	events := pref.EventPreferences
	if events == nil {
		events = map[string]models.EventPreference{}
	}
	eventsRaw, err := json.Marshal(events)
	if err != nil {
		return models.NotificationPreference{}, errors.Wrap(err, "marshal event preferences")
	}
	var quietRaw interface{}
	if pref.QuietHours != nil {
		raw, err := json.Marshal(pref.QuietHours)
		if err != nil {
			return models.NotificationPreference{}, errors.Wrap(err, "marshal quiet hours")
		}
		quietRaw = raw
	}

	row := r.db.QueryRowContext(ctx, query, strings.TrimSpace(pref.UserID), eventsRaw, quietRaw)
	saved, err := scanPreference(row)
	if err != nil {
		return models.NotificationPreference{}, dbError("upsert preferences", err)
	}
	return saved, nil
}

func scanPreference(scanner rowScanner) (models.NotificationPreference, error) {
	var (
		pref      models.NotificationPreference
		eventsRaw []byte
		quietRaw  []byte
	)
	if err := scanner.Scan(&pref.UserID, &eventsRaw, &quietRaw, &pref.UpdatedAt); err != nil {
		return models.NotificationPreference{}, err
	}
	pref.EventPreferences = map[string]models.EventPreference{}
	if len(eventsRaw) > 0 {
		if err := json.Unmarshal(eventsRaw, &pref.EventPreferences); err != nil {
			return models.NotificationPreference{}, errors.Wrap(err, "decode event preferences")
		}
	}
	if len(quietRaw) > 0 {
		var quiet models.QuietHours
		if err := json.Unmarshal(quietRaw, &quiet); err != nil {
			return models.NotificationPreference{}, errors.Wrap(err, "decode quiet hours")
		}
		pref.QuietHours = &quiet
	}
	return pref, nil
}
