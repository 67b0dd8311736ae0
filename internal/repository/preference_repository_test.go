package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pkg/errors"
	"github.com/stanstork/beacon/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreferenceRepository_Get(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPreferenceRepository(db)
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{"user_id", "event_preferences", "quiet_hours", "updated_at"}).
		AddRow("user-1",
			[]byte(`{"payment_failed":{"enabled":true,"channels":["email"]}}`),
			[]byte(`{"enabled":true,"start":"22:00","end":"06:00","timezone":"Europe/Berlin"}`),
			now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM alerting.notification_preferences")).
		WithArgs("user-1").
		WillReturnRows(rows)

	pref, err := repo.Get(context.Background(), "user-1")
	require.NoError(t, err)
	entry, ok := pref.ForEvent("payment_failed")
	require.True(t, ok)
	assert.Equal(t, []models.Channel{models.ChannelEmail}, entry.Channels)
	require.NotNil(t, pref.QuietHours)
	assert.Equal(t, "22:00", pref.QuietHours.Start.String())
	assert.Equal(t, "Europe/Berlin", pref.QuietHours.Timezone)
}

func TestPreferenceRepository_GetMissing(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPreferenceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM alerting.notification_preferences")).
		WithArgs("user-2").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "user-2")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestPreferenceRepository_UpsertWithoutQuietHours(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPreferenceRepository(db)
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{"user_id", "event_preferences", "quiet_hours", "updated_at"}).
		AddRow("user-1", []byte(`{}`), nil, now)
	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (user_id) DO UPDATE")).
		WithArgs("user-1", []byte(`{}`), nil).
		WillReturnRows(rows)

	saved, err := repo.Upsert(context.Background(), models.NotificationPreference{UserID: "user-1"})
	require.NoError(t, err)
	assert.Nil(t, saved.QuietHours)
	assert.NotNil(t, saved.EventPreferences)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecipientRepository_ListByRole(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewRecipientRepository(db)

	rows := sqlmock.NewRows([]string{"user_id", "name", "email", "phone", "slack_webhook", "push_topic", "roles"}).
		AddRow("u-1", "Ana", "ana@example.com", "", "", "", "{finance,ops}").
		AddRow("u-2", "Ben", "ben@example.com", "+4912345", "", "ben", "{finance}")
	mock.ExpectQuery(regexp.QuoteMeta("WHERE $1 = ANY(roles)")).
		WithArgs("finance").
		WillReturnRows(rows)

	got, err := repo.ListByRole(context.Background(), "finance")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []string{"finance", "ops"}, got[0].Roles)
	assert.Equal(t, "+4912345", got[1].Address(models.ChannelSMS))
	assert.NoError(t, mock.ExpectationsWereMet())
}
