package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/stanstork/beacon/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var notificationRowColumns = []string{
	"id", "user_id", "title", "message", "category", "priority", "read", "metadata", "created_at",
}

func TestNotificationRepository_Create(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewNotificationRepository(db)
	now := time.Now().UTC()

	rows := sqlmock.NewRows(notificationRowColumns).
		AddRow("n-1", "user-1", "Payment failed", "Card declined", "billing", "high", false,
			[]byte(`{"rule_id":"rule-1"}`), now)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO alerting.notifications")).
		WithArgs("user-1", "Payment failed", "Card declined", "billing", "high", false, sqlmock.AnyArg()).
		WillReturnRows(rows)

	created, err := repo.Create(context.Background(), models.Notification{
		UserID:   "user-1",
		Title:    "Payment failed",
		Message:  "Card declined",
		Category: "billing",
		Priority: models.PriorityHigh,
		Metadata: map[string]interface{}{"rule_id": "rule-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "n-1", created.ID)
	assert.Equal(t, models.PriorityHigh, created.Priority)
	assert.Equal(t, "rule-1", created.Metadata["rule_id"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepository_MarkReadIsIdempotent(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewNotificationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("SET read = TRUE")).
		WithArgs("n-1", "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("SET read = TRUE")).
		WithArgs("n-1", "user-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	changed, err := repo.MarkRead(context.Background(), "user-1", "n-1")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.MarkRead(context.Background(), "user-1", "n-1")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepository_QueryBuildsFilters(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewNotificationRepository(db)
	now := time.Now().UTC()

	rows := sqlmock.NewRows(notificationRowColumns).
		AddRow("n-2", "user-1", "SLA breach", "API latency", "operations", "critical", false, nil, now)
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE user_id = $1 AND category = $2 AND read = $3 AND (title ILIKE $4 ESCAPE '\' OR message ILIKE $4 ESCAPE '\')`)).
		WithArgs("user-1", "operations", false, "%latency%", 25, 0).
		WillReturnRows(rows)

	unread := false
	got, err := repo.Query(context.Background(), "user-1", models.NotificationFilter{
		Category: "operations",
		Read:     &unread,
		Search:   "latency",
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "n-2", got[0].ID)
	assert.Nil(t, got[0].Metadata)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepository_Stats(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewNotificationRepository(db)

	rows := sqlmock.NewRows([]string{"priority", "count", "unread"}).
		AddRow("high", 3, 1).
		AddRow("low", 2, 0)
	mock.ExpectQuery(regexp.QuoteMeta("GROUP BY priority")).
		WithArgs("user-1").
		WillReturnRows(rows)

	stats, err := repo.Stats(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Total)
	assert.Equal(t, 1, stats.Unread)
	assert.Equal(t, 3, stats.ByPriority[models.PriorityHigh])
	assert.Equal(t, 0, stats.ByPriority[models.PriorityCritical])
	assert.Len(t, stats.ByPriority, 4)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepository_QueryEscapesWildcards(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewNotificationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("ILIKE $2 ESCAPE")).
		WithArgs("user-1", `%50\% off\_now%`, 25, 0).
		WillReturnRows(sqlmock.NewRows(notificationRowColumns))

	got, err := repo.Query(context.Background(), "user-1", models.NotificationFilter{Search: "50% off_now"})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepository_MalformedIDIsAbsent(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewNotificationRepository(db)
	badUUID := &pq.Error{Code: "22P02", Message: `invalid input syntax for type uuid: "abc"`}

	mock.ExpectQuery(regexp.QuoteMeta("FROM alerting.notifications WHERE id = $1")).
		WithArgs("abc", "user-1").
		WillReturnError(badUUID)
	mock.ExpectExec(regexp.QuoteMeta("SET read = TRUE")).
		WithArgs("abc", "user-1").
		WillReturnError(badUUID)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM alerting.notifications")).
		WithArgs("abc", "user-1").
		WillReturnError(badUUID)

	_, err := repo.Get(context.Background(), "user-1", "abc")
	assert.True(t, errors.Is(err, ErrNotFound))

	changed, err := repo.MarkRead(context.Background(), "user-1", "abc")
	require.NoError(t, err)
	assert.False(t, changed)

	deleted, err := repo.Delete(context.Background(), "user-1", "abc")
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepository_CorruptMetadataIsNotRetryable(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewNotificationRepository(db)

	rows := sqlmock.NewRows(notificationRowColumns).
		AddRow("n-1", "user-1", "t", "m", "billing", "high", false, []byte(`{not json`), time.Now().UTC())
	mock.ExpectQuery(regexp.QuoteMeta("FROM alerting.notifications")).WillReturnRows(rows)

	_, err := repo.Query(context.Background(), "user-1", models.NotificationFilter{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCorruptRecord))
	assert.False(t, IsRetryable(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepository_StoreDownIsRetryable(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewNotificationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("SET read = TRUE")).
		WithArgs("n-1", "user-1").
		WillReturnError(errors.New("connection refused"))

	_, err := repo.MarkRead(context.Background(), "user-1", "n-1")
	assert.True(t, IsRetryable(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
