package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stanstork/beacon/internal/models"
)

const notificationColumns = `id, user_id, title, message, category, priority, read, metadata, created_at`

// likeEscaper makes search text match literally inside an ILIKE pattern.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

type notificationRepository struct {
	db *sql.DB
}

func NewNotificationRepository(db *sql.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(ctx context.Context, notif models.Notification) (models.Notification, error) {
	query := `
		INSERT INTO alerting.notifications (user_id, title, message, category, priority, read, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + notificationColumns

	var metadata interface{}
	if len(notif.Metadata) > 0 {
		raw, err := json.Marshal(notif.Metadata)
		if err != nil {
			return models.Notification{}, fmt.Errorf("marshal metadata: %w", err)
		}
		metadata = raw
	}

	row := r.db.QueryRowContext(ctx, query,
		strings.TrimSpace(notif.UserID),
		notif.Title,
		notif.Message,
		notif.Category,
		string(notif.Priority),
		notif.Read,
		metadata,
	)
	created, err := scanNotification(row)
	if err != nil {
		return models.Notification{}, dbError("create notification", err)
	}
	return created, nil
}

func (r *notificationRepository) Get(ctx context.Context, userID, notificationID string) (models.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM alerting.notifications WHERE id = $1 AND user_id = $2`
	notif, err := scanNotification(r.db.QueryRowContext(ctx, query, strings.TrimSpace(notificationID), strings.TrimSpace(userID)))
	if err != nil {
		return models.Notification{}, dbError("get notification", err)
	}
	return notif, nil
}

func (r *notificationRepository) MarkRead(ctx context.Context, userID, notificationID string) (bool, error) {
	const query = `
		UPDATE alerting.notifications
		SET read = TRUE
		WHERE id = $1 AND user_id = $2 AND NOT read`
	affected, err := r.exec(ctx, "mark notification read", query, strings.TrimSpace(notificationID), strings.TrimSpace(userID))
	return affected > 0, err
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	const query = `
		UPDATE alerting.notifications
		SET read = TRUE
		WHERE user_id = $1 AND NOT read`
	return r.exec(ctx, "mark all notifications read", query, strings.TrimSpace(userID))
}

func (r *notificationRepository) Delete(ctx context.Context, userID, notificationID string) (bool, error) {
	const query = `DELETE FROM alerting.notifications WHERE id = $1 AND user_id = $2`
	affected, err := r.exec(ctx, "delete notification", query, strings.TrimSpace(notificationID), strings.TrimSpace(userID))
	return affected > 0, err
}

func (r *notificationRepository) exec(ctx context.Context, op, query string, args ...interface{}) (int64, error) {
	result, err := r.db.ExecContext(ctx, query, args...)
	if isMalformedID(err) {
		return 0, nil
	}
	if err != nil {
		return 0, Unavailable(op, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, Unavailable(op, err)
	}
	return affected, nil
}

func (r *notificationRepository) Query(ctx context.Context, userID string, filter models.NotificationFilter) ([]models.Notification, error) {
	filter = filter.Normalize()

	where := []string{"user_id = $1"}
	args := []interface{}{strings.TrimSpace(userID)}
	if category := strings.TrimSpace(filter.Category); category != "" {
		args = append(args, category)
		where = append(where, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.Read != nil {
		args = append(args, *filter.Read)
		where = append(where, fmt.Sprintf("read = $%d", len(args)))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+likeEscaper.Replace(search)+"%")
		where = append(where, fmt.Sprintf(`(title ILIKE $%d ESCAPE '\' OR message ILIKE $%d ESCAPE '\')`, len(args), len(args)))
	}
	args = append(args, filter.Limit, filter.Offset)

	query := fmt.Sprintf(`
		SELECT %s
		FROM alerting.notifications
		WHERE %s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d`,
		notificationColumns, strings.Join(where, " AND "), len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, Unavailable("query notifications", err)
	}
	defer rows.Close()

	notifications := []models.Notification{}
	for rows.Next() {
		notif, err := scanNotification(rows)
		if err != nil {
			return nil, dbError("query notifications", err)
		}
		notifications = append(notifications, notif)
	}
	if err := rows.Err(); err != nil {
		return nil, Unavailable("query notifications", err)
	}
	return notifications, nil
}

func (r *notificationRepository) Stats(ctx context.Context, userID string) (models.NotificationStats, error) {
	const query = `
		SELECT priority, COUNT(*), COUNT(*) FILTER (WHERE NOT read)
		FROM alerting.notifications
		WHERE user_id = $1
		GROUP BY priority`

	rows, err := r.db.QueryContext(ctx, query, strings.TrimSpace(userID))
	if err != nil {
		return models.NotificationStats{}, Unavailable("notification stats", err)
	}
	defer rows.Close()

	stats := models.NewNotificationStats()
	for rows.Next() {
		var (
			priority      string
			total, unread int
		)
		if err := rows.Scan(&priority, &total, &unread); err != nil {
			return models.NotificationStats{}, Unavailable("notification stats", err)
		}
		stats.Total += total
		stats.Unread += unread
		stats.ByPriority[models.Priority(priority)] += total
	}
	if err := rows.Err(); err != nil {
		return models.NotificationStats{}, Unavailable("notification stats", err)
	}
	return stats, nil
}

func scanNotification(scanner rowScanner) (models.Notification, error) {
	var (
		notif       models.Notification
		priority    string
		metadataRaw []byte
	)
	if err := scanner.Scan(
		&notif.ID,
		&notif.UserID,
		&notif.Title,
		&notif.Message,
		&notif.Category,
		&priority,
		&notif.Read,
		&metadataRaw,
		&notif.CreatedAt,
	); err != nil {
		return models.Notification{}, err
	}
	notif.Priority = models.Priority(priority)
	if len(metadataRaw) > 0 {
		if err := json.Unmarshal(metadataRaw, &notif.Metadata); err != nil {
			return models.Notification{}, corrupt("notification metadata", err)
		}
	}
	return notif, nil
}
