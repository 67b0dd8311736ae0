package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/lib/pq"
	"github.com/stanstork/beacon/internal/models"
)

const recipientColumns = `user_id, name, email, phone, slack_webhook, push_topic, roles`

type recipientRepository struct {
	db *sql.DB
}

func NewRecipientRepository(db *sql.DB) RecipientRepository {
	return &recipientRepository{db: db}
}

func (r *recipientRepository) Get(ctx context.Context, userID string) (models.Recipient, error) {
	query := `SELECT ` + recipientColumns + ` FROM alerting.recipients WHERE user_id = $1`
	recipient, err := scanRecipient(r.db.QueryRowContext(ctx, query, strings.TrimSpace(userID)))
	if err != nil {
		return models.Recipient{}, dbError("get recipient", err)
	}
	return recipient, nil
}

func (r *recipientRepository) ListByRole(ctx context.Context, role string) ([]models.Recipient, error) {
	query := `
		SELECT ` + recipientColumns + `
		FROM alerting.recipients
		WHERE $1 = ANY(roles)
		ORDER BY user_id`

	rows, err := r.db.QueryContext(ctx, query, strings.TrimSpace(role))
	if err != nil {
		return nil, Unavailable("list recipients by role", err)
	}
	defer rows.Close()

	var recipients []models.Recipient
	for rows.Next() {
		recipient, err := scanRecipient(rows)
		if err != nil {
			return nil, Unavailable("list recipients by role", err)
		}
		recipients = append(recipients, recipient)
	}
	if err := rows.Err(); err != nil {
		return nil, Unavailable("list recipients by role", err)
	}
	return recipients, nil
}

func (r *recipientRepository) Upsert(ctx context.Context, recipient models.Recipient) (models.Recipient, error) {
	query := `
		INSERT INTO alerting.recipients (` + recipientColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE
		SET name = EXCLUDED.name,
			email = EXCLUDED.email,
			phone = EXCLUDED.phone,
			slack_webhook = EXCLUDED.slack_webhook,
			push_topic = EXCLUDED.push_topic,
			roles = EXCLUDED.roles
		RETURNING ` + recipientColumns

	roles := recipient.Roles
	if roles == nil {
		roles = []string{}
	}
	row := r.db.QueryRowContext(ctx, query,
		strings.TrimSpace(recipient.UserID),
		recipient.Name,
		recipient.Email,
		recipient.Phone,
		recipient.SlackWebhook,
		recipient.PushTopic,
		pq.Array(roles),
	)
	saved, err := scanRecipient(row)
	if err != nil {
		return models.Recipient{}, dbError("upsert recipient", err)
	}
	return saved, nil
}

func scanRecipient(scanner rowScanner) (models.Recipient, error) {
	var (
		recipient models.Recipient
		roles     pq.StringArray
	)
	if err := scanner.Scan(
		&recipient.UserID,
		&recipient.Name,
		&recipient.Email,
		&recipient.Phone,
		&recipient.SlackWebhook,
		&recipient.PushTopic,
		&roles,
	); err != nil {
		return models.Recipient{}, err
	}
	recipient.Roles = []string(roles)
	return recipient, nil
}
