package repository

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/stanstork/beacon/internal/models"
)

const ruleColumns = `id, name, description, enabled, event_type, conditions, channels, recipients, priority, created_by, created_at, updated_at`

type ruleRepository struct {
	db *sql.DB
}

func NewRuleRepository(db *sql.DB) RuleRepository {
	return &ruleRepository{db: db}
}

func (r *ruleRepository) Create(ctx context.Context, rule models.AlertRule) (models.AlertRule, error) {
	query := `
		INSERT INTO alerting.alert_rules (name, description, enabled, event_type, conditions, channels, recipients, priority, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + ruleColumns

	conditions, err := marshalConditions(rule.Conditions)
	if err != nil {
		return models.AlertRule{}, err
	}
	recipients, err := marshalRecipients(rule.Actions.Recipients)
	if err != nil {
		return models.AlertRule{}, err
	}

	row := r.db.QueryRowContext(ctx, query,
		strings.TrimSpace(rule.Name),
		rule.Description,
		rule.Enabled,
		strings.TrimSpace(rule.EventType),
		conditions,
		pq.Array(channelStrings(rule.Actions.Channels)),
		recipients,
		string(rule.Actions.Priority),
		rule.CreatedBy,
	)
	created, err := scanRule(row)
	if err != nil {
		return models.AlertRule{}, dbError("create rule", err)
	}
	return created, nil
}

func (r *ruleRepository) Get(ctx context.Context, ruleID string) (models.AlertRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM alerting.alert_rules WHERE id = $1`
	rule, err := scanRule(r.db.QueryRowContext(ctx, query, strings.TrimSpace(ruleID)))
	if err != nil {
		return models.AlertRule{}, dbError("get rule", err)
	}
	return rule, nil
}

func (r *ruleRepository) List(ctx context.Context) ([]models.AlertRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM alerting.alert_rules ORDER BY seq`
	return r.list(ctx, "list rules", query)
}

func (r *ruleRepository) ListEnabledByEventType(ctx context.Context, eventType string) ([]models.AlertRule, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM alerting.alert_rules
		WHERE enabled AND event_type = $1
		ORDER BY seq`
	return r.list(ctx, "list rules by event type", query, eventType)
}

func (r *ruleRepository) list(ctx context.Context, op, query string, args ...interface{}) ([]models.AlertRule, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, Unavailable(op, err)
	}
	defer rows.Close()

	rules := []models.AlertRule{}
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, dbError(op, err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, Unavailable(op, err)
	}
	return rules, nil
}

// Update merges the patch column by column, so concurrent patches touching
// different fields both survive.
func (r *ruleRepository) Update(ctx context.Context, ruleID string, patch models.RulePatch) (models.AlertRule, error) {
	query := `
		UPDATE alerting.alert_rules SET
			name = COALESCE($2, name),
			description = COALESCE($3, description),
			enabled = COALESCE($4, enabled),
			event_type = COALESCE($5, event_type),
			conditions = COALESCE($6::jsonb, conditions),
			channels = COALESCE($7::text[], channels),
			recipients = COALESCE($8::jsonb, recipients),
			priority = COALESCE($9, priority),
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + ruleColumns

	var name, description, enabled, eventType, conditions, channels, recipients, priority interface{}
	if patch.Name != nil {
		name = strings.TrimSpace(*patch.Name)
	}
	if patch.Description != nil {
		description = *patch.Description
	}
	if patch.Enabled != nil {
		enabled = *patch.Enabled
	}
	if patch.EventType != nil {
		eventType = strings.TrimSpace(*patch.EventType)
	}
	if patch.Conditions != nil {
		raw, err := marshalConditions(*patch.Conditions)
		if err != nil {
			return models.AlertRule{}, err
		}
		conditions = raw
	}
	if patch.Actions != nil {
		raw, err := marshalRecipients(patch.Actions.Recipients)
		if err != nil {
			return models.AlertRule{}, err
		}
		recipients = raw
		channels = pq.Array(channelStrings(models.NormalizeChannels(patch.Actions.Channels)))
		priority = string(patch.Actions.Priority)
	}

	row := r.db.QueryRowContext(ctx, query, strings.TrimSpace(ruleID),
		name, description, enabled, eventType, conditions, channels, recipients, priority)
	updated, err := scanRule(row)
	if err != nil {
		return models.AlertRule{}, dbError("update rule", err)
	}
	return updated, nil
}

func (r *ruleRepository) Delete(ctx context.Context, ruleID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM alerting.alert_rules WHERE id = $1`, strings.TrimSpace(ruleID))
	if isMalformedID(err) {
		return ErrNotFound
	}
	if err != nil {
		return Unavailable("delete rule", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return Unavailable("delete rule", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanRule(scanner rowScanner) (models.AlertRule, error) {
	var (
		rule          models.AlertRule
		conditionsRaw []byte
		channels      pq.StringArray
		recipientsRaw []byte
		priority      string
	)
	if err := scanner.Scan(
		&rule.ID,
		&rule.Name,
		&rule.Description,
		&rule.Enabled,
		&rule.EventType,
		&conditionsRaw,
		&channels,
		&recipientsRaw,
		&priority,
		&rule.CreatedBy,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	); err != nil {
		return models.AlertRule{}, err
	}

	rule.Conditions = []models.Condition{}
	if len(conditionsRaw) > 0 {
		dec := json.NewDecoder(bytes.NewReader(conditionsRaw))
		dec.UseNumber()
		if err := dec.Decode(&rule.Conditions); err != nil {
			return models.AlertRule{}, corrupt("rule conditions", err)
		}
	}
	if len(recipientsRaw) > 0 {
		if err := json.Unmarshal(recipientsRaw, &rule.Actions.Recipients); err != nil {
			return models.AlertRule{}, corrupt("rule recipients", err)
		}
	}
	rule.Actions.Channels = make([]models.Channel, 0, len(channels))
	for _, c := range channels {
		rule.Actions.Channels = append(rule.Actions.Channels, models.Channel(c))
	}
	rule.Actions.Priority = models.Priority(priority)
	return rule, nil
}

func marshalConditions(conditions []models.Condition) ([]byte, error) {
	if conditions == nil {
		conditions = []models.Condition{}
	}
	raw, err := json.Marshal(conditions)
	if err != nil {
		return nil, errors.Wrap(err, "marshal conditions")
	}
	return raw, nil
}

func marshalRecipients(recipients []models.RecipientRef) ([]byte, error) {
	if recipients == nil {
		recipients = []models.RecipientRef{}
	}
	raw, err := json.Marshal(recipients)
	if err != nil {
		return nil, errors.Wrap(err, "marshal recipients")
	}
	return raw, nil
}

func channelStrings(channels []models.Channel) []string {
	out := make([]string, 0, len(channels))
	for _, c := range channels {
		out = append(out, string(c))
	}
	return out
}
