package repository

import (
	"context"

	"github.com/stanstork/beacon/internal/models"
)

type RuleRepository interface {
	Create(ctx context.Context, rule models.AlertRule) (models.AlertRule, error)
	Get(ctx context.Context, ruleID string) (models.AlertRule, error)
	// List returns every rule in insertion order.
	List(ctx context.Context) ([]models.AlertRule, error)
	// ListEnabledByEventType returns enabled rules for eventType in insertion order.
	ListEnabledByEventType(ctx context.Context, eventType string) ([]models.AlertRule, error)
	Update(ctx context.Context, ruleID string, patch models.RulePatch) (models.AlertRule, error)
	Delete(ctx context.Context, ruleID string) error
}

type PreferenceRepository interface {
	Get(ctx context.Context, userID string) (models.NotificationPreference, error)
	// Upsert replaces the whole preference document for the user.
	Upsert(ctx context.Context, pref models.NotificationPreference) (models.NotificationPreference, error)
}

type NotificationRepository interface {
	Create(ctx context.Context, notif models.Notification) (models.Notification, error)
	Get(ctx context.Context, userID, notificationID string) (models.Notification, error)
	// MarkRead reports whether a notification changed state.
	MarkRead(ctx context.Context, userID, notificationID string) (bool, error)
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	// Delete reports whether a notification was removed.
	Delete(ctx context.Context, userID, notificationID string) (bool, error)
	Query(ctx context.Context, userID string, filter models.NotificationFilter) ([]models.Notification, error)
	Stats(ctx context.Context, userID string) (models.NotificationStats, error)
}

type RecipientRepository interface {
	Get(ctx context.Context, userID string) (models.Recipient, error)
	ListByRole(ctx context.Context, role string) ([]models.Recipient, error)
	Upsert(ctx context.Context, recipient models.Recipient) (models.Recipient, error)
}
