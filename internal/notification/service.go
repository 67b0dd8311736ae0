package notification

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stanstork/beacon/internal/models"
	"github.com/stanstork/beacon/internal/repository"
)

// Publisher receives every notification right after it is stored.
type Publisher interface {
	Publish(ctx context.Context, notif models.Notification) error
}

type Service interface {
	Create(ctx context.Context, notif models.Notification) (models.Notification, error)
	Get(ctx context.Context, userID, notificationID string) (models.Notification, error)
	// MarkRead is a no-op for unknown or already read notifications.
	MarkRead(ctx context.Context, userID, notificationID string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	// Delete is a no-op for unknown notifications.
	Delete(ctx context.Context, userID, notificationID string) error
	Query(ctx context.Context, userID string, filter models.NotificationFilter) ([]models.Notification, error)
	Stats(ctx context.Context, userID string) (models.NotificationStats, error)
}

type service struct {
	repo       repository.NotificationRepository
	logger     zerolog.Logger
	locks      *userLocks
	publishers []Publisher
}

func NewService(repo repository.NotificationRepository, logger zerolog.Logger, publishers ...Publisher) Service {
	active := make([]Publisher, 0, len(publishers))
	for _, p := range publishers {
		if p != nil {
			active = append(active, p)
		}
	}
	return &service{
		repo:       repo,
		logger:     logger.With().Str("component", "notification_service").Logger(),
		locks:      newUserLocks(),
		publishers: active,
	}
}

func (s *service) Create(ctx context.Context, notif models.Notification) (models.Notification, error) {
	notif.UserID = strings.TrimSpace(notif.UserID)
	if notif.UserID == "" {
		return models.Notification{}, fmt.Errorf("user id is required")
	}
	if !notif.Priority.IsValid() {
		return models.Notification{}, fmt.Errorf("invalid priority %q", notif.Priority)
	}
	notif.Title = strings.TrimSpace(notif.Title)
	notif.Message = strings.TrimSpace(notif.Message)
	if notif.Title == "" {
		notif.Title = notif.Category
	}
	notif.Read = false

	unlock := s.locks.lock(notif.UserID)
	created, err := s.repo.Create(ctx, notif)
	unlock()
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", notif.UserID).Str("category", notif.Category).Msg("failed to persist notification")
		return models.Notification{}, errors.Wrap(err, "create notification")
	}

	for _, p := range s.publishers {
		if err := p.Publish(ctx, created); err != nil {
			s.logger.Warn().Err(err).Str("notification_id", created.ID).Str("publisher", publisherName(p)).Msg("failed to publish notification")
		}
	}
	return created, nil
}

func (s *service) Get(ctx context.Context, userID, notificationID string) (models.Notification, error) {
	return s.repo.Get(ctx, userID, notificationID)
}

func (s *service) MarkRead(ctx context.Context, userID, notificationID string) error {
	unlock := s.locks.lock(userID)
	defer unlock()

	changed, err := s.repo.MarkRead(ctx, userID, notificationID)
	if err != nil {
		return errors.Wrap(err, "mark notification read")
	}
	if !changed {
		s.logger.Debug().Str("user_id", userID).Str("notification_id", notificationID).Msg("mark read was a no-op")
	}
	return nil
}

func (s *service) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	unlock := s.locks.lock(userID)
	defer unlock()

	n, err := s.repo.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, errors.Wrap(err, "mark all notifications read")
	}
	return n, nil
}

func (s *service) Delete(ctx context.Context, userID, notificationID string) error {
	unlock := s.locks.lock(userID)
	defer unlock()

	if _, err := s.repo.Delete(ctx, userID, notificationID); err != nil {
		return errors.Wrap(err, "delete notification")
	}
	return nil
}

func (s *service) Query(ctx context.Context, userID string, filter models.NotificationFilter) ([]models.Notification, error) {
	return s.repo.Query(ctx, userID, filter.Normalize())
}

func (s *service) Stats(ctx context.Context, userID string) (models.NotificationStats, error) {
	return s.repo.Stats(ctx, userID)
}

func publisherName(p Publisher) string {
	type named interface {
		String() string
	}
	if v, ok := p.(named); ok {
		return v.String()
	}
	return fmt.Sprintf("%T", p)
}
