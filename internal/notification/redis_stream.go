package notification

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stanstork/beacon/internal/models"
)

// RedisStream publishes notifications on a per-user Redis channel so every
// server instance can feed its own in-process subscribers.
type RedisStream struct {
	client redis.UniversalClient
	prefix string
	logger zerolog.Logger
}

func NewRedisStream(client redis.UniversalClient, prefix string, logger zerolog.Logger) *RedisStream {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "beacon:notifications"
	}
	return &RedisStream{
		client: client,
		prefix: prefix,
		logger: logger.With().Str("component", "redis_stream").Logger(),
	}
}

func (s *RedisStream) channel(userID string) string {
	return s.prefix + ":" + userID
}

func (s *RedisStream) Publish(ctx context.Context, notif models.Notification) error {
	payload, err := json.Marshal(notif)
	if err != nil {
		return errors.Wrap(err, "marshal notification")
	}
	if err := s.client.Publish(ctx, s.channel(notif.UserID), payload).Err(); err != nil {
		return errors.Wrap(err, "redis publish")
	}
	return nil
}

// Relay forwards every message on the stream into local until ctx is done.
func (s *RedisStream) Relay(ctx context.Context, local Publisher) error {
	pubsub := s.client.PSubscribe(ctx, s.prefix+":*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return errors.Wrap(err, "redis subscribe")
	}
	s.logger.Info().Str("pattern", s.prefix+":*").Msg("relaying notification stream")

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			notif, err := decodeStreamMessage(msg.Payload)
			if err != nil {
				s.logger.Warn().Err(err).Str("channel", msg.Channel).Msg("dropping undecodable stream message")
				continue
			}
			if err := local.Publish(ctx, notif); err != nil {
				s.logger.Warn().Err(err).Str("notification_id", notif.ID).Msg("failed to relay notification")
			}
		}
	}
}

func (s *RedisStream) String() string {
	return "redis_stream"
}

func decodeStreamMessage(payload string) (models.Notification, error) {
	var notif models.Notification
	if err := json.Unmarshal([]byte(payload), &notif); err != nil {
		return models.Notification{}, errors.Wrap(err, "decode notification")
	}
	if notif.UserID == "" {
		return models.Notification{}, errors.New("notification has no user id")
	}
	return notif, nil
}
