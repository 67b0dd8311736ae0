package notification

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/stanstork/beacon/internal/models"
)

// Subscriber streams new notifications for one user until cancel is called.
type Subscriber interface {
	Subscribe(userID string) (<-chan models.Notification, func())
}

// Broadcaster fans notifications out to in-process subscribers. A subscriber
// that falls behind loses messages rather than blocking the publisher.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[string]map[chan models.Notification]struct{}
	buffer int
	logger zerolog.Logger
}

func NewBroadcaster(buffer int, logger zerolog.Logger) *Broadcaster {
	if buffer <= 0 {
		buffer = 16
	}
	return &Broadcaster{
		subs:   map[string]map[chan models.Notification]struct{}{},
		buffer: buffer,
		logger: logger.With().Str("component", "broadcaster").Logger(),
	}
}

func (b *Broadcaster) Publish(_ context.Context, notif models.Notification) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs[notif.UserID] {
		select {
		case ch <- notif:
		default:
			b.logger.Warn().Str("user_id", notif.UserID).Str("notification_id", notif.ID).Msg("subscriber is behind, dropping notification")
		}
	}
	return nil
}

func (b *Broadcaster) Subscribe(userID string) (<-chan models.Notification, func()) {
	ch := make(chan models.Notification, b.buffer)

	b.mu.Lock()
	if b.subs[userID] == nil {
		b.subs[userID] = map[chan models.Notification]struct{}{}
	}
	b.subs[userID][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[userID], ch)
			if len(b.subs[userID]) == 0 {
				delete(b.subs, userID)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (b *Broadcaster) String() string {
	return "broadcaster"
}
