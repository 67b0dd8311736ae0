package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stanstork/beacon/internal/notification"
)

// streamHeartbeat keeps idle SSE connections open through proxies.
const streamHeartbeat = 25 * time.Second

type StreamHandler struct {
	subscriber notification.Subscriber
	heartbeat  time.Duration
	done       chan struct{}
	closeOnce  sync.Once
	logger     zerolog.Logger
}

func NewStreamHandler(subscriber notification.Subscriber, logger zerolog.Logger) *StreamHandler {
	return &StreamHandler{
		subscriber: subscriber,
		heartbeat:  streamHeartbeat,
		done:       make(chan struct{}),
		logger:     logger.With().Str("handler", "stream").Logger(),
	}
}

// Stream pushes the caller's new notifications as server-sent events. Clients
// that lose the connection fall back to polling the list endpoint.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	updates, cancel := h.subscriber.Subscribe(userID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	h.logger.Debug().Str("user_id", userID).Msg("stream opened")
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.logger.Debug().Str("user_id", userID).Msg("stream closed")
			return
		case <-h.done:
			h.logger.Debug().Str("user_id", userID).Msg("stream closed for shutdown")
			return
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case notif, ok := <-updates:
			if !ok {
				return
			}
			data, err := json.Marshal(notif)
			if err != nil {
				h.logger.Error().Err(err).Str("notification_id", notif.ID).Msg("failed to encode notification")
				continue
			}
			fmt.Fprintf(w, "id: %s\nevent: notification\ndata: %s\n\n", notif.ID, data)
			flusher.Flush()
		}
	}
}

// Close ends every open stream and makes new ones return straight away.
func (h *StreamHandler) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}
