package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/stanstork/beacon/internal/alerting"
	"github.com/stanstork/beacon/internal/ingest"
	"github.com/stanstork/beacon/internal/models"
	"github.com/stanstork/beacon/internal/repository"
)

// maxEventBytes bounds the body of a posted event.
const maxEventBytes = 1 << 20

// EventProcessor is satisfied by *alerting.Pipeline.
type EventProcessor interface {
	Process(ctx context.Context, evt models.Event) (alerting.Result, error)
}

type EventHandler struct {
	pipeline EventProcessor
	logger   zerolog.Logger
}

func NewEventHandler(pipeline EventProcessor, logger zerolog.Logger) *EventHandler {
	return &EventHandler{
		pipeline: pipeline,
		logger:   logger.With().Str("handler", "event").Logger(),
	}
}

// Publish runs a posted event through the pipeline and reports what fired.
func (h *EventHandler) Publish(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBytes))
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}
	evt, err := ingest.DecodeEvent(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.pipeline.Process(r.Context(), evt)
	if err != nil {
		if repository.IsRetryable(err) {
			writeStoreError(w, h.logger, err, "Event")
			return
		}
		h.logger.Error().Err(err).Str("event_type", evt.Type).Msg("failed to process event")
		http.Error(w, "Failed to process event", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusAccepted, result)
}
