// Package ingest feeds domain events from outside sources into the alerting pipeline.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"github.com/stanstork/beacon/internal/models"
)

// Handler processes one event. Returning a retryable store error asks the
// source to redeliver the event later.
type Handler func(ctx context.Context, evt models.Event) error

// Source runs until ctx is cancelled or it fails for good.
type Source interface {
	Name() string
	Run(ctx context.Context, handle Handler) error
}

// DecodeEvent parses a JSON event. Numbers are kept as json.Number so large
// integers keep every digit.
func DecodeEvent(data []byte) (models.Event, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var evt models.Event
	if err := dec.Decode(&evt); err != nil {
		return models.Event{}, errors.Wrap(err, "decode event")
	}
	evt.Type = strings.TrimSpace(evt.Type)
	if evt.Type == "" {
		return models.Event{}, errors.New("event type is required")
	}
	return evt, nil
}
