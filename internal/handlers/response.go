package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/stanstork/beacon/internal/repository"
)

// retryAfterSeconds is sent with 503 responses caused by store outages.
const retryAfterSeconds = "5"

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	return dec.Decode(v)
}

// writeStoreError maps repository failures onto HTTP statuses.
func writeStoreError(w http.ResponseWriter, logger zerolog.Logger, err error, what string) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		http.Error(w, what+" not found", http.StatusNotFound)
	case repository.IsRetryable(err):
		logger.Warn().Err(err).Msg("store unavailable")
		w.Header().Set("Retry-After", retryAfterSeconds)
		http.Error(w, "Service temporarily unavailable", http.StatusServiceUnavailable)
	default:
		logger.Error().Err(err).Str("resource", what).Msg("request failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
