package handlers

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/stanstork/beacon/internal/models"
	"github.com/stanstork/beacon/internal/repository"
)

type PreferenceHandler struct {
	prefs  repository.PreferenceRepository
	logger zerolog.Logger
}

func NewPreferenceHandler(prefs repository.PreferenceRepository, logger zerolog.Logger) *PreferenceHandler {
	return &PreferenceHandler{
		prefs:  prefs,
		logger: logger.With().Str("handler", "preference").Logger(),
	}
}

// Get returns the caller's preferences, or the defaults when none are stored.
func (h *PreferenceHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	pref, err := h.prefs.Get(r.Context(), userID)
	if errors.Is(err, repository.ErrNotFound) {
		pref, err = models.DefaultPreference(userID), nil
	}
	if err != nil {
		writeStoreError(w, h.logger, err, "Preferences")
		return
	}
	writeJSON(w, http.StatusOK, pref)
}

// Put replaces the caller's whole preference document. The last writer wins.
func (h *PreferenceHandler) Put(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var pref models.NotificationPreference
	if err := decodeJSON(r, &pref); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	pref.UserID = userID
	if pref.EventPreferences == nil {
		pref.EventPreferences = map[string]models.EventPreference{}
	}
	if err := pref.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	saved, err := h.prefs.Upsert(r.Context(), pref)
	if err != nil {
		writeStoreError(w, h.logger, err, "Preferences")
		return
	}
	writeJSON(w, http.StatusOK, saved)
}
