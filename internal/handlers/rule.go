package handlers

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stanstork/beacon/internal/authz"
	"github.com/stanstork/beacon/internal/models"
	"github.com/stanstork/beacon/internal/repository"
)

type RuleHandler struct {
	rules  repository.RuleRepository
	logger zerolog.Logger
}

func NewRuleHandler(rules repository.RuleRepository, logger zerolog.Logger) *RuleHandler {
	return &RuleHandler{
		rules:  rules,
		logger: logger.With().Str("handler", "rule").Logger(),
	}
}

func (h *RuleHandler) List(w http.ResponseWriter, r *http.Request) {
	rules, err := h.rules.List(r.Context())
	if err != nil {
		writeStoreError(w, h.logger, err, "Rules")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"rules": rules})
}

func (h *RuleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var rule models.AlertRule
	if err := decodeJSON(r, &rule); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	rule.Actions.Channels = models.NormalizeChannels(rule.Actions.Channels)
	if err := rule.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if uid, ok := authz.UserIDFromRequest(r); ok {
		rule.CreatedBy = uid
	}

	created, err := h.rules.Create(r.Context(), rule)
	if err != nil {
		writeStoreError(w, h.logger, err, "Rule")
		return
	}
	h.logger.Info().Str("rule_id", created.ID).Str("event_type", created.EventType).Msg("rule created")
	writeJSON(w, http.StatusCreated, created)
}

func (h *RuleHandler) Get(w http.ResponseWriter, r *http.Request) {
	ruleID, ok := ruleIDFromRequest(w, r)
	if !ok {
		return
	}
	rule, err := h.rules.Get(r.Context(), ruleID)
	if err != nil {
		writeStoreError(w, h.logger, err, "Rule")
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// Update applies a partial update; fields absent from the body keep their stored value.
func (h *RuleHandler) Update(w http.ResponseWriter, r *http.Request) {
	ruleID, ok := ruleIDFromRequest(w, r)
	if !ok {
		return
	}
	var patch models.RulePatch
	if err := decodeJSON(r, &patch); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if patch.IsEmpty() {
		http.Error(w, "No fields to update", http.StatusBadRequest)
		return
	}
	if err := patch.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	updated, err := h.rules.Update(r.Context(), ruleID, patch)
	if err != nil {
		writeStoreError(w, h.logger, err, "Rule")
		return
	}
	h.logger.Info().Str("rule_id", updated.ID).Bool("enabled", updated.Enabled).Msg("rule updated")
	writeJSON(w, http.StatusOK, updated)
}

func (h *RuleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ruleID, ok := ruleIDFromRequest(w, r)
	if !ok {
		return
	}
	if err := h.rules.Delete(r.Context(), ruleID); err != nil {
		writeStoreError(w, h.logger, err, "Rule")
		return
	}
	h.logger.Info().Str("rule_id", ruleID).Msg("rule deleted")
	w.WriteHeader(http.StatusNoContent)
}

func ruleIDFromRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	ruleID := strings.TrimSpace(mux.Vars(r)["ruleID"])
	if ruleID == "" {
		http.Error(w, "Rule ID is required", http.StatusBadRequest)
		return "", false
	}
	return ruleID, true
}
