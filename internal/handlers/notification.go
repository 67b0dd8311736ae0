package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stanstork/beacon/internal/models"
	"github.com/stanstork/beacon/internal/notification"
)

type NotificationHandler struct {
	service notification.Service
	logger  zerolog.Logger
}

func NewNotificationHandler(service notification.Service, logger zerolog.Logger) *NotificationHandler {
	return &NotificationHandler{
		service: service,
		logger:  logger.With().Str("handler", "notification").Logger(),
	}
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	filter, err := filterFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	notifications, err := h.service.Query(r.Context(), userID, filter)
	if err != nil {
		writeStoreError(w, h.logger, err, "Notifications")
		return
	}
	filter = filter.Normalize()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": notifications,
		"limit":         filter.Limit,
		"offset":        filter.Offset,
	})
}

func filterFromQuery(r *http.Request) (models.NotificationFilter, error) {
	q := r.URL.Query()
	filter := models.NotificationFilter{
		Category: strings.TrimSpace(q.Get("category")),
		Search:   strings.TrimSpace(q.Get("q")),
	}
	if raw := strings.TrimSpace(q.Get("read")); raw != "" {
		read, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, errInvalidParam("read")
		}
		filter.Read = &read
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return filter, errInvalidParam("limit")
		}
		filter.Limit = limit
	}
	if raw := strings.TrimSpace(q.Get("offset")); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return filter, errInvalidParam("offset")
		}
		filter.Offset = offset
	}
	return filter, nil
}

type errInvalidParam string

func (e errInvalidParam) Error() string { return "invalid " + string(e) + " parameter" }

func (h *NotificationHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, notifID, ok := notificationTarget(w, r)
	if !ok {
		return
	}
	notif, err := h.service.Get(r.Context(), userID, notifID)
	if err != nil {
		writeStoreError(w, h.logger, err, "Notification")
		return
	}
	writeJSON(w, http.StatusOK, notif)
}

func (h *NotificationHandler) Stats(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	stats, err := h.service.Stats(r.Context(), userID)
	if err != nil {
		writeStoreError(w, h.logger, err, "Notification stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// MarkRead succeeds for unknown and already read notifications alike.
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, notifID, ok := notificationTarget(w, r)
	if !ok {
		return
	}
	if err := h.service.MarkRead(r.Context(), userID, notifID); err != nil {
		writeStoreError(w, h.logger, err, "Notification")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	n, err := h.service.MarkAllRead(r.Context(), userID)
	if err != nil {
		writeStoreError(w, h.logger, err, "Notifications")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, notifID, ok := notificationTarget(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), userID, notifID); err != nil {
		writeStoreError(w, h.logger, err, "Notification")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func notificationTarget(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	userID, ok := requireUser(w, r)
	if !ok {
		return "", "", false
	}
	notifID := strings.TrimSpace(mux.Vars(r)["notificationID"])
	if notifID == "" {
		http.Error(w, "Notification ID is required", http.StatusBadRequest)
		return "", "", false
	}
	return userID, notifID, true
}
