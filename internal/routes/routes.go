package routes

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/stanstork/beacon/internal/authz"
	"github.com/stanstork/beacon/internal/handlers"
	"github.com/stanstork/beacon/internal/models"
)

type Handlers struct {
	Auth          *handlers.Authenticator
	Rules         *handlers.RuleHandler
	Preferences   *handlers.PreferenceHandler
	Notifications *handlers.NotificationHandler
	Stream        *handlers.StreamHandler
	Events        *handlers.EventHandler
	Readiness     http.HandlerFunc
}

// NewRouter sets up the API routes
func NewRouter(h Handlers) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", handlers.HealthCheck).Methods(http.MethodGet)
	if h.Readiness != nil {
		router.HandleFunc("/ready", h.Readiness).Methods(http.MethodGet)
	}

	api := router.PathPrefix("/api").Subrouter()
	api.Use(h.Auth.JWTMiddleware)

	viewer := func(fn http.HandlerFunc) http.Handler { return authz.RequireRoleHandler(models.RoleViewer, fn) }
	admin := func(fn http.HandlerFunc) http.Handler { return authz.RequireRoleHandler(models.RoleAdmin, fn) }

	api.Handle("/preferences", viewer(h.Preferences.Get)).Methods(http.MethodGet)
	api.Handle("/preferences", viewer(h.Preferences.Put)).Methods(http.MethodPut)

	api.Handle("/rules", admin(h.Rules.List)).Methods(http.MethodGet)
	api.Handle("/rules", admin(h.Rules.Create)).Methods(http.MethodPost)
	api.Handle("/rules/{ruleID}", admin(h.Rules.Get)).Methods(http.MethodGet)
	api.Handle("/rules/{ruleID}", admin(h.Rules.Update)).Methods(http.MethodPut)
	api.Handle("/rules/{ruleID}", admin(h.Rules.Delete)).Methods(http.MethodDelete)

	// Fixed paths are registered before {notificationID} so they are not captured by it.
	api.Handle("/notifications", viewer(h.Notifications.List)).Methods(http.MethodGet)
	api.Handle("/notifications/stats", viewer(h.Notifications.Stats)).Methods(http.MethodGet)
	api.Handle("/notifications/stream", viewer(h.Stream.Stream)).Methods(http.MethodGet)
	api.Handle("/notifications/read-all", viewer(h.Notifications.MarkAllRead)).Methods(http.MethodPost)
	api.Handle("/notifications/{notificationID}", viewer(h.Notifications.Get)).Methods(http.MethodGet)
	api.Handle("/notifications/{notificationID}/read", viewer(h.Notifications.MarkRead)).Methods(http.MethodPost)
	api.Handle("/notifications/{notificationID}", viewer(h.Notifications.Delete)).Methods(http.MethodDelete)

	api.Handle("/events", admin(h.Events.Publish)).Methods(http.MethodPost)

	return router
}
