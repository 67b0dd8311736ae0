package authz

import (
	"context"
	"net/http"

	"github.com/stanstork/beacon/internal/models"
)

type contextKey string

const (
	userIDKey    contextKey = "user_id"
	userRolesKey contextKey = "user_roles"
)

// WithIdentity stores the caller's user ID and roles on the context.
func WithIdentity(ctx context.Context, userID string, roles []models.UserRole) context.Context {
	if userID != "" {
		ctx = context.WithValue(ctx, userIDKey, userID)
	}
	normalized := models.EnsureDefaultRole(models.NormalizeRoles(roles))
	return context.WithValue(ctx, userRolesKey, normalized)
}

func UserIDFromRequest(r *http.Request) (string, bool) {
	uid, ok := r.Context().Value(userIDKey).(string)
	if !ok || uid == "" {
		return "", false
	}
	return uid, true
}

func RolesFromRequest(r *http.Request) ([]models.UserRole, bool) {
	roles, ok := r.Context().Value(userRolesKey).([]models.UserRole)
	if !ok || !models.IsValidRoleList(roles) {
		return nil, false
	}
	return roles, true
}
