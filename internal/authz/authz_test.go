package authz

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stanstork/beacon/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestWithIdentityAddsViewer(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(WithIdentity(r.Context(), "ana", []models.UserRole{" Admin ", "admin"}))

	uid, ok := UserIDFromRequest(r)
	assert.True(t, ok)
	assert.Equal(t, "ana", uid)

	roles, ok := RolesFromRequest(r)
	assert.True(t, ok)
	assert.Equal(t, []models.UserRole{models.RoleAdmin, models.RoleViewer}, roles)
}

func TestRequireRole(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	tests := []struct {
		name  string
		roles []models.UserRole
		want  int
	}{
		{"viewer denied", []models.UserRole{models.RoleViewer}, http.StatusForbidden},
		{"editor denied", []models.UserRole{models.RoleEditor}, http.StatusForbidden},
		{"admin allowed", []models.UserRole{models.RoleAdmin}, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/rules", nil)
			r = r.WithContext(WithIdentity(r.Context(), "u", tt.roles))
			w := httptest.NewRecorder()
			RequireRoleHandler(models.RoleAdmin, ok).ServeHTTP(w, r)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestRequireRoleWithoutIdentity(t *testing.T) {
	w := httptest.NewRecorder()
	RequireRole(models.RoleViewer)(http.NotFoundHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
}
