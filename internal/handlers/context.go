package handlers

import (
	"net/http"

	"github.com/stanstork/beacon/internal/authz"
)

// requireUser writes 401 and returns false when the request carries no identity.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	uid, ok := authz.UserIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing user context", http.StatusUnauthorized)
		return "", false
	}
	return uid, true
}
