package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/rs/zerolog"
	"github.com/stanstork/beacon/internal/authz"
	"github.com/stanstork/beacon/internal/models"
)

// Authenticator validates bearer tokens issued by the upstream identity service.
// Tokens carry the user ID in "sub" and roles in "roles" (or a single "role").
type Authenticator struct {
	jwtSecret []byte
	logger    zerolog.Logger
}

func NewAuthenticator(secret string, logger zerolog.Logger) *Authenticator {
	return &Authenticator{
		jwtSecret: []byte(secret),
		logger:    logger.With().Str("handler", "auth").Logger(),
	}
}

func (a *Authenticator) JWTMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, ok := bearerToken(r)
		if !ok {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}
		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return a.jwtSecret, nil
		})
		if err != nil || !token.Valid {
			a.logger.Debug().Err(err).Msg("rejected token")
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok || !claims.VerifyExpiresAt(time.Now().Unix(), true) {
			http.Error(w, "Token expired", http.StatusUnauthorized)
			return
		}
		userID, _ := claims["sub"].(string)
		if strings.TrimSpace(userID) == "" {
			http.Error(w, "Missing subject claim", http.StatusUnauthorized)
			return
		}
		roles, ok := extractRolesFromClaims(claims)
		if !ok {
			http.Error(w, "Missing role claim", http.StatusUnauthorized)
			return
		}

		ctx := authz.WithIdentity(r.Context(), userID, roles)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearerToken reads the Authorization header, falling back to an access_token
// query parameter for EventSource clients that cannot set headers.
func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		if t := r.URL.Query().Get("access_token"); t != "" && strings.HasSuffix(r.URL.Path, "/stream") {
			return t, true
		}
		return "", false
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func extractRolesFromClaims(claims jwt.MapClaims) ([]models.UserRole, bool) {
	rawRoles, ok := claims["roles"]
	if !ok {
		if single, ok := claims["role"].(string); ok && single != "" {
			role := models.UserRole(single)
			if !models.IsValidRole(role) {
				return nil, false
			}
			return []models.UserRole{role}, true
		}
		return nil, false
	}

	list, ok := rawRoles.([]interface{})
	if !ok {
		return nil, false
	}
	roles := make([]models.UserRole, 0, len(list))
	for _, val := range list {
		str, ok := val.(string)
		if !ok {
			return nil, false
		}
		role := models.UserRole(strings.ToLower(strings.TrimSpace(str)))
		if !models.IsValidRole(role) {
			return nil, false
		}
		roles = append(roles, role)
	}
	return roles, len(roles) > 0
}
