package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/editactf/engine/internal/auth"
	"github.com/editactf/engine/internal/ctf"
)

// AuthMiddleware resolves bearer tokens to users.
type AuthMiddleware struct {
	service *ctf.Service
}

// NewAuthMiddleware creates new auth middleware.
func NewAuthMiddleware(service *ctf.Service) *AuthMiddleware {
	return &AuthMiddleware{service: service}
}

// Attach resolves the Authorization header when present and stores the user
// in the request context. Anonymous requests pass through untouched; only a
// token that is present but invalid is rejected, so a client never silently
// degrades to guest.
func (m *AuthMiddleware) Attach(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearer(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		user, err := m.service.UserForToken(r.Context(), token)
		if errors.Is(err, auth.ErrInvalidToken) {
			respondError(w, http.StatusUnauthorized, "invalid_token", "the provided token is not valid")
			return
		}
		if err != nil {
			slog.Error("failed to resolve token", "error", err)
			respondError(w, http.StatusInternalServerError, "auth_error", "internal server error")
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), user)))
	})
}

// RequireUser rejects anonymous requests.
func (m *AuthMiddleware) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserFromContext(r.Context()) == nil {
			respondError(w, http.StatusUnauthorized, "not_authenticated", "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// extractBearer extracts the bearer token from the Authorization header.
func extractBearer(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}
