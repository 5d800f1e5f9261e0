package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mmynk/salonwise/internal/auth"
	"github.com/mmynk/salonwise/internal/models"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// IdentityKey is the context key for the caller's Identity.
const IdentityKey contextKey = "identity"

// IdentityFromContext returns the caller's identity, or models.Guest if none was set.
func IdentityFromContext(ctx context.Context) models.Identity {
	id, ok := ctx.Value(IdentityKey).(models.Identity)
	if !ok {
		return models.Guest
	}
	return id
}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id models.Identity) context.Context {
	return context.WithValue(ctx, IdentityKey, id)
}

// OptionalAuth validates a Bearer token if present. A valid token makes the caller
// an authenticated customer; a missing or invalid token leaves them a guest, so
// cash checkout keeps working without sign-in.
func OptionalAuth(jwtManager *auth.JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := models.Guest

			if tokenString, ok := bearerToken(r); ok {
				claims, err := jwtManager.Validate(tokenString)
				if err == nil {
					id = claims.Identity()
				} else {
					slog.Debug("Ignoring invalid identity token", "path", r.URL.Path, "error", err)
				}
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
