package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/salonwise/internal/auth"
	"github.com/mmynk/salonwise/internal/models"
)

func TestOptionalAuth(t *testing.T) {
	jwtManager := auth.NewJWTManager("test-secret", time.Hour)
	token, err := jwtManager.Generate(models.Identity{CustomerID: "cust-1", Name: "Lea"})
	require.NoError(t, err)

	var seen models.Identity
	handler := OptionalAuth(jwtManager)(RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})))

	tests := []struct {
		name       string
		header     string
		wantAuthed bool
	}{
		{"no header", "", false},
		{"valid token", "Bearer " + token, true},
		{"invalid token", "Bearer nope", false},
		{"wrong scheme", "Basic " + token, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/me/wallet", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusNoContent, rec.Code)
			assert.Equal(t, tt.wantAuthed, seen.IsAuthenticated)
			if tt.wantAuthed {
				assert.Equal(t, "cust-1", seen.CustomerID)
				assert.Equal(t, "Lea", seen.Name)
			} else {
				assert.Equal(t, models.Guest, seen)
			}
		})
	}
}
