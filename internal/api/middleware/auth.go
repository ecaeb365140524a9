package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/automation/internal/api/response"
	"github.com/edvin/automation/internal/model"
)

type contextKey string

const APIKeyIdentityKey contextKey = "api_key_identity"

// Authenticator resolves a raw API key. *core.APIKeyService satisfies it.
type Authenticator interface {
	Authenticate(ctx context.Context, rawKey string) (*model.APIKey, error)
}

// Auth returns a middleware that validates the X-API-Key header (or a
// bearer token) against the api_keys table.
func Auth(keys Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get("X-API-Key")
			if raw == "" {
				raw = extractAPIKey(r)
			}
			if raw == "" {
				response.WriteError(w, http.StatusUnauthorized, "missing API key")
				return
			}

			key, err := keys.Authenticate(r.Context(), raw)
			if err != nil {
				response.WriteError(w, http.StatusUnauthorized, "invalid API key")
				return
			}

			ctx := context.WithValue(r.Context(), APIKeyIdentityKey, key)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireTenant rejects requests for a {tenantID} the key is not scoped to.
// It must run inside a route that declares the tenantID parameter.
func RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := GetIdentity(r.Context())
		if key == nil {
			response.WriteError(w, http.StatusUnauthorized, "missing API key")
			return
		}
		if !key.AllowsTenant(chi.URLParam(r, "tenantID")) {
			response.WriteError(w, http.StatusForbidden, "no access to this tenant")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetIdentity returns the authenticated key, or nil.
func GetIdentity(ctx context.Context) *model.APIKey {
	key, _ := ctx.Value(APIKeyIdentityKey).(*model.APIKey)
	return key
}

func extractAPIKey(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return token
	}
	return ""
}
