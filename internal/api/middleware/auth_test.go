package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/automation/internal/model"
)

type fakeAuthenticator map[string]*model.APIKey

func (f fakeAuthenticator) Authenticate(_ context.Context, rawKey string) (*model.APIKey, error) {
	if k, ok := f[rawKey]; ok {
		return k, nil
	}
	return nil, errors.New("not found")
}

var keys = fakeAuthenticator{
	"auk_admin_key": {ID: "key-admin", Tenants: []string{"*"}},
	"auk_t1_key":    {ID: "key-t1", Tenants: []string{"tenant-1"}},
}

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestAuth_MissingKey(t *testing.T) {
	h := Auth(keys)(http.HandlerFunc(okHandler))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/tenants/tenant-1/automation/analytics", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "missing API key", errorBody(t, rec))
}

func TestAuth_InvalidKey(t *testing.T) {
	h := Auth(keys)(http.HandlerFunc(okHandler))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-API-Key", "auk_unknown")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid API key", errorBody(t, rec))
}

func TestAuth_BearerTokenSetsIdentity(t *testing.T) {
	var got *model.APIKey
	h := Auth(keys)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetIdentity(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer auk_t1_key")
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, got)
	assert.Equal(t, "key-t1", got.ID)
}

func TestExtractAPIKey(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"bearer token", "Bearer auk_abc123", "auk_abc123"},
		{"empty", "", ""},
		{"no prefix", "auk_abc123", ""},
		{"basic auth ignored", "Basic dXNlcjpwYXNz", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.want, extractAPIKey(req))
		})
	}
}

func TestRequireTenant(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Auth(keys))
	r.With(RequireTenant).Get("/tenants/{tenantID}/rules", okHandler)

	tests := []struct {
		key    string
		tenant string
		want   int
	}{
		{"auk_admin_key", "tenant-9", http.StatusOK},
		{"auk_t1_key", "tenant-1", http.StatusOK},
		{"auk_t1_key", "tenant-2", http.StatusForbidden},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/tenants/"+tt.tenant+"/rules", nil)
		req.Header.Set("X-API-Key", tt.key)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		assert.Equal(t, tt.want, rec.Code, "%s on %s", tt.key, tt.tenant)
	}
}

func TestRequireTenant_NoIdentity(t *testing.T) {
	rec := httptest.NewRecorder()
	RequireTenant(http.HandlerFunc(okHandler)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
