package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/traveldatawifi/zoho-token-service/internal/adapters/config"
	"github.com/traveldatawifi/zoho-token-service/internal/domain"
	"github.com/traveldatawifi/zoho-token-service/pkg/contextkeys"
)

type nopLogger struct{}

func (nopLogger) Debug(context.Context, string, ...any) {}
func (nopLogger) Info(context.Context, string, ...any)  {}
func (nopLogger) Warn(context.Context, string, ...any)  {}
func (nopLogger) Error(context.Context, string, ...any) {}
func (nopLogger) Fatal(context.Context, string, ...any) {}
func (l nopLogger) With(...any) domain.Logger           { return l }

type staticProvider struct{ cfg *config.Config }

func (p *staticProvider) Get() *config.Config { return p.cfg }

func authTestHandler(apiKey string) http.Handler {
	provider := &staticProvider{cfg: &config.Config{Auth: config.AuthConfig{AdminAPIKey: apiKey}}}
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return AdminAPIKeyAuthMiddleware(provider, nopLogger{})(next)
}

func TestAdminAuthAcceptsValidKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("X-API-Key", "valid-key")
	rec := httptest.NewRecorder()

	authTestHandler("valid-key").ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestAdminAuthRejectsMissingKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()

	authTestHandler("valid-key").ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminAuthRejectsWrongKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("X-API-Key", "wrong")
	rec := httptest.NewRecorder()

	authTestHandler("valid-key").ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminAuthFailsClosedWhenUnconfigured(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("X-API-Key", "anything")
	rec := httptest.NewRecorder()

	authTestHandler("").ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRequestIDMiddlewarePropagatesHeader(t *testing.T) {
	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = r.Context().Value(contextkeys.RequestIDKey).(string)
		w.WriteHeader(http.StatusOK)
	})

	// Provided request IDs are preserved.
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(XRequestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	RequestIDMiddleware(next).ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Header().Get(XRequestIDHeader))
	assert.Equal(t, "req-123", seen)

	// Absent ones are generated.
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	rec = httptest.NewRecorder()
	RequestIDMiddleware(next).ServeHTTP(rec, req)
	assert.NotEmpty(t, rec.Header().Get(XRequestIDHeader))
	assert.NotEmpty(t, seen)
}
