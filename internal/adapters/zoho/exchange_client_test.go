package zoho

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traveldatawifi/zoho-token-service/internal/domain"
)

type nopLogger struct{}

func (nopLogger) Debug(context.Context, string, ...any) {}
func (nopLogger) Info(context.Context, string, ...any)  {}
func (nopLogger) Warn(context.Context, string, ...any)  {}
func (nopLogger) Error(context.Context, string, ...any) {}
func (nopLogger) Fatal(context.Context, string, ...any) {}
func (l nopLogger) With(...any) domain.Logger           { return l }

func testCreds(tokenURL string) domain.ServiceCredentials {
	return domain.ServiceCredentials{
		RefreshToken: "refresh-123",
		ClientID:     "client-abc",
		ClientSecret: "secret-xyz",
		TokenURL:     tokenURL,
	}
}

func TestExchangeSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "refresh_token", r.PostFormValue("grant_type"))
		assert.Equal(t, "refresh-123", r.PostFormValue("refresh_token"))
		assert.Equal(t, "client-abc", r.PostFormValue("client_id"))
		assert.Equal(t, "secret-xyz", r.PostFormValue("client_secret"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"new-token","expires_in":3600}`))
	}))
	defer srv.Close()

	client := NewExchangeClient(nil, nopLogger{})
	result, err := client.Exchange(context.Background(), "commerce", testCreds(srv.URL))
	require.NoError(t, err)
	assert.Equal(t, "new-token", result.AccessToken)
	assert.Equal(t, int64(3600), result.ExpiresIn)
}

func TestExchangeDefaultsMissingExpiry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"access_token":"new-token"}`))
	}))
	defer srv.Close()

	client := NewExchangeClient(nil, nopLogger{})
	result, err := client.Exchange(context.Background(), "commerce", testCreds(srv.URL))
	require.NoError(t, err)
	assert.Equal(t, int64(3600), result.ExpiresIn)
}

func TestExchange429IsThrottled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewExchangeClient(nil, nopLogger{})
	_, err := client.Exchange(context.Background(), "commerce", testCreds(srv.URL))
	assert.ErrorIs(t, err, domain.ErrIssuerThrottled)
}

func TestExchangeBodyThrottleMessage(t *testing.T) {
	// Zoho reports some throttles inside an HTTP 200 body.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"error":"Access Denied: too many requests"}`))
	}))
	defer srv.Close()

	client := NewExchangeClient(nil, nopLogger{})
	_, err := client.Exchange(context.Background(), "commerce", testCreds(srv.URL))
	assert.ErrorIs(t, err, domain.ErrIssuerThrottled)
}

func TestExchangeIssuerErrorIsAuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"error":"invalid_code"}`))
	}))
	defer srv.Close()

	client := NewExchangeClient(nil, nopLogger{})
	_, err := client.Exchange(context.Background(), "commerce", testCreds(srv.URL))

	var authErr *domain.AuthFailedError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "commerce", authErr.Service)
	assert.NotErrorIs(t, err, domain.ErrIssuerThrottled)
}

func TestExchangeNon2xxIsAuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewExchangeClient(nil, nopLogger{})
	_, err := client.Exchange(context.Background(), "commerce", testCreds(srv.URL))

	var authErr *domain.AuthFailedError
	assert.ErrorAs(t, err, &authErr)
}

func TestExchangeMalformedJSONIsAuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`<html>not json</html>`))
	}))
	defer srv.Close()

	client := NewExchangeClient(nil, nopLogger{})
	_, err := client.Exchange(context.Background(), "commerce", testCreds(srv.URL))

	var authErr *domain.AuthFailedError
	assert.ErrorAs(t, err, &authErr)
}

func TestExchangeMissingTokenFieldIsAuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"expires_in":3600}`))
	}))
	defer srv.Close()

	client := NewExchangeClient(nil, nopLogger{})
	_, err := client.Exchange(context.Background(), "commerce", testCreds(srv.URL))

	var authErr *domain.AuthFailedError
	assert.ErrorAs(t, err, &authErr)
}

func TestExchangeUnreachableIssuerIsAuthFailure(t *testing.T) {
	client := NewExchangeClient(nil, nopLogger{})
	_, err := client.Exchange(context.Background(), "commerce", testCreds("http://127.0.0.1:1"))

	var authErr *domain.AuthFailedError
	assert.ErrorAs(t, err, &authErr)
}
