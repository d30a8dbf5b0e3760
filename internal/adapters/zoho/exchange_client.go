package zoho

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/traveldatawifi/zoho-token-service/internal/adapters/config"
	"github.com/traveldatawifi/zoho-token-service/internal/domain"
)

// tokenResponse is the issuer's reply to a refresh-token grant. Zoho returns
// HTTP 200 with an "error" field for some failures, so Error must be checked
// even on success statuses.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	Error       string `json:"error"`
}

// ExchangeClient performs the OAuth2 refresh-token grant against the Zoho
// accounts endpoint. It implements domain.TokenExchanger.
type ExchangeClient struct {
	httpClient *http.Client
	logger     domain.Logger
}

// NewExchangeClient creates an exchange client with the configured request
// timeout (default 30s). A timeout surfaces as AuthenticationFailed, never as
// a silent retry.
func NewExchangeClient(cfgProvider config.Provider, logger domain.Logger) *ExchangeClient {
	if logger == nil {
		panic("logger cannot be nil in NewExchangeClient")
	}

	timeoutSeconds := 30
	if cfgProvider != nil {
		if s := cfgProvider.Get().Coordinator.ExchangeTimeoutSeconds; s > 0 {
			timeoutSeconds = s
		}
	}

	return &ExchangeClient{
		httpClient: &http.Client{Timeout: time.Duration(timeoutSeconds) * time.Second},
		logger:     logger,
	}
}

// Exchange posts the refresh-token grant and parses the response. Throttling
// (HTTP 429 or a throttle message in the body) wraps domain.ErrIssuerThrottled
// so the coordinator can open a backoff window; every other failure is a
// *domain.AuthFailedError.
func (c *ExchangeClient) Exchange(ctx context.Context, service string, creds domain.ServiceCredentials) (*domain.TokenExchangeResult, error) {
	form := url.Values{}
	form.Set("refresh_token", creds.RefreshToken)
	form.Set("client_id", creds.ClientID)
	form.Set("client_secret", creds.ClientSecret)
	form.Set("grant_type", "refresh_token")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, creds.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &domain.AuthFailedError{Service: service, Cause: fmt.Errorf("failed to build token request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error(ctx, "Token exchange request failed", "token_url", creds.TokenURL, "error", err.Error())
		return nil, &domain.AuthFailedError{Service: service, Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &domain.AuthFailedError{Service: service, Cause: fmt.Errorf("failed to read token response: %w", err)}
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		c.logger.Warn(ctx, "Issuer returned 429 for token exchange", "token_url", creds.TokenURL)
		return nil, fmt.Errorf("%w: HTTP 429 from %s", domain.ErrIssuerThrottled, creds.TokenURL)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error(ctx, "Token exchange returned non-2xx status",
			"status", resp.StatusCode, "token_url", creds.TokenURL)
		return nil, &domain.AuthFailedError{
			Service: service,
			Cause:   fmt.Errorf("token exchange returned status %d", resp.StatusCode),
		}
	}

	var parsed tokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &domain.AuthFailedError{Service: service, Cause: fmt.Errorf("malformed token response JSON: %w", err)}
	}

	// Zoho reports some throttles inside a 200 body.
	if parsed.Error != "" {
		if isThrottleMessage(parsed.Error) {
			c.logger.Warn(ctx, "Issuer reported throttling in response body", "issuer_error", parsed.Error)
			return nil, fmt.Errorf("%w: %s", domain.ErrIssuerThrottled, parsed.Error)
		}
		return nil, &domain.AuthFailedError{
			Service: service,
			Cause:   fmt.Errorf("issuer error: %s", parsed.Error),
		}
	}

	// A success status without a token field is still a failure.
	if parsed.AccessToken == "" {
		return nil, &domain.AuthFailedError{
			Service: service,
			Cause:   fmt.Errorf("token response missing access_token field"),
		}
	}

	if parsed.ExpiresIn <= 0 {
		parsed.ExpiresIn = 3600
	}

	return &domain.TokenExchangeResult{
		AccessToken: parsed.AccessToken,
		ExpiresIn:   parsed.ExpiresIn,
	}, nil
}

func isThrottleMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "too many requests") || strings.Contains(lower, "rate limit")
}
