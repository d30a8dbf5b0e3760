package domain

import "context"

// ServiceCredentials holds the OAuth client credentials for one named service.
// All three credential fields are required; TokenURL falls back to the
// configured default Zoho accounts endpoint when empty.
type ServiceCredentials struct {
	RefreshToken string
	ClientID     string
	ClientSecret string
	TokenURL     string
}

// TokenExchangeResult is the parsed success response of a refresh-token grant.
type TokenExchangeResult struct {
	AccessToken string
	// ExpiresIn is the issuer-reported validity in seconds.
	ExpiresIn int64
}

// TokenExchanger performs the actual HTTPS refresh-token exchange against the
// issuer. Failures signalled as throttling wrap ErrIssuerThrottled; all other
// failures are surfaced as *AuthFailedError.
type TokenExchanger interface {
	Exchange(ctx context.Context, service string, creds ServiceCredentials) (*TokenExchangeResult, error)
}
