package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorCode represents a specific error condition.
type ErrorCode string

const (
	ErrInvalidAPIKey        ErrorCode = "InvalidAPIKey"        // HTTP 401
	ErrCodeRateLimited      ErrorCode = "RateLimitExceeded"    // HTTP 429
	ErrCodeAuthFailed       ErrorCode = "AuthenticationFailed" // HTTP 502, upstream exchange failed
	ErrCodeConfiguration    ErrorCode = "ConfigurationError"   // HTTP 500, missing credentials
	ErrBadRequest           ErrorCode = "BadRequest"           // HTTP 400
	ErrMethodNotAllowed     ErrorCode = "MethodNotAllowed"     // HTTP 405
	ErrInternal             ErrorCode = "InternalServerError"  // HTTP 500
	ErrServiceNotConfigured ErrorCode = "ServiceNotConfigured" // HTTP 404, unknown service name
)

// ErrorResponse is the standard error format returned to clients as HTTP JSON.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
}

// NewErrorResponse creates a new ErrorResponse struct.
func NewErrorResponse(code ErrorCode, message string, details string) ErrorResponse {
	return ErrorResponse{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// WriteJSON sends an ErrorResponse as JSON with the given HTTP status code.
func (er ErrorResponse) WriteJSON(w http.ResponseWriter, httpStatusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatusCode)
	json.NewEncoder(w).Encode(er) // Best effort, error from Encode is not typically handled here.
}

// ErrIssuerThrottled marks an exchange failure that the issuer signalled as
// rate limiting (HTTP 429 or a throttle message in the body). The coordinator
// translates it into a RateLimitError with a computed backoff.
var ErrIssuerThrottled = errors.New("issuer signalled rate limiting")

// RateLimitError is returned when the hourly refresh ceiling is reached or an
// active backoff window forbids a refresh. Callers should retry no earlier
// than RetryAfter.
type RateLimitError struct {
	Service    string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for service %q, retry after %s", e.Service, e.RetryAfter.Round(time.Second))
}

// AuthFailedError is returned when a token exchange fails for any reason other
// than rate limiting: non-2xx status, malformed JSON, a success response with
// no token, or a network timeout. The coordinator never retries these itself.
type AuthFailedError struct {
	Service string
	Cause   error
}

func (e *AuthFailedError) Error() string {
	return fmt.Sprintf("token exchange failed for service %q: %v", e.Service, e.Cause)
}

func (e *AuthFailedError) Unwrap() error { return e.Cause }

// ConfigError is returned when required credentials for a service are missing.
// It is raised before any network call and is never retried.
type ConfigError struct {
	Service string
	Field   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("missing %s for service %q", e.Field, e.Service)
}
