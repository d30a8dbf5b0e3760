package domain

import "time"

// TokenCacheEntry holds the cached OAuth access token for one named service.
// Entries are owned exclusively by the token coordinator: they are created on
// the first successful exchange and replaced wholesale on every refresh, never
// mutated field by field.
type TokenCacheEntry struct {
	AccessToken  string    `json:"access_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	LastRefresh  time.Time `json:"last_refresh"`
	RefreshCount int64     `json:"refresh_count"`
	FailureCount int64     `json:"failure_count"`
}

// Fresh reports whether the entry may still be served to a caller at the given
// instant. An entry within the buffer window of its expiry is treated as a
// miss so a caller never starts an operation with a token that could expire
// mid-flight.
func (e *TokenCacheEntry) Fresh(now time.Time, buffer time.Duration) bool {
	if e == nil || e.AccessToken == "" {
		return false
	}
	return now.Before(e.ExpiresAt.Add(-buffer))
}

// RateLimitState tracks refresh attempts for one named service inside a
// rolling one-hour window. Like cache entries, it is owned by the coordinator.
type RateLimitState struct {
	WindowStart  time.Time `json:"window_start"`
	RequestCount int       `json:"request_count"`
	BackoffUntil time.Time `json:"backoff_until"`
	LastRequest  time.Time `json:"last_request"`
	// FailureCount counts consecutive failed exchanges since the last success
	// and drives exponential backoff growth.
	FailureCount int `json:"failure_count"`
}

// ServiceStatus is the per-service slice of a status snapshot.
type ServiceStatus struct {
	HasToken         bool      `json:"has_token"` // the token itself is never exposed
	ExpiresAt        time.Time `json:"expires_at,omitempty"`
	LastRefresh      time.Time `json:"last_refresh,omitempty"`
	RefreshCount     int64     `json:"refresh_count"`
	FailureCount     int64     `json:"failure_count"`
	RequestsInWindow int       `json:"requests_in_window"`
	BackoffUntil     time.Time `json:"backoff_until,omitempty"`
}

// StatusSnapshot is the observability view returned by the coordinator for
// health-check and dashboard endpoints.
type StatusSnapshot struct {
	CacheSize      int                      `json:"cache_size"`
	StoreDegraded  bool                     `json:"store_degraded"`
	ActiveBackoffs int                      `json:"active_backoffs"`
	Services       map[string]ServiceStatus `json:"services"`
}
