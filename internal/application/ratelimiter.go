package application

import (
	"context"
	"sync"
	"time"

	"github.com/traveldatawifi/zoho-token-service/internal/domain"
)

// RatePolicy carries the refresh-limiting knobs, resolved from config per call
// so hot reloads take effect without restarting.
type RatePolicy struct {
	Ceiling     int           // max refreshes per window
	Window      time.Duration // rolling counting window, 1 hour
	BaseBackoff time.Duration // first failure backoff
	MaxBackoff  time.Duration // backoff cap
	// MaxEnforceWait bounds how long Enforce may sleep through a short backoff
	// before giving up. Zero means never sleep: raise immediately so
	// caller-facing latency stays bounded.
	MaxEnforceWait time.Duration
}

// RateLimiter tracks refresh attempts per named service inside a rolling
// window and enforces failure-driven backoff. Services are independent:
// exhausting one service's quota never blocks another's.
type RateLimiter struct {
	mu     sync.Mutex
	states map[string]*domain.RateLimitState
	nowFn  func() time.Time
}

// NewRateLimiter creates a rate limiter with lazily initialized per-service state.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		states: make(map[string]*domain.RateLimitState),
		nowFn:  time.Now,
	}
}

// stateLocked returns the state for service, creating it on first use.
// Callers must hold l.mu.
func (l *RateLimiter) stateLocked(service string) *domain.RateLimitState {
	st, ok := l.states[service]
	if !ok {
		st = &domain.RateLimitState{WindowStart: l.nowFn()}
		l.states[service] = st
	}
	return st
}

// Enforce gates one refresh attempt for service. It resets the counting
// window when elapsed, honours an active backoff (sleeping only if the
// remaining wait fits inside pol.MaxEnforceWait), and checks the ceiling
// BEFORE incrementing so the ceiling is a hard upper bound. On success the
// attempt is counted.
func (l *RateLimiter) Enforce(ctx context.Context, service string, pol RatePolicy) error {
	l.mu.Lock()

	st := l.stateLocked(service)
	now := l.nowFn()

	if now.Sub(st.WindowStart) > pol.Window {
		st.WindowStart = now
		st.RequestCount = 0
	}

	if now.Before(st.BackoffUntil) {
		wait := st.BackoffUntil.Sub(now)
		if pol.MaxEnforceWait <= 0 || wait > pol.MaxEnforceWait {
			l.mu.Unlock()
			return &domain.RateLimitError{Service: service, RetryAfter: wait}
		}
		// Short backoff: sleep through it rather than bouncing the caller.
		l.mu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		l.mu.Lock()
		// Re-fetch: the sweeper may have purged the state while we slept.
		st = l.stateLocked(service)
		now = l.nowFn()
		if now.Sub(st.WindowStart) > pol.Window {
			st.WindowStart = now
			st.RequestCount = 0
		}
	}

	if st.RequestCount >= pol.Ceiling {
		st.BackoffUntil = st.WindowStart.Add(pol.Window)
		wait := st.BackoffUntil.Sub(now)
		l.mu.Unlock()
		return &domain.RateLimitError{Service: service, RetryAfter: wait}
	}

	st.RequestCount++
	st.LastRequest = now
	l.mu.Unlock()
	return nil
}

// RegisterThrottle records an issuer-signalled throttle for service and
// computes the exponential backoff: base * 2^failures, capped at MaxBackoff.
// It returns the backoff applied.
func (l *RateLimiter) RegisterThrottle(service string, pol RatePolicy) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.stateLocked(service)

	backoff := pol.BaseBackoff
	for i := 0; i < st.FailureCount; i++ {
		backoff *= 2
		if backoff >= pol.MaxBackoff {
			backoff = pol.MaxBackoff
			break
		}
	}
	if backoff > pol.MaxBackoff {
		backoff = pol.MaxBackoff
	}

	st.FailureCount++
	st.BackoffUntil = l.nowFn().Add(backoff)
	return backoff
}

// RegisterFailure records a non-throttle exchange failure. It grows the
// consecutive failure count (so later throttles back off harder) without
// opening a backoff window.
func (l *RateLimiter) RegisterFailure(service string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stateLocked(service).FailureCount++
}

// ResetFailures clears the consecutive failure count after a successful
// exchange and returns the count that was cleared.
func (l *RateLimiter) ResetFailures(service string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.stateLocked(service)
	n := st.FailureCount
	st.FailureCount = 0
	return n
}

// Sweep purges state whose window is older than purgeAge and has no active
// backoff, returning the number of services purged.
func (l *RateLimiter) Sweep(purgeAge time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFn()
	purged := 0
	for service, st := range l.states {
		if now.Sub(st.WindowStart) > purgeAge && now.After(st.BackoffUntil) {
			delete(l.states, service)
			purged++
		}
	}
	return purged
}

// ActiveBackoffs counts services currently inside a backoff window.
func (l *RateLimiter) ActiveBackoffs() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFn()
	n := 0
	for _, st := range l.states {
		if now.Before(st.BackoffUntil) {
			n++
		}
	}
	return n
}

// Snapshot returns a copy of all per-service state for status reporting.
func (l *RateLimiter) Snapshot() map[string]domain.RateLimitState {
	l.mu.Lock()
	defer l.mu.Unlock()

	snap := make(map[string]domain.RateLimitState, len(l.states))
	for service, st := range l.states {
		snap[service] = *st
	}
	return snap
}
