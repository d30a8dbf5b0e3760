package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traveldatawifi/zoho-token-service/internal/domain"
)

func testRatePolicy() RatePolicy {
	return RatePolicy{
		Ceiling:     10,
		Window:      time.Hour,
		BaseBackoff: 5 * time.Second,
		MaxBackoff:  5 * time.Minute,
	}
}

func newTestRateLimiter() (*RateLimiter, *fakeClock) {
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	limiter := NewRateLimiter()
	limiter.nowFn = clock.Now
	return limiter, clock
}

func TestEnforceCountsUpToCeiling(t *testing.T) {
	limiter, _ := newTestRateLimiter()
	pol := testRatePolicy()

	for i := 0; i < pol.Ceiling; i++ {
		require.NoError(t, limiter.Enforce(context.Background(), "commerce", pol))
	}

	err := limiter.Enforce(context.Background(), "commerce", pol)
	var rateErr *domain.RateLimitError
	require.ErrorAs(t, err, &rateErr)
	assert.Equal(t, time.Hour, rateErr.RetryAfter)
}

func TestEnforceWindowResets(t *testing.T) {
	limiter, clock := newTestRateLimiter()
	pol := testRatePolicy()

	for i := 0; i < pol.Ceiling; i++ {
		require.NoError(t, limiter.Enforce(context.Background(), "commerce", pol))
	}
	require.Error(t, limiter.Enforce(context.Background(), "commerce", pol))

	// A new hour opens a fresh budget.
	clock.Advance(61 * time.Minute)
	assert.NoError(t, limiter.Enforce(context.Background(), "commerce", pol))
}

func TestCeilingRejectionPointsAtWindowEnd(t *testing.T) {
	limiter, clock := newTestRateLimiter()
	pol := testRatePolicy()

	for i := 0; i < pol.Ceiling; i++ {
		require.NoError(t, limiter.Enforce(context.Background(), "commerce", pol))
	}

	// Mid-window the retry hint points at the window end, not a full hour out.
	clock.Advance(30 * time.Minute)
	err := limiter.Enforce(context.Background(), "commerce", pol)
	var rateErr *domain.RateLimitError
	require.ErrorAs(t, err, &rateErr)
	assert.Equal(t, 30*time.Minute, rateErr.RetryAfter)
}

func TestServicesLimitedIndependently(t *testing.T) {
	limiter, _ := newTestRateLimiter()
	pol := testRatePolicy()

	for i := 0; i < pol.Ceiling; i++ {
		require.NoError(t, limiter.Enforce(context.Background(), "commerce", pol))
	}
	require.Error(t, limiter.Enforce(context.Background(), "commerce", pol))

	assert.NoError(t, limiter.Enforce(context.Background(), "inventory", pol))
}

func TestRegisterThrottleBackoffGrowth(t *testing.T) {
	limiter, _ := newTestRateLimiter()
	pol := testRatePolicy()

	expected := []time.Duration{
		5 * time.Second,
		10 * time.Second,
		20 * time.Second,
		40 * time.Second,
		80 * time.Second,
		160 * time.Second,
		5 * time.Minute, // capped
		5 * time.Minute,
	}
	for i, want := range expected {
		got := limiter.RegisterThrottle("commerce", pol)
		assert.Equal(t, want, got, "backoff after %d failures", i)
	}
}

func TestResetFailuresRestartsBackoffLadder(t *testing.T) {
	limiter, _ := newTestRateLimiter()
	pol := testRatePolicy()

	limiter.RegisterThrottle("commerce", pol)
	limiter.RegisterFailure("commerce")
	limiter.RegisterFailure("commerce")

	assert.Equal(t, 3, limiter.ResetFailures("commerce"))
	assert.Equal(t, pol.BaseBackoff, limiter.RegisterThrottle("commerce", pol))
}

func TestEnforceRejectsImmediatelyDuringBackoff(t *testing.T) {
	limiter, _ := newTestRateLimiter()
	pol := testRatePolicy()

	backoff := limiter.RegisterThrottle("commerce", pol)
	require.Equal(t, 5*time.Second, backoff)

	err := limiter.Enforce(context.Background(), "commerce", pol)
	var rateErr *domain.RateLimitError
	require.ErrorAs(t, err, &rateErr)
	assert.Equal(t, backoff, rateErr.RetryAfter)
}

func TestEnforceWaitsThroughShortBackoff(t *testing.T) {
	limiter, _ := newTestRateLimiter()
	pol := testRatePolicy()
	pol.BaseBackoff = 20 * time.Millisecond
	pol.MaxEnforceWait = time.Second

	limiter.RegisterThrottle("commerce", pol)

	// The wait fits inside MaxEnforceWait, so Enforce sleeps instead of
	// bouncing the caller.
	assert.NoError(t, limiter.Enforce(context.Background(), "commerce", pol))
}

func TestEnforceWaitHonoursContextCancellation(t *testing.T) {
	limiter, _ := newTestRateLimiter()
	pol := testRatePolicy()
	pol.MaxEnforceWait = 10 * time.Second

	limiter.RegisterThrottle("commerce", pol)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := limiter.Enforce(ctx, "commerce", pol)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSweepPurgesStaleWindows(t *testing.T) {
	limiter, clock := newTestRateLimiter()
	pol := testRatePolicy()

	require.NoError(t, limiter.Enforce(context.Background(), "commerce", pol))
	require.NoError(t, limiter.Enforce(context.Background(), "inventory", pol))

	// A long backoff keeps its state alive even once the window is stale.
	longBackoff := pol
	longBackoff.BaseBackoff = 5 * time.Hour
	longBackoff.MaxBackoff = 10 * time.Hour
	limiter.RegisterThrottle("inventory", longBackoff)

	clock.Advance(3 * time.Hour)
	assert.Equal(t, 1, limiter.Sweep(2*time.Hour))

	snap := limiter.Snapshot()
	_, commerceKept := snap["commerce"]
	_, inventoryKept := snap["inventory"]
	assert.False(t, commerceKept)
	assert.True(t, inventoryKept)
}

func TestActiveBackoffs(t *testing.T) {
	limiter, clock := newTestRateLimiter()
	pol := testRatePolicy()

	assert.Equal(t, 0, limiter.ActiveBackoffs())

	limiter.RegisterThrottle("commerce", pol)
	assert.Equal(t, 1, limiter.ActiveBackoffs())

	clock.Advance(time.Minute)
	assert.Equal(t, 0, limiter.ActiveBackoffs())
}
