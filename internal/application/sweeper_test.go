package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traveldatawifi/zoho-token-service/internal/adapters/config"
	"github.com/traveldatawifi/zoho-token-service/internal/domain"
)

func TestSweepRemovesExpiredTokensAndStaleWindows(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	cache := NewTokenCache()
	limiter := NewRateLimiter()
	limiter.nowFn = clock.Now

	sweeper := NewSweeper(nopLogger{}, &staticProvider{cfg: &config.Config{}}, cache, limiter)
	sweeper.nowFn = clock.Now

	cache.Store("fresh", &domain.TokenCacheEntry{AccessToken: "a", ExpiresAt: clock.Now().Add(time.Hour)})
	cache.Store("stale", &domain.TokenCacheEntry{AccessToken: "b", ExpiresAt: clock.Now().Add(5 * time.Minute)})
	require.NoError(t, limiter.Enforce(context.Background(), "idle", testRatePolicy()))

	clock.Advance(3 * time.Hour)
	sweeper.sweep(context.Background())

	assert.Equal(t, 0, cache.Size())
	assert.Empty(t, limiter.Snapshot())
}

func TestSweeperStartRejectsDoubleStart(t *testing.T) {
	sweeper := NewSweeper(nopLogger{}, &staticProvider{cfg: &config.Config{}}, NewTokenCache(), NewRateLimiter())

	require.NoError(t, sweeper.Start(context.Background()))
	defer sweeper.Stop()

	assert.Error(t, sweeper.Start(context.Background()))
}
