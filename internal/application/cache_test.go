package application

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traveldatawifi/zoho-token-service/internal/domain"
)

func TestLookupHonoursBufferWindow(t *testing.T) {
	cache := NewTokenCache()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	buffer := 10 * time.Minute

	cache.Store("commerce", &domain.TokenCacheEntry{
		AccessToken: "tok",
		ExpiresAt:   base.Add(30 * time.Minute),
	})

	assert.NotNil(t, cache.Lookup("commerce", base, buffer))
	assert.NotNil(t, cache.Lookup("commerce", base.Add(19*time.Minute), buffer))

	// 20 minutes in, the token has 10 minutes left: inside the buffer, so the
	// lookup must miss even though the issuer would still accept it.
	assert.Nil(t, cache.Lookup("commerce", base.Add(20*time.Minute), buffer))
	assert.Nil(t, cache.Lookup("commerce", base.Add(time.Hour), buffer))
}

func TestLookupReturnsACopy(t *testing.T) {
	cache := NewTokenCache()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	cache.Store("commerce", &domain.TokenCacheEntry{
		AccessToken: "tok",
		ExpiresAt:   base.Add(time.Hour),
	})

	got := cache.Lookup("commerce", base, 10*time.Minute)
	require.NotNil(t, got)
	got.AccessToken = "mutated"

	assert.Equal(t, "tok", cache.Peek("commerce").AccessToken)
}

func TestPeekIgnoresFreshness(t *testing.T) {
	cache := NewTokenCache()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	cache.Store("commerce", &domain.TokenCacheEntry{
		AccessToken:  "tok",
		ExpiresAt:    base.Add(-time.Hour), // long expired
		RefreshCount: 4,
	})

	assert.Nil(t, cache.Lookup("commerce", base, 10*time.Minute))
	got := cache.Peek("commerce")
	require.NotNil(t, got)
	assert.Equal(t, int64(4), got.RefreshCount)
}

func TestDeleteAndDeleteAll(t *testing.T) {
	cache := NewTokenCache()
	cache.Store("commerce", &domain.TokenCacheEntry{AccessToken: "a"})
	cache.Store("inventory", &domain.TokenCacheEntry{AccessToken: "b"})

	assert.True(t, cache.Delete("commerce"))
	assert.False(t, cache.Delete("commerce"))
	assert.Equal(t, 1, cache.Size())

	assert.Equal(t, 1, cache.DeleteAll())
	assert.Equal(t, 0, cache.Size())
}

func TestSweepRemovesStaleEntries(t *testing.T) {
	cache := NewTokenCache()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	buffer := 10 * time.Minute

	cache.Store("fresh", &domain.TokenCacheEntry{AccessToken: "a", ExpiresAt: base.Add(time.Hour)})
	cache.Store("stale", &domain.TokenCacheEntry{AccessToken: "b", ExpiresAt: base.Add(5 * time.Minute)})

	assert.Equal(t, 1, cache.Sweep(base, buffer))
	assert.Equal(t, 1, cache.Size())
	assert.NotNil(t, cache.Peek("fresh"))
	assert.Nil(t, cache.Peek("stale"))
}
