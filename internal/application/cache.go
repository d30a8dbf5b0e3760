package application

import (
	"sync"
	"time"

	"github.com/traveldatawifi/zoho-token-service/internal/domain"
)

// TokenCache holds the in-memory token entries, keyed by service name.
// It is a dumb map with freshness checks; all policy (when to refresh, what to
// persist) lives in the Coordinator, which is the cache's only writer.
type TokenCache struct {
	mu      sync.RWMutex
	entries map[string]*domain.TokenCacheEntry
}

// NewTokenCache creates an empty token cache.
func NewTokenCache() *TokenCache {
	return &TokenCache{
		entries: make(map[string]*domain.TokenCacheEntry),
	}
}

// Lookup returns a copy of the entry for service if it is still fresh at now,
// or nil. An entry inside the buffer window before its expiry is a miss even
// though the issuer would still accept it.
func (c *TokenCache) Lookup(service string, now time.Time, buffer time.Duration) *domain.TokenCacheEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[service]
	if !ok || !entry.Fresh(now, buffer) {
		return nil
	}
	copied := *entry
	return &copied
}

// Peek returns a copy of the entry regardless of freshness, or nil. Used by
// the coordinator to carry counters over into a replacement entry.
func (c *TokenCache) Peek(service string) *domain.TokenCacheEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[service]
	if !ok {
		return nil
	}
	copied := *entry
	return &copied
}

// Store replaces the entry for service wholesale. Partial merges are
// deliberately impossible: callers construct a complete new entry.
func (c *TokenCache) Store(service string, entry *domain.TokenCacheEntry) {
	copied := *entry
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[service] = &copied
}

// Delete removes the entry for service, reporting whether one existed.
func (c *TokenCache) Delete(service string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.entries[service]
	delete(c.entries, service)
	return ok
}

// DeleteAll empties the cache and returns the number of entries removed.
func (c *TokenCache) DeleteAll() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.entries)
	c.entries = make(map[string]*domain.TokenCacheEntry)
	return n
}

// Size returns the number of cached entries.
func (c *TokenCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Sweep removes entries that are no longer fresh at now and returns how many
// were removed.
func (c *TokenCache) Sweep(now time.Time, buffer time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for service, entry := range c.entries {
		if !entry.Fresh(now, buffer) {
			delete(c.entries, service)
			removed++
		}
	}
	return removed
}

// Snapshot returns a copy of all entries for status reporting.
func (c *TokenCache) Snapshot() map[string]domain.TokenCacheEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := make(map[string]domain.TokenCacheEntry, len(c.entries))
	for service, entry := range c.entries {
		snap[service] = *entry
	}
	return snap
}
