package memory

import (
	"context"
	"sync"
	"time"

	"github.com/traveldatawifi/zoho-token-service/internal/domain"
)

type storedEntry struct {
	entry     domain.TokenCacheEntry
	expiresAt time.Time
}

// TokenStore is an in-process domain.TokenStore used when Redis is not
// configured and in tests. It offers no cross-restart durability; the
// coordinator treats that as an acceptable degradation, not an error.
type TokenStore struct {
	mu      sync.RWMutex
	entries map[string]storedEntry
}

// NewTokenStore creates an empty in-memory token store.
func NewTokenStore() *TokenStore {
	return &TokenStore{entries: make(map[string]storedEntry)}
}

// GetEntry returns the stored entry, honouring the TTL given at write time.
func (s *TokenStore) GetEntry(_ context.Context, service string) (*domain.TokenCacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.entries[service]
	if !ok || time.Now().After(stored.expiresAt) {
		return nil, domain.ErrStoreMiss
	}
	entry := stored.entry
	return &entry, nil
}

// SetEntry stores a copy of the entry with the given TTL.
func (s *TokenStore) SetEntry(_ context.Context, service string, entry *domain.TokenCacheEntry, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[service] = storedEntry{
		entry:     *entry,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

// DeleteEntry removes the stored entry.
func (s *TokenStore) DeleteEntry(_ context.Context, service string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, service)
	return nil
}

// Degraded always reports false; memory writes cannot fail.
func (s *TokenStore) Degraded() bool { return false }
