package domain

import (
	"context"
	"errors"
	"time"
)

// ErrStoreMiss is returned by TokenStore implementations when no entry exists
// for the requested service.
var ErrStoreMiss = errors.New("entry not found in token store")

// TokenStore is the durability layer for token cache entries. It is a
// best-effort pass-through with no business logic of its own: the coordinator
// alone decides what gets written and when, and a store that cannot write must
// degrade to a no-op rather than fail the caller.
type TokenStore interface {
	// GetEntry retrieves a persisted entry. A miss returns (nil, ErrStoreMiss).
	GetEntry(ctx context.Context, service string) (*TokenCacheEntry, error)

	// SetEntry persists an entry with a TTL aligned to its expiry.
	SetEntry(ctx context.Context, service string, entry *TokenCacheEntry, ttl time.Duration) error

	// DeleteEntry removes a persisted entry.
	DeleteEntry(ctx context.Context, service string) error

	// Degraded reports whether the store has fallen back to no-op mode after a
	// write failure.
	Degraded() bool
}
