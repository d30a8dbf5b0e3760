package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/traveldatawifi/zoho-token-service/internal/adapters/config"
	"github.com/traveldatawifi/zoho-token-service/internal/domain"
	"github.com/traveldatawifi/zoho-token-service/pkg/crypto"
	"github.com/traveldatawifi/zoho-token-service/pkg/storekeys"
)

// TokenStoreAdapter implements domain.TokenStore on Redis. Entries are
// AES-GCM encrypted at rest when a store key is configured, since access
// tokens are live credentials.
//
// Durability is best effort: the first write failure logs once and flips the
// adapter into degraded (no-op) mode, because losing persistence must never
// take token serving down with it. Reads in degraded mode report a miss.
type TokenStoreAdapter struct {
	redisClient *redis.Client
	logger      domain.Logger
	aesKeyHex   string

	degraded    atomic.Bool
	degradeOnce sync.Once
}

// NewTokenStoreAdapter creates a new instance of TokenStoreAdapter.
func NewTokenStoreAdapter(redisClient *redis.Client, cfgProvider config.Provider, logger domain.Logger) *TokenStoreAdapter {
	if redisClient == nil {
		// Panicking here because this is a critical setup error; a deployment
		// without Redis must wire the memory store instead.
		panic("redisClient cannot be nil in NewTokenStoreAdapter")
	}
	if logger == nil {
		panic("logger cannot be nil in NewTokenStoreAdapter")
	}

	aesKeyHex := ""
	if cfgProvider != nil {
		aesKeyHex = cfgProvider.Get().Auth.StoreAESKey
	}

	return &TokenStoreAdapter{
		redisClient: redisClient,
		logger:      logger,
		aesKeyHex:   aesKeyHex,
	}
}

// GetEntry retrieves and decodes a persisted token entry.
func (a *TokenStoreAdapter) GetEntry(ctx context.Context, service string) (*domain.TokenCacheEntry, error) {
	if a.degraded.Load() {
		return nil, domain.ErrStoreMiss
	}

	key := storekeys.TokenEntry(service)
	val, err := a.redisClient.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		a.logger.Debug(ctx, "Persisted token store miss", "key", key)
		return nil, domain.ErrStoreMiss
	}
	if err != nil {
		a.logger.Warn(ctx, "Failed to read token entry from Redis", "key", key, "error", err.Error())
		return nil, fmt.Errorf("redis GET for token key '%s' failed: %w", key, err)
	}

	payload := []byte(val)
	if a.aesKeyHex != "" {
		payload, err = crypto.DecryptAESGCM(a.aesKeyHex, val)
		if err != nil {
			// An undecryptable entry (rotated key, corrupt value) is useless;
			// treat it as a miss so the coordinator refreshes.
			a.logger.Warn(ctx, "Failed to decrypt persisted token entry, treating as miss", "key", key, "error", err.Error())
			return nil, domain.ErrStoreMiss
		}
	}

	var entry domain.TokenCacheEntry
	if err = json.Unmarshal(payload, &entry); err != nil {
		a.logger.Warn(ctx, "Failed to unmarshal persisted token entry, treating as miss", "key", key, "error", err.Error())
		return nil, domain.ErrStoreMiss
	}

	a.logger.Debug(ctx, "Persisted token store hit", "key", key, "expires_at", entry.ExpiresAt)
	return &entry, nil
}

// SetEntry persists an entry with the given TTL. Failures degrade the adapter
// to no-op mode and are not returned, per the fail-open contract.
func (a *TokenStoreAdapter) SetEntry(ctx context.Context, service string, entry *domain.TokenCacheEntry, ttl time.Duration) error {
	if a.degraded.Load() {
		return nil
	}

	key := storekeys.TokenEntry(service)
	payloadBytes, err := json.Marshal(entry)
	if err != nil {
		a.logger.Error(ctx, "Failed to marshal token entry for persistence", "key", key, "error", err.Error())
		return nil
	}

	payload := string(payloadBytes)
	if a.aesKeyHex != "" {
		payload, err = crypto.EncryptAESGCM(a.aesKeyHex, payloadBytes)
		if err != nil {
			a.logger.Error(ctx, "Failed to encrypt token entry for persistence", "key", key, "error", err.Error())
			return nil
		}
	}

	if err = a.redisClient.Set(ctx, key, payload, ttl).Err(); err != nil {
		a.degrade(ctx, err)
		return nil
	}

	a.logger.Debug(ctx, "Persisted token entry", "key", key, "ttl", ttl.String())
	return nil
}

// DeleteEntry removes a persisted entry.
func (a *TokenStoreAdapter) DeleteEntry(ctx context.Context, service string) error {
	if a.degraded.Load() {
		return nil
	}

	key := storekeys.TokenEntry(service)
	if err := a.redisClient.Del(ctx, key).Err(); err != nil {
		a.logger.Warn(ctx, "Failed to delete persisted token entry", "key", key, "error", err.Error())
		return fmt.Errorf("redis DEL for token key '%s' failed: %w", key, err)
	}
	return nil
}

// Degraded reports whether the adapter has fallen back to no-op mode.
func (a *TokenStoreAdapter) Degraded() bool {
	return a.degraded.Load()
}

func (a *TokenStoreAdapter) degrade(ctx context.Context, cause error) {
	a.degradeOnce.Do(func() {
		a.degraded.Store(true)
		a.logger.Error(ctx, "Persisted token store is unwritable, degrading to memory-only operation",
			"error", cause.Error())
	})
}
