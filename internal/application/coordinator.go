package application

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/traveldatawifi/zoho-token-service/internal/adapters/config"
	"github.com/traveldatawifi/zoho-token-service/internal/adapters/metrics"
	"github.com/traveldatawifi/zoho-token-service/internal/domain"
	"github.com/traveldatawifi/zoho-token-service/pkg/contextkeys"
	"github.com/traveldatawifi/zoho-token-service/pkg/crypto"
)

// Policy carries the resolved coordinator knobs for one call.
type Policy struct {
	Rate   RatePolicy
	Buffer time.Duration
}

// Coordinator is the single entry point for token acquisition. It composes
// the rate limiter, the in-memory cache, the persisted store and the exchange
// client, and guarantees at most one concurrent exchange per service via
// single-flight de-duplication. All token and rate-limit state is owned here;
// nothing else in the application mutates it.
type Coordinator struct {
	logger    domain.Logger
	cfg       config.Provider
	cache     *TokenCache
	limiter   *RateLimiter
	store     domain.TokenStore
	exchanger domain.TokenExchanger
	publisher domain.InvalidationPublisher // nil when Redis is not configured

	flight singleflight.Group
	nowFn  func() time.Time
}

// NewCoordinator creates a Coordinator. The publisher may be nil (single
// instance deployments without Redis); every other dependency is required.
func NewCoordinator(
	logger domain.Logger,
	cfgProvider config.Provider,
	cache *TokenCache,
	limiter *RateLimiter,
	store domain.TokenStore,
	exchanger domain.TokenExchanger,
	publisher domain.InvalidationPublisher,
) *Coordinator {
	if logger == nil {
		panic("logger is nil in NewCoordinator")
	}
	if cfgProvider == nil {
		panic("config provider is nil in NewCoordinator")
	}
	if cache == nil || limiter == nil {
		panic("cache or limiter is nil in NewCoordinator")
	}
	if store == nil {
		panic("token store is nil in NewCoordinator")
	}
	if exchanger == nil {
		panic("token exchanger is nil in NewCoordinator")
	}
	return &Coordinator{
		logger:    logger,
		cfg:       cfgProvider,
		cache:     cache,
		limiter:   limiter,
		store:     store,
		exchanger: exchanger,
		publisher: publisher,
		nowFn:     time.Now,
	}
}

// policy resolves the current knobs, falling back to the documented defaults
// when config carries zeros.
func (c *Coordinator) policy() Policy {
	cc := c.cfg.Get().Coordinator

	ceiling := cc.MaxRefreshesPerHour
	if ceiling <= 0 {
		ceiling = 10
	}
	base := time.Duration(cc.BaseBackoffMs) * time.Millisecond
	if base <= 0 {
		base = 5 * time.Second
	}
	max := time.Duration(cc.MaxBackoffMs) * time.Millisecond
	if max <= 0 {
		max = 5 * time.Minute
	}
	buffer := time.Duration(cc.TokenBufferMinutes) * time.Minute
	if buffer <= 0 {
		buffer = 10 * time.Minute
	}
	wait := time.Duration(cc.MaxEnforceWaitSeconds) * time.Second
	if wait > time.Minute {
		wait = time.Minute
	}

	return Policy{
		Rate: RatePolicy{
			Ceiling:        ceiling,
			Window:         time.Hour,
			BaseBackoff:    base,
			MaxBackoff:     max,
			MaxEnforceWait: wait,
		},
		Buffer: buffer,
	}
}

// credentials resolves and validates the configured credentials for service.
// Missing fields fail fast, before any rate-limit bookkeeping or network call.
func (c *Coordinator) credentials(service string) (domain.ServiceCredentials, error) {
	zoho := c.cfg.Get().Zoho

	svc, ok := zoho.Services[service]
	if !ok {
		return domain.ServiceCredentials{}, &domain.ConfigError{Service: service, Field: "credentials"}
	}
	if svc.RefreshToken == "" {
		return domain.ServiceCredentials{}, &domain.ConfigError{Service: service, Field: "refresh_token"}
	}
	if svc.ClientID == "" {
		return domain.ServiceCredentials{}, &domain.ConfigError{Service: service, Field: "client_id"}
	}
	if svc.ClientSecret == "" {
		return domain.ServiceCredentials{}, &domain.ConfigError{Service: service, Field: "client_secret"}
	}

	tokenURL := svc.TokenURL
	if tokenURL == "" {
		tokenURL = zoho.TokenURL
	}
	if tokenURL == "" {
		tokenURL = config.DefaultTokenURL
	}

	return domain.ServiceCredentials{
		RefreshToken: svc.RefreshToken,
		ClientID:     svc.ClientID,
		ClientSecret: svc.ClientSecret,
		TokenURL:     tokenURL,
	}, nil
}

// GetAccessToken returns a valid bearer token for the named service,
// refreshing it through the issuer if the cached one is missing or inside the
// expiry buffer. Failures surface as *domain.ConfigError,
// *domain.RateLimitError or *domain.AuthFailedError.
func (c *Coordinator) GetAccessToken(ctx context.Context, service string) (string, error) {
	ctx = context.WithValue(ctx, contextkeys.ServiceKey, service)

	creds, err := c.credentials(service)
	if err != nil {
		c.logger.Error(ctx, "Token request rejected: service not configured", "error", err.Error())
		return "", err
	}

	pol := c.policy()

	if entry := c.cache.Lookup(service, c.nowFn(), pol.Buffer); entry != nil {
		metrics.IncrementCacheHit(service)
		c.logger.Debug(ctx, "Token served from cache", "expires_at", entry.ExpiresAt)
		return entry.AccessToken, nil
	}
	metrics.IncrementCacheMiss(service)

	// After a restart the persisted store may still hold a usable token;
	// consulting it first avoids spending a refresh from the hourly budget.
	if entry := c.restoreFromStore(ctx, service, pol.Buffer); entry != nil {
		return entry.AccessToken, nil
	}

	// Single-flight: concurrent misses for the same service share one
	// exchange. The group key is the service name, so services refresh
	// independently.
	v, err, _ := c.flight.Do(service, func() (any, error) {
		return c.refresh(ctx, service, creds, pol)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// refresh performs one guarded exchange. It runs inside the single-flight
// group, so at most one instance executes per service at a time.
func (c *Coordinator) refresh(ctx context.Context, service string, creds domain.ServiceCredentials, pol Policy) (string, error) {
	// A caller queued behind a completed refresh can be satisfied from cache
	// without touching the refresh budget.
	if entry := c.cache.Lookup(service, c.nowFn(), pol.Buffer); entry != nil {
		metrics.IncrementCacheHit(service)
		return entry.AccessToken, nil
	}

	if err := c.limiter.Enforce(ctx, service, pol.Rate); err != nil {
		var rle *domain.RateLimitError
		if errors.As(err, &rle) {
			metrics.IncrementRateLimitRejection(service)
			c.logger.Warn(ctx, "Refresh rejected by rate limiter", "retry_after", rle.RetryAfter.String())
		}
		return "", err
	}

	c.logger.Info(ctx, "Refreshing access token", "token_url", creds.TokenURL)

	// Once a refresh starts it runs to completion or failure; a caller
	// abandoning its request must not cancel the exchange other waiters share.
	result, err := c.exchanger.Exchange(context.WithoutCancel(ctx), service, creds)
	if err != nil {
		return "", c.handleExchangeFailure(ctx, service, pol, err)
	}

	now := c.nowFn()
	entry := &domain.TokenCacheEntry{
		AccessToken: result.AccessToken,
		ExpiresAt:   now.Add(time.Duration(result.ExpiresIn) * time.Second),
		LastRefresh: now,
	}
	if prev := c.cache.Peek(service); prev != nil {
		entry.RefreshCount = prev.RefreshCount
		entry.FailureCount = prev.FailureCount
	}
	entry.RefreshCount++
	entry.FailureCount += int64(c.limiter.ResetFailures(service))

	c.cache.Store(service, entry)
	metrics.SetCacheEntries(c.cache.Size())
	metrics.IncrementRefresh(service, metrics.OutcomeSuccess)
	// Raw tokens never reach the logs; a fingerprint is enough to correlate
	// refreshes with issuer-side activity.
	c.logger.Info(ctx, "Access token refreshed",
		"expires_at", entry.ExpiresAt,
		"refresh_count", entry.RefreshCount,
		"token_fingerprint", crypto.Sha256Hex(result.AccessToken)[:12])

	c.persistEntry(ctx, service, entry, now)

	return result.AccessToken, nil
}

// handleExchangeFailure classifies a failed exchange. Issuer throttling opens
// an exponential backoff window and surfaces as RateLimitExceeded; everything
// else counts a failure and surfaces as AuthenticationFailed. The coordinator
// never retries within the same call.
func (c *Coordinator) handleExchangeFailure(ctx context.Context, service string, pol Policy, err error) error {
	if errors.Is(err, domain.ErrIssuerThrottled) {
		backoff := c.limiter.RegisterThrottle(service, pol.Rate)
		metrics.IncrementRefresh(service, metrics.OutcomeRateLimited)
		metrics.SetActiveBackoffs(c.limiter.ActiveBackoffs())
		c.logger.Warn(ctx, "Issuer throttled the exchange, backing off",
			"backoff", backoff.String(), "error", err.Error())
		return &domain.RateLimitError{Service: service, RetryAfter: backoff}
	}

	c.limiter.RegisterFailure(service)
	metrics.IncrementRefresh(service, metrics.OutcomeAuthFailure)
	c.logger.Error(ctx, "Token exchange failed", "error", err.Error())

	var afe *domain.AuthFailedError
	if errors.As(err, &afe) {
		return err
	}
	return &domain.AuthFailedError{Service: service, Cause: err}
}

// restoreFromStore tries to satisfy a cache miss from the persisted store.
// Only entries that still satisfy the freshness invariant are restored; stale
// ones are deleted best-effort.
func (c *Coordinator) restoreFromStore(ctx context.Context, service string, buffer time.Duration) *domain.TokenCacheEntry {
	entry, err := c.store.GetEntry(ctx, service)
	if err != nil {
		if !errors.Is(err, domain.ErrStoreMiss) {
			c.logger.Warn(ctx, "Persisted token store read failed", "error", err.Error())
		}
		return nil
	}

	if !entry.Fresh(c.nowFn(), buffer) {
		_ = c.store.DeleteEntry(ctx, service)
		return nil
	}

	c.cache.Store(service, entry)
	metrics.SetCacheEntries(c.cache.Size())
	metrics.IncrementStoreRestore(service)
	c.logger.Info(ctx, "Token restored from persisted store", "expires_at", entry.ExpiresAt)
	return entry
}

// persistEntry writes the entry to the durable store, best effort. The store
// degrades to no-op mode on its own; a failure here never reaches the caller.
func (c *Coordinator) persistEntry(ctx context.Context, service string, entry *domain.TokenCacheEntry, now time.Time) {
	ttl := entry.ExpiresAt.Sub(now)
	if ttl <= 0 {
		return
	}
	if err := c.store.SetEntry(ctx, service, entry, ttl); err != nil {
		c.logger.Warn(ctx, "Failed to persist token entry", "error", err.Error())
	}
}

// ClearCache drops cached tokens, forcing a fresh exchange on the next
// request. An empty service clears everything. The clear is broadcast to peer
// instances when a publisher is configured. Returns the number of local
// entries removed.
func (c *Coordinator) ClearCache(ctx context.Context, service string) int {
	var removed int
	if service == "" {
		removed = c.cache.DeleteAll()
		for name := range c.cfg.Get().Zoho.Services {
			_ = c.store.DeleteEntry(ctx, name)
		}
	} else {
		if c.cache.Delete(service) {
			removed = 1
		}
		_ = c.store.DeleteEntry(ctx, service)
	}
	metrics.SetCacheEntries(c.cache.Size())
	c.logger.Info(ctx, "Token cache cleared", "cleared_service", service, "removed", removed)

	if c.publisher != nil {
		msg := domain.InvalidationMessage{Service: service, OriginPod: c.podID()}
		if err := c.publisher.PublishInvalidation(ctx, msg); err != nil {
			c.logger.Error(ctx, "Failed to broadcast cache invalidation", "error", err.Error())
		}
	}
	return removed
}

// HandleInvalidation drops local cache entries in response to a peer's
// broadcast. Messages originating from this pod are ignored, since the local
// clear already happened.
func (c *Coordinator) HandleInvalidation(channel string, msg domain.InvalidationMessage) error {
	if msg.OriginPod != "" && msg.OriginPod == c.podID() {
		return nil
	}

	ctx := context.Background()
	if msg.Service == "" {
		n := c.cache.DeleteAll()
		c.logger.Info(ctx, "Cleared token cache on peer invalidation", "channel", channel, "removed", n)
	} else if c.cache.Delete(msg.Service) {
		c.logger.Info(ctx, "Dropped cached token on peer invalidation", "channel", channel, "cleared_service", msg.Service)
	}
	metrics.SetCacheEntries(c.cache.Size())
	return nil
}

// Status assembles the observability snapshot served by /status.
func (c *Coordinator) Status() domain.StatusSnapshot {
	now := c.nowFn()
	entries := c.cache.Snapshot()
	limits := c.limiter.Snapshot()

	services := make(map[string]domain.ServiceStatus, len(entries)+len(limits))
	for service, entry := range entries {
		services[service] = domain.ServiceStatus{
			HasToken:     true,
			ExpiresAt:    entry.ExpiresAt,
			LastRefresh:  entry.LastRefresh,
			RefreshCount: entry.RefreshCount,
			FailureCount: entry.FailureCount,
		}
	}
	for service, st := range limits {
		status := services[service]
		status.RequestsInWindow = st.RequestCount
		if now.Before(st.BackoffUntil) {
			status.BackoffUntil = st.BackoffUntil
		}
		services[service] = status
	}

	active := c.limiter.ActiveBackoffs()
	metrics.SetActiveBackoffs(active)

	return domain.StatusSnapshot{
		CacheSize:      len(entries),
		StoreDegraded:  c.store.Degraded(),
		ActiveBackoffs: active,
		Services:       services,
	}
}

func (c *Coordinator) podID() string {
	return c.cfg.Get().Server.PodID
}
