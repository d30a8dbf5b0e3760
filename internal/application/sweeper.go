package application

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/traveldatawifi/zoho-token-service/internal/adapters/config"
	"github.com/traveldatawifi/zoho-token-service/internal/adapters/metrics"
	"github.com/traveldatawifi/zoho-token-service/internal/domain"
)

// Sweeper periodically removes expired cache entries and stale rate-limit
// windows. It is owned by the application lifecycle: started once on boot and
// stopped on shutdown, so tests never leak timers. The sweep never touches an
// in-flight refresh; it only drops entries that are already past their
// freshness threshold, and a refresh in progress replaces its entry wholesale
// when it completes.
type Sweeper struct {
	logger  domain.Logger
	cfg     config.Provider
	cache   *TokenCache
	limiter *RateLimiter

	cron  *cron.Cron
	nowFn func() time.Time
}

// NewSweeper creates a sweeper over the coordinator's cache and limiter.
func NewSweeper(logger domain.Logger, cfgProvider config.Provider, cache *TokenCache, limiter *RateLimiter) *Sweeper {
	if logger == nil {
		panic("logger is nil in NewSweeper")
	}
	if cfgProvider == nil {
		panic("config provider is nil in NewSweeper")
	}
	return &Sweeper{
		logger:  logger,
		cfg:     cfgProvider,
		cache:   cache,
		limiter: limiter,
		nowFn:   time.Now,
	}
}

// Start schedules the sweep at the configured interval (default every 5
// minutes) and returns immediately.
func (s *Sweeper) Start(ctx context.Context) error {
	if s.cron != nil {
		return fmt.Errorf("sweeper already started")
	}

	intervalMinutes := s.cfg.Get().Coordinator.SweepIntervalMinutes
	if intervalMinutes <= 0 {
		intervalMinutes = 5
	}

	s.cron = cron.New()
	_, err := s.cron.AddFunc(fmt.Sprintf("@every %dm", intervalMinutes), func() {
		s.sweep(ctx)
	})
	if err != nil {
		s.cron = nil
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	s.cron.Start()
	s.logger.Info(ctx, "Cache sweeper started", "interval_minutes", intervalMinutes)
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.cron = nil
	s.logger.Info(context.Background(), "Cache sweeper stopped")
}

func (s *Sweeper) sweep(ctx context.Context) {
	cc := s.cfg.Get().Coordinator

	buffer := time.Duration(cc.TokenBufferMinutes) * time.Minute
	if buffer <= 0 {
		buffer = 10 * time.Minute
	}
	purgeAge := time.Duration(cc.StaleWindowPurgeHours) * time.Hour
	if purgeAge <= 0 {
		purgeAge = 2 * time.Hour
	}

	removedEntries := s.cache.Sweep(s.nowFn(), buffer)
	purgedWindows := s.limiter.Sweep(purgeAge)
	metrics.SetCacheEntries(s.cache.Size())
	metrics.SetActiveBackoffs(s.limiter.ActiveBackoffs())

	if removedEntries > 0 || purgedWindows > 0 {
		s.logger.Info(ctx, "Sweep completed",
			"removed_entries", removedEntries,
			"purged_windows", purgedWindows)
	} else {
		s.logger.Debug(ctx, "Sweep completed, nothing to remove")
	}
}
