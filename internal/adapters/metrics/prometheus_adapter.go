package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zts_token_cache_hits_total",
			Help: "Number of token requests served from the in-memory cache.",
		},
		[]string{"service"},
	)

	cacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zts_token_cache_misses_total",
			Help: "Number of token requests that missed the in-memory cache.",
		},
		[]string{"service"},
	)

	refreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zts_token_refreshes_total",
			Help: "Number of token exchange attempts by outcome.",
		},
		[]string{"service", "outcome"},
	)

	rateLimitRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zts_rate_limit_rejections_total",
			Help: "Number of token requests rejected by the hourly ceiling or an active backoff.",
		},
		[]string{"service"},
	)

	storeRestoresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zts_token_store_restores_total",
			Help: "Number of cache misses satisfied from the persisted token store.",
		},
		[]string{"service"},
	)

	cacheEntriesGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "zts_token_cache_entries",
			Help: "Number of entries currently held in the in-memory token cache.",
		},
	)

	activeBackoffsGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "zts_active_backoffs",
			Help: "Number of services currently inside a backoff window.",
		},
	)
)

// Outcome labels for refreshesTotal.
const (
	OutcomeSuccess     = "success"
	OutcomeAuthFailure = "auth_failure"
	OutcomeRateLimited = "rate_limited"
)

func IncrementCacheHit(service string)  { cacheHitsTotal.WithLabelValues(service).Inc() }
func IncrementCacheMiss(service string) { cacheMissesTotal.WithLabelValues(service).Inc() }

// IncrementRefresh records one exchange attempt with its outcome.
func IncrementRefresh(service, outcome string) {
	refreshesTotal.WithLabelValues(service, outcome).Inc()
}

func IncrementRateLimitRejection(service string) {
	rateLimitRejectionsTotal.WithLabelValues(service).Inc()
}

func IncrementStoreRestore(service string) {
	storeRestoresTotal.WithLabelValues(service).Inc()
}

// SetCacheEntries updates the cache size gauge after store/delete/sweep.
func SetCacheEntries(n int) { cacheEntriesGauge.Set(float64(n)) }

// SetActiveBackoffs updates the backoff gauge from the limiter snapshot.
func SetActiveBackoffs(n int) { activeBackoffsGauge.Set(float64(n)) }
