package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/traveldatawifi/zoho-token-service/internal/adapters/config"
	apphttp "github.com/traveldatawifi/zoho-token-service/internal/adapters/http"
	"github.com/traveldatawifi/zoho-token-service/internal/adapters/logger"
	"github.com/traveldatawifi/zoho-token-service/internal/adapters/memory"
	"github.com/traveldatawifi/zoho-token-service/internal/adapters/middleware"
	appredis "github.com/traveldatawifi/zoho-token-service/internal/adapters/redis"
	"github.com/traveldatawifi/zoho-token-service/internal/adapters/zoho"
	"github.com/traveldatawifi/zoho-token-service/internal/application"
	"github.com/traveldatawifi/zoho-token-service/internal/domain"
)

// Define distinct types for handlers and middleware to help Wire differentiate them
type (
	StatusHandler       http.HandlerFunc
	ClearCacheHandler   http.HandlerFunc
	TokenHandler        http.HandlerFunc
	AdminAuthMiddleware func(http.Handler) http.Handler
)

// InitialZapLoggerProvider provides a basic *zap.Logger instance, primarily for config initialization.
// It returns the logger, a cleanup function (for syncing), and an error if creation fails.
func InitialZapLoggerProvider() (*zap.Logger, func(), error) {
	logger, err := zap.NewProduction()
	if err != nil {
		// Try NewDevelopment if NewProduction fails
		logger, err = zap.NewDevelopment()
		if err != nil {
			// As a last resort, use NewExample, which does not return an error.
			logger = zap.NewExample()
			fmt.Fprintf(os.Stderr, "Failed to create initial zap logger (production and development failed, falling back to example): %v\n", err)
		}
	}

	cleanup := func() {
		// Syncing flushes any buffered log entries before application exit.
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "Failed to sync initial zap logger: %v\n", syncErr)
		}
	}
	return logger, cleanup, nil
}

// App struct is defined here for Wire to use.
// It should be the single definition of App in the bootstrap package.
type App struct {
	configProvider      config.Provider
	logger              domain.Logger
	httpServeMux        *http.ServeMux
	httpServer          *http.Server
	coordinator         *application.Coordinator
	sweeper             *application.Sweeper
	subscriber          domain.InvalidationSubscriber // nil when Redis is not configured
	redisClient         *redis.Client                 // nil when Redis is not configured
	statusHandler       StatusHandler
	clearCacheHandler   ClearCacheHandler
	tokenHandler        TokenHandler
	adminAuthMiddleware AdminAuthMiddleware
}

// NewApp is the constructor for App, also for Wire.
func NewApp(
	cfgProvider config.Provider,
	appLogger domain.Logger,
	mux *http.ServeMux,
	server *http.Server,
	coordinator *application.Coordinator,
	sweeper *application.Sweeper,
	subscriber domain.InvalidationSubscriber,
	redisClient *redis.Client,
	statusHandler StatusHandler,
	clearCacheHandler ClearCacheHandler,
	tokenHandler TokenHandler,
	adminAuthMid AdminAuthMiddleware,
) (*App, func(), error) {
	app := &App{
		configProvider:      cfgProvider,
		logger:              appLogger,
		httpServeMux:        mux,
		httpServer:          server,
		coordinator:         coordinator,
		sweeper:             sweeper,
		subscriber:          subscriber,
		redisClient:         redisClient,
		statusHandler:       statusHandler,
		clearCacheHandler:   clearCacheHandler,
		tokenHandler:        tokenHandler,
		adminAuthMiddleware: adminAuthMid,
	}

	cleanup := func() {
		app.logger.Info(context.Background(), "Running app cleanup...")
		if app.sweeper != nil {
			app.sweeper.Stop()
		}
		if app.subscriber != nil {
			if err := app.subscriber.Close(); err != nil {
				app.logger.Warn(context.Background(), "Error closing invalidation subscriber during cleanup", "error", err.Error())
			}
		}
	}
	return app, cleanup, nil
}

// ConfigProvider provides the application configuration.
// It accepts appCtx so the SIGHUP reload goroutine shuts down with the app.
func ConfigProvider(appCtx context.Context, logger *zap.Logger) (config.Provider, error) {
	return config.NewViperProvider(appCtx, logger)
}

// LoggerProvider provides the application logger.
func LoggerProvider(cfgProvider config.Provider) (domain.Logger, error) {
	appCfg := cfgProvider.Get()
	return logger.NewZapAdapter(cfgProvider, appCfg.App.ServiceName)
}

// HTTPServeMuxProvider provides the main HTTP multiplexer.
func HTTPServeMuxProvider() *http.ServeMux {
	return http.NewServeMux()
}

// HTTPGracefulServerProvider provides a new HTTP server configured for graceful shutdown.
func HTTPGracefulServerProvider(cfgProvider config.Provider, mux *http.ServeMux) *http.Server {
	appCfg := cfgProvider.Get()

	readTimeout := 10 * time.Second
	writeTimeout := 10 * time.Second
	idleTimeout := 60 * time.Second

	if appCfg.App.WriteTimeoutSeconds > 0 {
		writeTimeout = time.Duration(appCfg.App.WriteTimeoutSeconds) * time.Second
	}

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", appCfg.Server.HTTPPort),
		Handler:      mux,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
}

// RedisClientProvider provides a Redis client and a cleanup function. An empty
// redis.address disables Redis entirely: the service then runs memory-only,
// which is a supported single-instance mode, not an error.
func RedisClientProvider(cfgProvider config.Provider, appLogger domain.Logger) (*redis.Client, func(), error) {
	appCfg := cfgProvider.Get()
	if appCfg.Redis.Address == "" {
		appLogger.Warn(context.Background(), "Redis not configured; token persistence and cross-instance invalidation are disabled")
		return nil, func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     appCfg.Redis.Address,
		Password: appCfg.Redis.Password,
		DB:       appCfg.Redis.DB,
	})
	if _, err := client.Ping(context.Background()).Result(); err != nil {
		appLogger.Error(context.Background(), "Failed to connect to Redis", "error", err.Error(), "address", appCfg.Redis.Address)
		return nil, nil, fmt.Errorf("failed to connect to Redis at %s: %w", appCfg.Redis.Address, err)
	}
	cleanup := func() {
		client.Close()
		appLogger.Info(context.Background(), "Redis connection closed")
	}
	appLogger.Info(context.Background(), "Successfully connected to Redis", "address", appCfg.Redis.Address)
	return client, cleanup, nil
}

// TokenStoreProvider provides the persisted token store: Redis-backed when a
// client is available, in-memory otherwise.
func TokenStoreProvider(redisClient *redis.Client, cfgProvider config.Provider, logger domain.Logger) domain.TokenStore {
	if redisClient == nil {
		return memory.NewTokenStore()
	}
	return appredis.NewTokenStoreAdapter(redisClient, cfgProvider, logger)
}

// InvalidationPubSubProvider provides the Redis pub/sub adapter, or nil
// without Redis.
func InvalidationPubSubProvider(redisClient *redis.Client, logger domain.Logger) *appredis.InvalidationPubSubAdapter {
	if redisClient == nil {
		return nil
	}
	return appredis.NewInvalidationPubSubAdapter(redisClient, logger)
}

// InvalidationPublisherProvider narrows the adapter to the publisher
// interface, keeping a nil adapter a nil interface.
func InvalidationPublisherProvider(adapter *appredis.InvalidationPubSubAdapter) domain.InvalidationPublisher {
	if adapter == nil {
		return nil
	}
	return adapter
}

// InvalidationSubscriberProvider narrows the adapter to the subscriber
// interface, keeping a nil adapter a nil interface.
func InvalidationSubscriberProvider(adapter *appredis.InvalidationPubSubAdapter) domain.InvalidationSubscriber {
	if adapter == nil {
		return nil
	}
	return adapter
}

// TokenExchangerProvider provides the Zoho exchange client.
func TokenExchangerProvider(cfgProvider config.Provider, logger domain.Logger) domain.TokenExchanger {
	return zoho.NewExchangeClient(cfgProvider, logger)
}

// TokenCacheProvider provides the in-memory token cache.
func TokenCacheProvider() *application.TokenCache {
	return application.NewTokenCache()
}

// RateLimiterProvider provides the per-service rate limiter.
func RateLimiterProvider() *application.RateLimiter {
	return application.NewRateLimiter()
}

// CoordinatorProvider provides the token coordinator.
func CoordinatorProvider(
	logger domain.Logger,
	cfgProvider config.Provider,
	cache *application.TokenCache,
	limiter *application.RateLimiter,
	store domain.TokenStore,
	exchanger domain.TokenExchanger,
	publisher domain.InvalidationPublisher,
) *application.Coordinator {
	return application.NewCoordinator(logger, cfgProvider, cache, limiter, store, exchanger, publisher)
}

// SweeperProvider provides the periodic cache sweeper.
func SweeperProvider(logger domain.Logger, cfgProvider config.Provider, cache *application.TokenCache, limiter *application.RateLimiter) *application.Sweeper {
	return application.NewSweeper(logger, cfgProvider, cache, limiter)
}

// StatusHandlerProvider provides the /status handler.
func StatusHandlerProvider(coordinator *application.Coordinator, logger domain.Logger) StatusHandler {
	return StatusHandler(apphttp.StatusHandler(coordinator, logger))
}

// ClearCacheHandlerProvider provides the /admin/clear-cache handler.
func ClearCacheHandlerProvider(coordinator *application.Coordinator, logger domain.Logger) ClearCacheHandler {
	return ClearCacheHandler(apphttp.ClearCacheHandler(coordinator, logger))
}

// TokenHandlerProvider provides the /token handler.
func TokenHandlerProvider(coordinator *application.Coordinator, logger domain.Logger) TokenHandler {
	return TokenHandler(apphttp.TokenHandler(coordinator, logger))
}

// AdminAuthMiddlewareProvider provides the API-key middleware guarding the
// administrative endpoints.
func AdminAuthMiddlewareProvider(cfgProvider config.Provider, logger domain.Logger) AdminAuthMiddleware {
	return AdminAuthMiddleware(middleware.AdminAPIKeyAuthMiddleware(cfgProvider, logger))
}

// ProviderSet is the Wire provider set for the entire application.
var ProviderSet = wire.NewSet(
	InitialZapLoggerProvider,
	ConfigProvider,
	LoggerProvider,
	HTTPServeMuxProvider,
	HTTPGracefulServerProvider,

	// Infrastructure Adapters
	RedisClientProvider,
	TokenStoreProvider,
	InvalidationPubSubProvider,
	InvalidationPublisherProvider,
	InvalidationSubscriberProvider,
	TokenExchangerProvider,

	// Application Services
	TokenCacheProvider,
	RateLimiterProvider,
	CoordinatorProvider,
	SweeperProvider,

	// HTTP Handlers and Middleware
	StatusHandlerProvider,
	ClearCacheHandlerProvider,
	TokenHandlerProvider,
	AdminAuthMiddlewareProvider,

	NewApp,
)
