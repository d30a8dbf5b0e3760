package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/traveldatawifi/zoho-token-service/internal/adapters/middleware"
	"github.com/traveldatawifi/zoho-token-service/pkg/safego"
)

// NOTE: The App struct and NewApp function are defined in providers.go for Wire.
// This file should only contain methods for the App struct, like Run().

// Run starts the application, listens for HTTP requests, and handles graceful shutdown.
func (a *App) Run(ctx context.Context) error {
	version := "unknown" // Default if not found
	serviceName := "zoho-token-service"
	if a.configProvider != nil && a.configProvider.Get() != nil {
		configApp := a.configProvider.Get().App
		if configApp.Version != "" {
			version = configApp.Version
		}
		if configApp.ServiceName != "" {
			serviceName = configApp.ServiceName
		}
	}
	a.logger.Info(ctx, "Starting application", "service_name", serviceName, "version", version)

	// Setup HTTP routes
	healthHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, `{"status":"OK"}`)
	})
	a.httpServeMux.Handle("GET /health", middleware.RequestIDMiddleware(healthHandler))

	readyHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		ready := true
		dependenciesStatus := make(map[string]string)

		// Redis is optional; memory-only mode is still ready. A configured but
		// unreachable Redis, on the other hand, means we cannot honour
		// persistence or peer invalidation, so the instance reports NOT_READY.
		if a.redisClient != nil {
			if err := a.redisClient.Ping(r.Context()).Err(); err == nil {
				dependenciesStatus["redis"] = "connected"
			} else {
				dependenciesStatus["redis"] = "disconnected"
				ready = false
				a.logger.Warn(r.Context(), "Readiness check failed: Redis ping failed", "error", err.Error())
			}
		} else {
			dependenciesStatus["redis"] = "not_configured"
		}

		response := struct {
			Status       string            `json:"status"`
			Dependencies map[string]string `json:"dependencies"`
		}{
			Dependencies: dependenciesStatus,
		}

		if ready {
			response.Status = "READY"
			w.WriteHeader(http.StatusOK)
		} else {
			response.Status = "NOT_READY"
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		if err := json.NewEncoder(w).Encode(response); err != nil {
			a.logger.Error(r.Context(), "Failed to encode readiness response", "error", err)
		}
	})
	a.httpServeMux.Handle("GET /ready", middleware.RequestIDMiddleware(readyHandler))

	// Register Prometheus metrics handler
	a.httpServeMux.Handle("GET /metrics", middleware.RequestIDMiddleware(promhttp.Handler()))
	a.logger.Info(ctx, "Prometheus metrics endpoint registered at /metrics")

	if a.tokenHandler != nil && a.adminAuthMiddleware != nil {
		handlerToWrap := http.HandlerFunc(a.tokenHandler)
		finalTokenHandler := middleware.RequestIDMiddleware(a.adminAuthMiddleware(handlerToWrap))
		a.httpServeMux.Handle("GET /token", finalTokenHandler)
		a.logger.Info(ctx, "/token endpoint registered")
	} else {
		a.logger.Error(ctx, "TokenHandler or adminAuthMiddleware not initialized. /token endpoint will not be available.")
	}

	if a.statusHandler != nil && a.adminAuthMiddleware != nil {
		statusHandlerToWrap := http.HandlerFunc(a.statusHandler)
		finalStatusHandler := middleware.RequestIDMiddleware(a.adminAuthMiddleware(statusHandlerToWrap))
		a.httpServeMux.Handle("GET /status", finalStatusHandler)
		a.logger.Info(ctx, "/status endpoint registered")
	} else {
		a.logger.Error(ctx, "StatusHandler or adminAuthMiddleware not initialized. /status endpoint will not be available.")
	}

	if a.clearCacheHandler != nil && a.adminAuthMiddleware != nil {
		clearHandlerToWrap := http.HandlerFunc(a.clearCacheHandler)
		finalClearHandler := middleware.RequestIDMiddleware(a.adminAuthMiddleware(clearHandlerToWrap))
		a.httpServeMux.Handle("POST /admin/clear-cache", finalClearHandler)
		a.logger.Info(ctx, "/admin/clear-cache endpoint registered")
	} else {
		a.logger.Error(ctx, "ClearCacheHandler or adminAuthMiddleware not initialized. /admin/clear-cache endpoint will not be available.")
	}

	if a.sweeper != nil {
		if err := a.sweeper.Start(ctx); err != nil {
			a.logger.Error(ctx, "Failed to start cache sweeper", "error", err.Error())
			// Non-fatal: expired entries are still rejected on lookup, the
			// sweep only reclaims memory sooner.
		}
	}

	if a.subscriber != nil {
		safego.Execute(ctx, a.logger, "InvalidationSubscriber", func() {
			if err := a.subscriber.SubscribeInvalidations(ctx, a.coordinator.HandleInvalidation); err != nil {
				a.logger.Error(ctx, "Failed to subscribe to cache invalidations", "error", err.Error())
			}
		})
	} else {
		a.logger.Warn(ctx, "Invalidation subscriber not configured. Peer cache clears will not propagate to this instance.")
	}

	safego.Execute(ctx, a.logger, "SignalListenerAndGracefulShutdown", func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-quit:
			a.logger.Info(context.Background(), "Shutdown signal received, initiating graceful shutdown...", "signal", sig.String())
		case <-ctx.Done(): // Listen to the application context as well
			a.logger.Info(context.Background(), "Application context cancelled, initiating graceful shutdown...")
		}

		shutdownTimeout := 30 * time.Second // Default
		if a.configProvider != nil && a.configProvider.Get() != nil {
			configApp := a.configProvider.Get().App
			if configApp.ShutdownTimeoutSeconds > 0 {
				shutdownTimeout = time.Duration(configApp.ShutdownTimeoutSeconds) * time.Second
			}
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if a.sweeper != nil {
			a.sweeper.Stop()
		}
		if a.subscriber != nil {
			if err := a.subscriber.Close(); err != nil {
				a.logger.Error(context.Background(), "Error closing invalidation subscriber", "error", err.Error())
			}
		}

		if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error(context.Background(), "HTTP server graceful shutdown failed", "error", err.Error())
		}
		a.logger.Info(context.Background(), "HTTP server shut down.")
	})

	a.logger.Info(ctx, fmt.Sprintf("HTTP server listening on port %d", a.configProvider.Get().Server.HTTPPort))
	if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.logger.Error(ctx, "HTTP server ListenAndServe error", "error", err.Error())
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	a.logger.Info(ctx, "Application shut down gracefully or server closed.")
	return nil
}
