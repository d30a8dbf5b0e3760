package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/traveldatawifi/zoho-token-service/internal/application"
	"github.com/traveldatawifi/zoho-token-service/internal/domain"
)

// StatusHandler serves the coordinator's observability snapshot: refresh and
// failure counters, cache size, and active backoffs per service.
func StatusHandler(coordinator *application.Coordinator, logger domain.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			domain.NewErrorResponse(domain.ErrMethodNotAllowed, "Method not allowed", "Only GET method is allowed.").WriteJSON(w, http.StatusMethodNotAllowed)
			return
		}

		snapshot := coordinator.Status()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(snapshot); err != nil {
			logger.Error(r.Context(), "Failed to encode status snapshot", "error", err.Error())
		}
	}
}

// ClearCacheRequest is the expected payload for /admin/clear-cache. An empty
// or absent service clears every cached token.
type ClearCacheRequest struct {
	Service string `json:"service"`
}

// ClearCacheResponse reports how many local entries were removed.
type ClearCacheResponse struct {
	Removed int    `json:"removed"`
	Service string `json:"service,omitempty"`
}

// ClearCacheHandler drops cached tokens so the next request forces a fresh
// exchange, and broadcasts the clear to peer instances.
func ClearCacheHandler(coordinator *application.Coordinator, logger domain.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			domain.NewErrorResponse(domain.ErrMethodNotAllowed, "Method not allowed", "Only POST method is allowed.").WriteJSON(w, http.StatusMethodNotAllowed)
			return
		}

		var reqPayload ClearCacheRequest
		if r.Body != nil {
			// An empty body is fine and means "clear everything".
			if err := json.NewDecoder(r.Body).Decode(&reqPayload); err != nil && !errors.Is(err, io.EOF) {
				logger.Warn(r.Context(), "Failed to decode /admin/clear-cache payload", "error", err.Error())
				domain.NewErrorResponse(domain.ErrBadRequest, "Invalid request payload", err.Error()).WriteJSON(w, http.StatusBadRequest)
				return
			}
			defer r.Body.Close()
		}

		removed := coordinator.ClearCache(r.Context(), reqPayload.Service)
		logger.Info(r.Context(), "Admin cache clear executed", "cleared_service", reqPayload.Service, "removed", removed)

		resp := ClearCacheResponse{Removed: removed, Service: reqPayload.Service}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			logger.Error(r.Context(), "Failed to encode clear-cache response", "error", err.Error())
		}
	}
}

// TokenHandler exposes GetAccessToken to the storefront's API routes. Errors
// map onto the coordinator's taxonomy: 429 for rate limiting, 502 for a
// failed exchange, 404 for an unknown service.
func TokenHandler(coordinator *application.Coordinator, logger domain.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			domain.NewErrorResponse(domain.ErrMethodNotAllowed, "Method not allowed", "Only GET method is allowed.").WriteJSON(w, http.StatusMethodNotAllowed)
			return
		}

		service := r.URL.Query().Get("service")
		if service == "" {
			domain.NewErrorResponse(domain.ErrBadRequest, "Missing service", "Provide 'service' query parameter.").WriteJSON(w, http.StatusBadRequest)
			return
		}

		token, err := coordinator.GetAccessToken(r.Context(), service)
		if err != nil {
			writeTokenError(w, r, logger, service, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(struct {
			AccessToken string `json:"access_token"`
		}{AccessToken: token}); err != nil {
			logger.Error(r.Context(), "Failed to encode token response", "error", err.Error())
		}
	}
}

func writeTokenError(w http.ResponseWriter, r *http.Request, logger domain.Logger, service string, err error) {
	var (
		rateErr *domain.RateLimitError
		authErr *domain.AuthFailedError
		cfgErr  *domain.ConfigError
	)

	switch {
	case errors.As(err, &rateErr):
		w.Header().Set("Retry-After", rateErr.RetryAfter.Round(time.Second).String())
		domain.NewErrorResponse(domain.ErrCodeRateLimited, "Refresh rate limit exceeded", rateErr.Error()).WriteJSON(w, http.StatusTooManyRequests)
	case errors.As(err, &cfgErr):
		domain.NewErrorResponse(domain.ErrServiceNotConfigured, "Service not configured", cfgErr.Error()).WriteJSON(w, http.StatusNotFound)
	case errors.As(err, &authErr):
		// The upstream detail is logged, not exposed; storefront callers get a
		// generic retryable condition.
		logger.Error(r.Context(), "Token acquisition failed", "token_service", service, "error", err.Error())
		domain.NewErrorResponse(domain.ErrCodeAuthFailed, "Service temporarily unavailable, try again", "").WriteJSON(w, http.StatusBadGateway)
	default:
		logger.Error(r.Context(), "Unexpected error acquiring token", "token_service", service, "error", err.Error())
		domain.NewErrorResponse(domain.ErrInternal, "An unexpected error occurred.", "").WriteJSON(w, http.StatusInternalServerError)
	}
}
