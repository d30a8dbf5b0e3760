package middleware

import (
	"net/http"

	"github.com/traveldatawifi/zoho-token-service/internal/adapters/config"
	"github.com/traveldatawifi/zoho-token-service/internal/domain"
)

const apiKeyHeaderName = "X-API-Key"

// AdminAPIKeyAuthMiddleware creates a middleware guarding the administrative
// endpoints (/status, /admin/*). It checks for the configured AdminAPIKey in
// the X-API-Key header.
func AdminAPIKeyAuthMiddleware(cfgProvider config.Provider, logger domain.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := r.Header.Get(apiKeyHeaderName)

			cfg := cfgProvider.Get()
			if cfg == nil || cfg.Auth.AdminAPIKey == "" {
				logger.Error(r.Context(), "Admin auth failed: AdminAPIKey not configured", "path", r.URL.Path)
				errResp := domain.NewErrorResponse(domain.ErrInternal, "Server configuration error", "Admin auth cannot be performed.")
				errResp.WriteJSON(w, http.StatusInternalServerError)
				return
			}

			if apiKey == "" {
				logger.Warn(r.Context(), "Admin auth failed: API key missing", "path", r.URL.Path)
				errResp := domain.NewErrorResponse(domain.ErrInvalidAPIKey, "API key is required", "Provide API key in X-API-Key header.")
				errResp.WriteJSON(w, http.StatusUnauthorized)
				return
			}

			if apiKey != cfg.Auth.AdminAPIKey {
				logger.Warn(r.Context(), "Admin auth failed: Invalid API key", "path", r.URL.Path)
				errResp := domain.NewErrorResponse(domain.ErrInvalidAPIKey, "Invalid API key", "The provided API key is not valid.")
				errResp.WriteJSON(w, http.StatusUnauthorized)
				return
			}

			logger.Debug(r.Context(), "Admin API key authentication successful", "path", r.URL.Path)
			next.ServeHTTP(w, r)
		})
	}
}
