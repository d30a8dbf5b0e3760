package config

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const envPrefix = "ZTS"

// DefaultTokenURL is the Zoho accounts token endpoint used when a service does
// not configure its own.
const DefaultTokenURL = "https://accounts.zoho.com/oauth/v2/token"

// ServerConfig holds server-related configurations.
// Note: Fields should be exported (start with uppercase) to be unmarshalled by Viper.
type ServerConfig struct {
	HTTPPort int    `mapstructure:"http_port"`
	PodID    string `mapstructure:"pod_id"` // Identifies this instance in invalidation broadcasts (e.g. POD_IP via Downward API)
}

// RedisConfig holds Redis-related configurations. An empty Address disables
// Redis entirely; the service then runs with in-memory token persistence only.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"` // Optional
	DB       int    `mapstructure:"db"`       // Optional
}

// LogConfig holds logging-related configurations.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// AuthConfig holds authentication-related configurations.
type AuthConfig struct {
	AdminAPIKey string `mapstructure:"admin_api_key"` // Guards /status and /admin/*; should come from ENV
	StoreAESKey string `mapstructure:"store_aes_key"` // Hex-encoded 32-byte key; encrypts persisted tokens at rest
}

// ServiceCredentialsConfig holds the per-service OAuth client credentials.
type ServiceCredentialsConfig struct {
	RefreshToken string `mapstructure:"refresh_token"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	TokenURL     string `mapstructure:"token_url"` // Optional, defaults to zoho.token_url then DefaultTokenURL
}

// ZohoConfig holds issuer-level settings and the credential set per named service.
type ZohoConfig struct {
	TokenURL string                              `mapstructure:"token_url"`
	Services map[string]ServiceCredentialsConfig `mapstructure:"services"`
}

// CoordinatorConfig holds the refresh policy knobs.
type CoordinatorConfig struct {
	MaxRefreshesPerHour    int `mapstructure:"max_refreshes_per_hour"`
	BaseBackoffMs          int `mapstructure:"base_backoff_ms"`
	MaxBackoffMs           int `mapstructure:"max_backoff_ms"`
	TokenBufferMinutes     int `mapstructure:"token_buffer_minutes"`
	MaxEnforceWaitSeconds  int `mapstructure:"max_enforce_wait_seconds"` // 0 = raise immediately when inside a backoff window
	SweepIntervalMinutes   int `mapstructure:"sweep_interval_minutes"`
	StaleWindowPurgeHours  int `mapstructure:"stale_window_purge_hours"`
	ExchangeTimeoutSeconds int `mapstructure:"exchange_timeout_seconds"`
}

// AppConfig holds application-specific configurations.
type AppConfig struct {
	ServiceName            string `mapstructure:"service_name"`
	Version                string `mapstructure:"version"`
	ShutdownTimeoutSeconds int    `mapstructure:"shutdown_timeout_seconds"`
	WriteTimeoutSeconds    int    `mapstructure:"write_timeout_seconds"`
}

// Config holds all configuration for the application.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Log         LogConfig         `mapstructure:"log"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Zoho        ZohoConfig        `mapstructure:"zoho"`
	Coordinator CoordinatorConfig `mapstructure:"coordinator"`
	App         AppConfig         `mapstructure:"app"`
}

// Provider defines an interface for accessing application configuration.
// This allows for easy mocking in tests and decouples the app from Viper.
type Provider interface {
	Get() *Config
}

// viperProvider implements the Provider interface using Viper.
type viperProvider struct {
	config *Config
	logger *zap.Logger // Using zap.Logger directly for config internal logging, not domain.Logger to avoid circular deps
}

// NewViperProvider creates and initializes a new configuration provider using Viper.
// It loads configuration from file and environment variables, and sets up hot-reloading.
// A basic logger (e.g., zap.NewExample()) should be passed for internal logging during setup.
// appCtx is the application lifecycle context used for graceful shutdown of background tasks.
func NewViperProvider(appCtx context.Context, logger *zap.Logger) (Provider, error) {
	cfg := &Config{}
	v := viper.New()

	setDefaults(v)

	// Configure Viper to read from YAML file
	v.SetConfigName(getEnv("VIPER_CONFIG_NAME", "config"))
	v.SetConfigType("yaml")
	v.AddConfigPath(getEnv("VIPER_CONFIG_PATH", "/app/config"))
	v.AddConfigPath(".") // Also look in current directory for local dev

	// Configure Viper to read from environment variables
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_")) // e.g., server.http_port becomes SERVER_HTTP_PORT

	// Attempt to read the configuration file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			logger.Warn("Config file not found; relying on defaults and environment variables", zap.Error(err))
		} else {
			logger.Error("Failed to read config file", zap.Error(err))
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Unmarshal the configuration into the struct
	if err := v.Unmarshal(cfg); err != nil {
		logger.Error("Failed to unmarshal config", zap.Error(err))
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	p := &viperProvider{
		config: cfg,
		logger: logger,
	}

	// Set up SIGHUP for hot-reloading configuration
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGHUP)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("Panic recovered in SIGHUP handler goroutine",
					zap.String("goroutine_name", "SIGHUPConfigReloader"),
					zap.Any("panic_info", r),
					zap.String("stacktrace", string(debug.Stack())),
				)
			}
		}()
		p.logger.Info("SIGHUPConfigReloader goroutine started.")
		for {
			select {
			case sig := <-sigChan:
				p.logger.Info("SIGHUP received, attempting to reload configuration...", zap.String("signal", sig.String()))
				if err := v.ReadInConfig(); err != nil {
					p.logger.Error("Failed to re-read config file on SIGHUP", zap.Error(err))
				} else {
					newCfg := &Config{}
					if err := v.Unmarshal(newCfg); err != nil {
						p.logger.Error("Failed to unmarshal re-read config on SIGHUP", zap.Error(err))
					} else {
						p.config = newCfg
						p.logger.Info("Configuration reloaded successfully via SIGHUP")
					}
				}
			case <-appCtx.Done():
				p.logger.Info("SIGHUPConfigReloader goroutine shutting down due to context cancellation.")
				return // Exit goroutine when application context is done
			}
		}
	}()

	// Optional: Watch for config file changes (useful for local dev, less so in containers usually)
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("Panic recovered in OnConfigChange callback",
					zap.String("event_name", e.Name),
					zap.String("event_op", e.Op.String()),
					zap.Any("panic_info", r),
					zap.String("stacktrace", string(debug.Stack())),
				)
			}
		}()
		p.logger.Info("Config file changed", zap.String("name", e.Name), zap.String("op", e.Op.String()))
		newCfg := &Config{}
		if err := v.Unmarshal(newCfg); err != nil {
			p.logger.Error("Failed to unmarshal config on file change event", zap.Error(err))
		} else {
			p.config = newCfg
			p.logger.Info("Configuration reloaded successfully via file change event")
		}
	})

	p.logger.Info("Configuration loaded successfully", zap.String("config_file_used", v.ConfigFileUsed()))

	return p, nil
}

// setDefaults registers the documented policy defaults so a minimal config
// file (credentials only) produces a working service.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("app.service_name", "zoho-token-service")
	v.SetDefault("app.shutdown_timeout_seconds", 30)
	v.SetDefault("zoho.token_url", DefaultTokenURL)
	v.SetDefault("coordinator.max_refreshes_per_hour", 10)
	v.SetDefault("coordinator.base_backoff_ms", 5000)
	v.SetDefault("coordinator.max_backoff_ms", 300000)
	v.SetDefault("coordinator.token_buffer_minutes", 10)
	v.SetDefault("coordinator.max_enforce_wait_seconds", 0)
	v.SetDefault("coordinator.sweep_interval_minutes", 5)
	v.SetDefault("coordinator.stale_window_purge_hours", 2)
	v.SetDefault("coordinator.exchange_timeout_seconds", 30)
}

// Get returns the current configuration.
func (p *viperProvider) Get() *Config {
	return p.config
}

// Helper function to get Viper env vars correctly for bootstrap if needed
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
