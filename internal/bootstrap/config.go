package bootstrap

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/swachh/portal-core/config"
)

// InitLogger initializes the structured logger used before config is loaded.
func InitLogger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)
	return logger
}

// ConfigureLogger rebuilds the default logger from cfg: text output in dev,
// JSON otherwise, at the configured level.
func ConfigureLogger(cfg *config.AppConfig) *slog.Logger {
	logger := newLogger(os.Stdout, cfg)
	slog.SetDefault(logger)
	return logger
}

func newLogger(w io.Writer, cfg *config.AppConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}
	if cfg.IsDev {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(v string) slog.Level {
	switch v {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (config.AppConfig, error) {
	// Load .env file if it exists (development)
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return config.AppConfig{}, fmt.Errorf("load .env file: %w", err)
		}
	}

	var cfg config.AppConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	cfg.Sanitize()
	return cfg, nil
}

// ValidateConfig rejects combinations the portal cannot run with.
func ValidateConfig(cfg *config.AppConfig) error {
	if cfg == nil {
		return errors.New("config is required")
	}

	needsRemote := cfg.Auth.Mode == config.BackendModeRemote || cfg.Store.Mode == config.StoreModeRest
	if needsRemote {
		if cfg.Auth.Remote.URL == "" {
			return errors.New("REMOTE_URL is required when BACKEND_MODE=remote or STORE_MODE=rest")
		}
		if cfg.Auth.Remote.APIKey == "" {
			return errors.New("REMOTE_API_KEY is required when BACKEND_MODE=remote or STORE_MODE=rest")
		}
	}
	// REST records are fetched with the remote bearer token.
	if cfg.Store.Mode == config.StoreModeRest && cfg.Auth.Mode != config.BackendModeRemote {
		return errors.New("STORE_MODE=rest requires BACKEND_MODE=remote")
	}
	if cfg.Auth.Mode == config.BackendModeMemory && !cfg.IsDev {
		return errors.New("BACKEND_MODE=memory is only allowed in development")
	}
	return nil
}

// DescribeComponents lists the selected implementations for the startup log.
func DescribeComponents(cfg *config.AppConfig) []string {
	if cfg == nil {
		return []string{}
	}
	out := []string{
		"auth:" + string(cfg.Auth.Mode),
		"records:" + string(cfg.Store.Mode),
		"tokens:" + string(cfg.Session.TokenStore),
	}
	if cfg.Session.EventBusEnabled {
		out = append(out, "event-bus:redis")
	}
	if cfg.Observability.MetricsEnabled {
		out = append(out, "metrics")
	}
	if cfg.Observability.Notifications.Slack.Enabled {
		out = append(out, "notify:slack")
	}
	return out
}
