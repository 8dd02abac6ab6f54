// Package config loads environment-driven configuration for the relay
// server and the sync agent. Values come from the process environment,
// optionally seeded from a .env file.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	BindAddr  string `env:"BIND_ADDR" default:"0.0.0.0"`
	Port      string `env:"PORT" default:"3001"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	// Comma-separated list of allowed CORS origins; "*" allows all.
	AllowedOrigins string `env:"ALLOWED_ORIGINS" default:"*"`

	// Websocket connection limits.
	MaxConnections    int64   `env:"MAX_WS_CONNECTIONS" default:"1000"`
	MaxPerIP          int     `env:"MAX_WS_PER_IP" default:"20"`
	ConnectsPerSecond float64 `env:"WS_CONNECTS_PER_SECOND" default:"10"`
	ConnectBurst      int     `env:"WS_CONNECT_BURST" default:"10"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" default:"10s"`

	// Sync agent settings.
	RelayURL      string        `env:"RELAY_URL" default:"http://127.0.0.1:3001"`
	ProjectDir    string        `env:"PROJECT_DIR" default:"."`
	SyncInterval  time.Duration `env:"SYNC_INTERVAL" default:"5s"`
	RetryAttempts int           `env:"SYNC_RETRY_ATTEMPTS" default:"3"`
	RetryDelay    time.Duration `env:"SYNC_RETRY_DELAY" default:"2s"`
	MaxDepth      int           `env:"EXTRACT_MAX_DEPTH" default:"20"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.MaxConnections <= 0 {
		return fmt.Errorf("MAX_WS_CONNECTIONS must be positive, got %d", cfg.MaxConnections)
	}
	if cfg.SyncInterval <= 0 {
		return fmt.Errorf("SYNC_INTERVAL must be positive, got %s", cfg.SyncInterval)
	}
	if cfg.RetryAttempts < 1 {
		return fmt.Errorf("SYNC_RETRY_ATTEMPTS must be at least 1, got %d", cfg.RetryAttempts)
	}
	if cfg.MaxDepth < 1 {
		return fmt.Errorf("EXTRACT_MAX_DEPTH must be at least 1, got %d", cfg.MaxDepth)
	}
	return nil
}

// Production reports whether the server runs in production-like mode, in
// which internal error detail is hidden from callers.
func (c *Config) Production() bool {
	return c.AppEnv == "production"
}

// Origins returns the parsed allowed-origins list.
func (c *Config) Origins() []string {
	parts := strings.Split(c.AllowedOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			origins = append(origins, p)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
