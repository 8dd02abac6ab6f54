package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "3001", cfg.Port)
	assert.Equal(t, "0.0.0.0", cfg.BindAddr)
	assert.Equal(t, 5*time.Second, cfg.SyncInterval)
	assert.Equal(t, 3, cfg.RetryAttempts)
	assert.Equal(t, 2*time.Second, cfg.RetryDelay)
	assert.Equal(t, 20, cfg.MaxDepth)
	assert.False(t, cfg.Production())
	assert.Equal(t, []string{"*"}, cfg.Origins())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("APP_ENV", "production")
	t.Setenv("SYNC_INTERVAL", "30s")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.True(t, cfg.Production())
	assert.Equal(t, 30*time.Second, cfg.SyncInterval)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Origins())
}

func TestValidationRejectsBadValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"zero retry attempts", "SYNC_RETRY_ATTEMPTS", "0"},
		{"negative sync interval", "SYNC_INTERVAL", "-1s"},
		{"zero max connections", "MAX_WS_CONNECTIONS", "0"},
		{"zero max depth", "EXTRACT_MAX_DEPTH", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestOriginsFallsBackToWildcard(t *testing.T) {
	cfg := &Config{AllowedOrigins: " , "}
	assert.Equal(t, []string{"*"}, cfg.Origins())
}
