package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("TWITCH_CLIENT_ID", "test-client-id")
	t.Setenv("TWITCH_CLIENT_SECRET", "test-client-secret")
	t.Setenv("TWITCH_WEBHOOK_SECRET", "test-webhook-secret-at-least-10")
	t.Setenv("PUBLIC_URL", "widgets.example.com")
	t.Setenv("FRONTEND_URL", "dashboard.example.com")
	t.Setenv("SESSION_SECRET", "test-session-secret")
}

func TestLoad_AllRequiredVarsSet(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "redis://localhost:6379", cfg.RedisURL)
	assert.Equal(t, "test-client-id", cfg.TwitchClientID)
	assert.Equal(t, "test-client-secret", cfg.TwitchClientSecret)
	assert.Equal(t, "widgets.example.com", cfg.PublicURL)
	assert.Equal(t, "test-session-secret", cfg.SessionSecret)
}

func TestLoad_MissingRequired(t *testing.T) {
	tests := []struct {
		name    string
		skipEnv string
		wantErr string
	}{
		{"missing REDIS_URL", "REDIS_URL", "REDIS_URL is required"},
		{"missing TWITCH_CLIENT_ID", "TWITCH_CLIENT_ID", "TWITCH_CLIENT_ID is required"},
		{"missing TWITCH_CLIENT_SECRET", "TWITCH_CLIENT_SECRET", "TWITCH_CLIENT_SECRET is required"},
		{"missing TWITCH_WEBHOOK_SECRET", "TWITCH_WEBHOOK_SECRET", "TWITCH_WEBHOOK_SECRET is required"},
		{"missing PUBLIC_URL", "PUBLIC_URL", "PUBLIC_URL is required"},
		{"missing FRONTEND_URL", "FRONTEND_URL", "FRONTEND_URL is required"},
		{"missing SESSION_SECRET", "SESSION_SECRET", "SESSION_SECRET is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tt.skipEnv, "")

			_, err := Load()
			require.Error(t, err)
			assert.Equal(t, tt.wantErr, err.Error())
		})
	}
}

func TestLoad_WebhookSecretLength(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TWITCH_WEBHOOK_SECRET", "short")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "between 10 and 100 characters")
}

func TestLoad_DefaultValues(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, "3001", cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, int64(10000), cfg.MaxSSEConnections)
	assert.Equal(t, 20, cfg.MaxSSEConnectionsPerIP)
}

func TestDerivedURLs(t *testing.T) {
	cfg := &Config{PublicURL: "widgets.example.com", FrontendURL: "dashboard.example.com"}

	assert.Equal(t, "https://widgets.example.com", cfg.BackendBaseURL())
	assert.Equal(t, "https://dashboard.example.com", cfg.FrontendBaseURL())
	assert.Equal(t, "https://widgets.example.com/webhook-callback", cfg.WebhookCallbackURL())
}
