package config

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv             string `env:"APP_ENV" default:"development"`
	Port               string `env:"PORT" default:"3001"`
	RedisURL           string `env:"REDIS_URL"`
	TwitchClientID     string `env:"TWITCH_CLIENT_ID"`
	TwitchClientSecret string `env:"TWITCH_CLIENT_SECRET"`
	WebhookSecret      string `env:"TWITCH_WEBHOOK_SECRET"`
	PublicURL          string `env:"PUBLIC_URL"`
	FrontendURL        string `env:"FRONTEND_URL"`
	SessionSecret      string `env:"SESSION_SECRET"`
	LogLevel           string `env:"LOG_LEVEL" default:"info"`
	LogFormat          string `env:"LOG_FORMAT" default:"text"`

	MaxSSEConnections      int64 `env:"MAX_SSE_CONNECTIONS" default:"10000"`
	MaxSSEConnectionsPerIP int   `env:"MAX_SSE_CONNECTIONS_PER_IP" default:"20"`
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
	required := map[string]string{
		"REDIS_URL":             cfg.RedisURL,
		"TWITCH_CLIENT_ID":      cfg.TwitchClientID,
		"TWITCH_CLIENT_SECRET":  cfg.TwitchClientSecret,
		"TWITCH_WEBHOOK_SECRET": cfg.WebhookSecret,
		"PUBLIC_URL":            cfg.PublicURL,
		"FRONTEND_URL":          cfg.FrontendURL,
		"SESSION_SECRET":        cfg.SessionSecret,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
	}

	if len(cfg.WebhookSecret) < 10 || len(cfg.WebhookSecret) > 100 {
		return errors.New("TWITCH_WEBHOOK_SECRET must be between 10 and 100 characters")
	}

	return nil
}

// BackendBaseURL returns the externally reachable base URL of this backend.
// PUBLIC_URL is configured as a bare hostname, matching the deployment setup.
func (c *Config) BackendBaseURL() string {
	return "https://" + c.PublicURL
}

// FrontendBaseURL returns the base URL of the dashboard frontend.
func (c *Config) FrontendBaseURL() string {
	return "https://" + c.FrontendURL
}

// WebhookCallbackURL is the callback registered with EventSub subscriptions.
func (c *Config) WebhookCallbackURL() string {
	return c.BackendBaseURL() + "/webhook-callback"
}
