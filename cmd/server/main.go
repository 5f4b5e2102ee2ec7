package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	helix "github.com/nicklaw5/helix/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/flygOn-LiTe/widget-platform/internal/config"
	"github.com/flygOn-LiTe/widget-platform/internal/logging"
	"github.com/flygOn-LiTe/widget-platform/internal/redis"
	"github.com/flygOn-LiTe/widget-platform/internal/server"
	"github.com/flygOn-LiTe/widget-platform/internal/sse"
	"github.com/flygOn-LiTe/widget-platform/internal/twitch"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupRedis(ctx context.Context, cfg *config.Config) *goredis.Client {
	client, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func setupHelix(cfg *config.Config) *helix.Client {
	client, err := helix.NewClient(&helix.Options{
		ClientID:     cfg.TwitchClientID,
		ClientSecret: cfg.TwitchClientSecret,
		RedirectURI:  cfg.BackendBaseURL() + "/auth/twitch/callback",
	})
	if err != nil {
		slog.Error("Failed to create Twitch client", "error", err)
		os.Exit(1)
	}
	return client
}

func runGracefulShutdown(srv *server.Server, hub *sse.Hub, redisClient *goredis.Client) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		hub.Stop()

		if err := redisClient.Close(); err != nil {
			slog.Error("Redis close error", "error", err)
		}

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	// Initialize structured logging
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	redisClient := setupRedis(context.Background(), cfg)

	tokenStore := redis.NewTokenStore(redisClient)

	// The shared Helix client carries app credentials. A separate instance
	// handles per-user token exchanges so dashboard calls cannot clobber
	// the app token between SetAppAccessToken and the API call.
	helixApp := setupHelix(cfg)
	helixAuth := setupHelix(cfg)

	appTokens := twitch.NewAppTokenSource(helixApp, clock)
	subscriptions := twitch.NewSubscriptionManager(helixApp, appTokens, cfg.WebhookCallbackURL(), cfg.WebhookSecret)
	counts := twitch.NewCountFetcher(cfg.TwitchClientID)
	refresher := twitch.NewTokenRefresher(helixAuth, tokenStore)
	router := twitch.NewEventRouter(tokenStore, refresher, counts)

	hub := sse.NewHub()

	srv, err := server.NewServer(cfg, helixAuth, tokenStore, refresher, counts, subscriptions, router, hub, redisClient)
	if err != nil {
		slog.Error("Failed to create server", "error", err)
		os.Exit(1)
	}

	done := runGracefulShutdown(srv, hub, redisClient)

	slog.Info("Server starting", "port", cfg.Port)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
