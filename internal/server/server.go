package server

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	helix "github.com/nicklaw5/helix/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/flygOn-LiTe/widget-platform/internal/config"
	apperrors "github.com/flygOn-LiTe/widget-platform/internal/errors"
	"github.com/flygOn-LiTe/widget-platform/internal/sse"
	"github.com/flygOn-LiTe/widget-platform/internal/twitch"
)

const (
	sessionName       = "widget-platform-session"
	sessionKeyUserID  = "userID"
	sessionMaxAgeDays = 7
)

// authAPI is the slice of the Helix client the OAuth callback needs.
type authAPI interface {
	RequestUserAccessToken(code string) (*helix.UserAccessTokenResponse, error)
	SetUserAccessToken(token string)
	GetUsers(params *helix.UsersParams) (*helix.UsersResponse, error)
}

type subscriptionManager interface {
	EnsureSubscribed(ctx context.Context, eventType, userID string) (twitch.SubscriptionResult, error)
}

type eventRouter interface {
	Route(ctx context.Context, event twitch.WebhookEvent) (*twitch.UpdateMessage, error)
}

type Server struct {
	echo           *echo.Echo
	config         *config.Config
	auth           authAPI
	tokens         twitch.TokenStore
	refresher      *twitch.TokenRefresher
	counts         *twitch.CountFetcher
	subscriptions  subscriptionManager
	router         eventRouter
	hub            *sse.Hub
	rdb            *redis.Client
	sessionStore   *sessions.CookieStore
	sseLimits      *ConnectionLimits
	webhookLimiter *rate.Limiter
	widgetTemplate *template.Template
	barTemplate    *template.Template
}

func NewServer(
	cfg *config.Config,
	auth authAPI,
	tokens twitch.TokenStore,
	refresher *twitch.TokenRefresher,
	counts *twitch.CountFetcher,
	subscriptions subscriptionManager,
	router eventRouter,
	hub *sse.Hub,
	rdb *redis.Client,
) (*Server, error) {
	// Parse templates once at startup
	widgetTmpl, err := template.ParseFiles("web/templates/widget.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse widget template: %w", err)
	}
	barTmpl, err := template.ParseFiles("web/templates/followerbar-2.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse follower bar template: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(apperrors.Middleware())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{cfg.FrontendBaseURL()},
		AllowMethods:     []string{http.MethodGet, http.MethodPost},
		AllowCredentials: true,
	}))

	sessionStore := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	sessionStore.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * sessionMaxAgeDays,
		HttpOnly: true,
		Secure:   cfg.AppEnv == "production",
		SameSite: http.SameSiteLaxMode,
	}

	srv := &Server{
		echo:           e,
		config:         cfg,
		auth:           auth,
		tokens:         tokens,
		refresher:      refresher,
		counts:         counts,
		subscriptions:  subscriptions,
		router:         router,
		hub:            hub,
		rdb:            rdb,
		sessionStore:   sessionStore,
		sseLimits:      NewConnectionLimits(cfg.MaxSSEConnections, cfg.MaxSSEConnectionsPerIP),
		webhookLimiter: rate.NewLimiter(rate.Limit(100), 200),
		widgetTemplate: widgetTmpl,
		barTemplate:    barTmpl,
	}

	srv.registerRoutes()

	return srv, nil
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
