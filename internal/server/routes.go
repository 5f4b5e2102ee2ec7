package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability endpoints (no auth required)
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// OAuth flow
	s.echo.GET("/auth/twitch", s.handleAuthRedirect)
	s.echo.GET("/auth/twitch/callback", s.handleAuthCallback)

	// Dashboard API (authenticated)
	s.echo.GET("/api/user", s.handleCurrentUser, s.requireAuth)
	s.echo.GET("/api/follower-count", s.handleFollowerCount)
	s.echo.GET("/api/subscriber-count", s.handleSubscriberCount)
	s.echo.GET("/subscribe-webhooks", s.handleSubscribeWebhooks, s.requireAuth)
	s.echo.GET("/refresh-token", s.handleRefreshToken)

	// EventSub notifications from Twitch (no session, HMAC verified)
	s.echo.POST("/webhook-callback", s.handleWebhookCallback)

	// Overlay event stream and test triggers
	s.echo.GET("/sse", s.handleSSE)
	s.echo.POST("/api/test/follow", s.handleTestFollow)
	s.echo.POST("/api/test/subscribe", s.handleTestSubscribe)
	s.echo.POST("/api/test/cheer", s.handleTestCheer)

	// Overlay pages rendered for OBS browser sources
	s.echo.GET("/widget", s.handleWidget)
	s.echo.GET("/followerbar-two", s.handleFollowerBar)
}
