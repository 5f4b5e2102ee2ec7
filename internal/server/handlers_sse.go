package server

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	apperrors "github.com/flygOn-LiTe/widget-platform/internal/errors"
	"github.com/flygOn-LiTe/widget-platform/internal/twitch"
)

func (s *Server) handleSSE(c echo.Context) error {
	userID := c.QueryParam("userId")
	if userID == "" {
		return apperrors.ValidationError("missing userId parameter")
	}

	ip := c.RealIP()
	ok, reason := s.sseLimits.Acquire(ip)
	if !ok {
		slog.Warn("Rejecting SSE connection", "ip", ip, "reason", string(reason))
		return echo.NewHTTPError(http.StatusTooManyRequests, "connection limit reached")
	}
	defer s.sseLimits.Release(ip)

	resp := c.Response()

	// Register before committing the response so a per-user cap rejection
	// can still answer 429.
	if err := s.hub.Register(userID, resp); err != nil {
		return echo.NewHTTPError(http.StatusTooManyRequests, err.Error())
	}
	defer s.hub.Unregister(userID, resp)

	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)
	resp.Flush()

	// Hold the response open until the client goes away or the server
	// shuts down.
	<-c.Request().Context().Done()
	return nil
}

// testEventRequest carries synthetic values for the widget test endpoints.
// The resulting message goes straight to the hub, no Twitch calls involved.
type testEventRequest struct {
	UserID          string `json:"userId"`
	UserName        string `json:"userName"`
	FollowerCount   *int   `json:"followerCount"`
	SubscriberCount *int   `json:"subscriberCount"`
	SubscriberName  string `json:"subscriberName"`
	BitsCount       *int   `json:"bitsCount"`
}

func bindTestEvent(c echo.Context) (*testEventRequest, error) {
	var req testEventRequest
	if err := c.Bind(&req); err != nil {
		return nil, apperrors.ValidationError("invalid request body")
	}
	if req.UserID == "" {
		req.UserID = c.QueryParam("userId")
	}
	if req.UserID == "" {
		return nil, apperrors.ValidationError("missing userId")
	}
	return &req, nil
}

func (s *Server) broadcastTestEvent(c echo.Context, userID string, msg *twitch.UpdateMessage) error {
	s.hub.Broadcast(userID, msg)
	return c.JSON(http.StatusOK, msg)
}

func (s *Server) handleTestFollow(c echo.Context) error {
	req, err := bindTestEvent(c)
	if err != nil {
		return err
	}

	msg := &twitch.UpdateMessage{
		EventType:     twitch.EventTypeFollow,
		FollowerCount: req.FollowerCount,
		UserName:      req.UserName,
	}
	if msg.FollowerCount == nil {
		msg.FollowerCount = twitch.IntPtr(1)
	}
	if msg.UserName == "" {
		msg.UserName = "test_follower"
	}
	return s.broadcastTestEvent(c, req.UserID, msg)
}

func (s *Server) handleTestSubscribe(c echo.Context) error {
	req, err := bindTestEvent(c)
	if err != nil {
		return err
	}

	msg := &twitch.UpdateMessage{
		EventType:       twitch.EventTypeSubscribe,
		SubscriberCount: req.SubscriberCount,
		SubscriberName:  req.SubscriberName,
	}
	if msg.SubscriberCount == nil {
		msg.SubscriberCount = twitch.IntPtr(1)
	}
	if msg.SubscriberName == "" {
		msg.SubscriberName = "test_subscriber"
	}
	return s.broadcastTestEvent(c, req.UserID, msg)
}

func (s *Server) handleTestCheer(c echo.Context) error {
	req, err := bindTestEvent(c)
	if err != nil {
		return err
	}

	msg := &twitch.UpdateMessage{
		EventType: twitch.EventTypeCheer,
		BitsCount: req.BitsCount,
		UserName:  req.UserName,
	}
	if msg.BitsCount == nil {
		msg.BitsCount = twitch.IntPtr(100)
	}
	if msg.UserName == "" {
		msg.UserName = "test_cheerer"
	}
	return s.broadcastTestEvent(c, req.UserID, msg)
}
