package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	apperrors "github.com/flygOn-LiTe/widget-platform/internal/errors"
	"github.com/flygOn-LiTe/widget-platform/internal/logging"
	"github.com/flygOn-LiTe/widget-platform/internal/metrics"
	"github.com/flygOn-LiTe/widget-platform/internal/twitch"
)

const maxWebhookBodySize = 1 << 20 // Twitch caps notification payloads well below this

type webhookPayload struct {
	Challenge    string `json:"challenge"`
	Subscription struct {
		Type string `json:"type"`
	} `json:"subscription"`
	Event *twitch.WebhookEvent `json:"event"`
}

func (s *Server) handleWebhookCallback(c echo.Context) error {
	if !s.webhookLimiter.Allow() {
		return echo.NewHTTPError(http.StatusTooManyRequests, "webhook rate limit exceeded")
	}

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBodySize))
	if err != nil {
		return apperrors.ValidationError("failed to read request body")
	}

	messageID := c.Request().Header.Get(twitch.HeaderMessageID)
	timestamp := c.Request().Header.Get(twitch.HeaderMessageTimestamp)
	signature := c.Request().Header.Get(twitch.HeaderMessageSignature)
	if !twitch.VerifySignature(messageID, timestamp, body, signature, s.config.WebhookSecret) {
		metrics.WebhookSignatureFailures.Inc()
		slog.Warn("Rejected webhook with bad signature", "message_id", messageID)
		return apperrors.ForbiddenError("invalid signature")
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return apperrors.ValidationError("malformed webhook payload")
	}

	// Twitch sends the challenge once per subscription and expects it back
	// verbatim as plain text.
	if payload.Challenge != "" {
		metrics.WebhookChallengesTotal.Inc()
		slog.Info("Answering EventSub verification challenge", "type", payload.Subscription.Type)
		return c.String(http.StatusOK, payload.Challenge)
	}

	if payload.Event == nil {
		return apperrors.ValidationError("webhook payload carries neither challenge nor event")
	}

	event := *payload.Event
	event.Type = payload.Subscription.Type

	// The notification is acknowledged with 200 no matter what happens
	// downstream, otherwise Twitch retries and eventually revokes the
	// subscription.
	msg, err := s.router.Route(c.Request().Context(), event)
	if err != nil {
		logging.WithBroadcaster(event.BroadcasterUserID).Error(
			"Failed to route webhook event", "type", event.Type, "error", err)
		return c.NoContent(http.StatusOK)
	}
	if msg != nil {
		s.hub.Broadcast(event.BroadcasterUserID, msg)
	}

	return c.NoContent(http.StatusOK)
}
