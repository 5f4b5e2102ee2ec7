package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	helix "github.com/nicklaw5/helix/v2"

	apperrors "github.com/flygOn-LiTe/widget-platform/internal/errors"
	"github.com/flygOn-LiTe/widget-platform/internal/logging"
	"github.com/flygOn-LiTe/widget-platform/internal/twitch"
)

func (s *Server) handleCurrentUser(c echo.Context) error {
	userID := c.Get("userID").(string)

	token, err := s.tokens.GetTokens(c.Request().Context(), userID)
	if err != nil {
		if errors.Is(err, twitch.ErrNoToken) {
			return apperrors.UnauthorizedError("no tokens stored for user")
		}
		return apperrors.InternalError("failed to load tokens", err)
	}

	s.auth.SetUserAccessToken(token.AccessToken)
	resp, err := s.auth.GetUsers(&helix.UsersParams{})
	if err != nil {
		return apperrors.ExternalError("failed to fetch user data", err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return apperrors.UnauthorizedError("access token rejected")
	}
	if resp.StatusCode >= 400 || len(resp.Data.Users) == 0 {
		return apperrors.ExternalError("failed to fetch user data",
			fmt.Errorf("twitch returned status %d: %s", resp.StatusCode, resp.ErrorMessage)).
			WithContext("twitchStatus", resp.StatusCode)
	}

	user := resp.Data.Users[0]
	return c.JSON(http.StatusOK, map[string]string{
		"userId":          user.ID,
		"login":           user.Login,
		"displayName":     user.DisplayName,
		"profileImageUrl": user.ProfileImageURL,
	})
}

func (s *Server) handleFollowerCount(c echo.Context) error {
	userID := c.QueryParam("userId")
	if userID == "" {
		return apperrors.ValidationError("missing userId parameter")
	}

	var total int
	err := twitch.WithRefreshRetry(c.Request().Context(), s.tokens, s.refresher, userID, func(accessToken string) error {
		var fetchErr error
		total, fetchErr = s.counts.FollowerCount(c.Request().Context(), userID, accessToken)
		return fetchErr
	})
	if err != nil {
		return countError("failed to fetch follower count", err)
	}

	return c.JSON(http.StatusOK, map[string]int{"followerCount": total})
}

func (s *Server) handleSubscriberCount(c echo.Context) error {
	userID := c.QueryParam("userId")
	if userID == "" {
		return apperrors.ValidationError("missing userId parameter")
	}

	var total int
	err := twitch.WithRefreshRetry(c.Request().Context(), s.tokens, s.refresher, userID, func(accessToken string) error {
		var fetchErr error
		total, fetchErr = s.counts.SubscriberCount(c.Request().Context(), userID, accessToken)
		return fetchErr
	})
	if err != nil {
		return countError("failed to fetch subscriber count", err)
	}

	return c.JSON(http.StatusOK, map[string]int{"subscriberCount": total})
}

// countError maps count fetch failures onto the structured error the
// middleware knows how to render. Twitch's own status codes pass through
// as external errors.
func countError(message string, err error) error {
	if errors.Is(err, twitch.ErrNoToken) || errors.Is(err, twitch.ErrTokenExpired) {
		return apperrors.UnauthorizedError("no valid credentials for user").WithCause(err)
	}
	var apiErr *twitch.APIError
	if errors.As(err, &apiErr) {
		return apperrors.ExternalError(message, err).WithContext("twitchStatus", apiErr.StatusCode)
	}
	if structured := apperrors.AsStructuredError(err); structured != nil {
		return structured
	}
	return apperrors.ExternalError(message, err)
}

func (s *Server) handleRefreshToken(c echo.Context) error {
	userID := c.QueryParam("userId")
	if userID == "" {
		return apperrors.ValidationError("missing userId parameter")
	}

	token, err := s.refresher.Refresh(c.Request().Context(), userID)
	if err != nil {
		if errors.Is(err, twitch.ErrNoToken) {
			return apperrors.ValidationError("refresh token not found")
		}
		if structured := apperrors.AsStructuredError(err); structured != nil {
			return structured
		}
		return apperrors.ExternalError("failed to refresh token", err)
	}

	return c.JSON(http.StatusOK, map[string]string{"newToken": token.AccessToken})
}

func (s *Server) handleSubscribeWebhooks(c echo.Context) error {
	userID := c.Get("userID").(string)
	ctx := c.Request().Context()

	// One failing event type must not stop the others
	results := make([]twitch.SubscriptionResult, 0, len(twitch.SubscribedEventTypes))
	for _, eventType := range twitch.SubscribedEventTypes {
		result, err := s.subscriptions.EnsureSubscribed(ctx, eventType, userID)
		if err != nil {
			logging.WithUser(userID).Error("Failed to ensure subscription", "type", eventType, "error", err)
			result = twitch.SubscriptionResult{EventType: eventType, Created: false, Reason: err.Error()}
		}
		results = append(results, result)
	}

	return c.JSON(http.StatusOK, results)
}
