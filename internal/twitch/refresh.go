package twitch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	helix "github.com/nicklaw5/helix/v2"

	apperrors "github.com/flygOn-LiTe/widget-platform/internal/errors"
	"github.com/flygOn-LiTe/widget-platform/internal/metrics"
)

type refreshAPI interface {
	RefreshUserAccessToken(refreshToken string) (*helix.RefreshTokenResponse, error)
}

// TokenRefresher exchanges a stored refresh token for a fresh access token
// and persists the new pair.
type TokenRefresher struct {
	api   refreshAPI
	store TokenStore
}

func NewTokenRefresher(api refreshAPI, store TokenStore) *TokenRefresher {
	return &TokenRefresher{api: api, store: store}
}

// Refresh replaces the user's token pair and returns the new one. A failed
// exchange means the refresh token itself is no longer valid and the user
// needs to re-authenticate.
func (r *TokenRefresher) Refresh(ctx context.Context, userID string) (UserToken, error) {
	stored, err := r.store.GetTokens(ctx, userID)
	if err != nil {
		metrics.TokenRefreshesTotal.WithLabelValues("failure").Inc()
		return UserToken{}, fmt.Errorf("failed to load tokens for user %s: %w", userID, err)
	}

	resp, err := r.api.RefreshUserAccessToken(stored.RefreshToken)
	if err != nil {
		metrics.TokenRefreshesTotal.WithLabelValues("failure").Inc()
		return UserToken{}, apperrors.ExternalError("failed to refresh access token", err)
	}
	if resp.StatusCode >= 400 {
		metrics.TokenRefreshesTotal.WithLabelValues("failure").Inc()
		return UserToken{}, apperrors.UnauthorizedError("refresh token rejected").
			WithCause(fmt.Errorf("twitch returned status %d: %s", resp.StatusCode, resp.ErrorMessage))
	}

	token := UserToken{
		UserID:       userID,
		AccessToken:  resp.Data.AccessToken,
		RefreshToken: resp.Data.RefreshToken,
	}
	if err := r.store.SaveTokens(ctx, userID, token.AccessToken, token.RefreshToken); err != nil {
		metrics.TokenRefreshesTotal.WithLabelValues("failure").Inc()
		return UserToken{}, fmt.Errorf("failed to persist refreshed tokens for user %s: %w", userID, err)
	}

	metrics.TokenRefreshesTotal.WithLabelValues("success").Inc()
	slog.Info("Refreshed user access token", "user_id", userID)
	return token, nil
}

// WithRefreshRetry runs op with the user's stored access token. If op reports
// an expired token, the token pair is refreshed exactly once and op retried
// with the new access token. There is no second refresh.
func WithRefreshRetry(ctx context.Context, store TokenStore, refresher *TokenRefresher, userID string, op func(accessToken string) error) error {
	token, err := store.GetTokens(ctx, userID)
	if err != nil {
		return err
	}

	err = op(token.AccessToken)
	if err == nil || !errors.Is(err, ErrTokenExpired) {
		return err
	}

	slog.Info("Access token expired, refreshing", "user_id", userID)
	refreshed, refreshErr := refresher.Refresh(ctx, userID)
	if refreshErr != nil {
		return refreshErr
	}

	return op(refreshed.AccessToken)
}
