package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/flygOn-LiTe/widget-platform/internal/twitch"
)

// TokenStore persists per-user access/refresh token pairs as Redis hashes
// under "user:<id>", matching the layout the dashboard sessions share.
type TokenStore struct {
	rdb *redis.Client
}

var _ twitch.TokenStore = (*TokenStore)(nil)

func NewTokenStore(rdb *redis.Client) *TokenStore {
	return &TokenStore{rdb: rdb}
}

func userKey(userID string) string {
	return "user:" + userID
}

// SaveTokens stores both tokens for a user, replacing any previous pair.
func (s *TokenStore) SaveTokens(ctx context.Context, userID, accessToken, refreshToken string) error {
	err := s.rdb.HSet(ctx, userKey(userID),
		"accessToken", accessToken,
		"refreshToken", refreshToken,
	).Err()
	if err != nil {
		return fmt.Errorf("failed to store tokens for user %s: %w", userID, err)
	}
	return nil
}

// GetTokens returns the stored token pair for a user.
// Returns twitch.ErrNoToken if nothing is stored.
func (s *TokenStore) GetTokens(ctx context.Context, userID string) (twitch.UserToken, error) {
	fields, err := s.rdb.HGetAll(ctx, userKey(userID)).Result()
	if err != nil {
		return twitch.UserToken{}, fmt.Errorf("failed to read tokens for user %s: %w", userID, err)
	}

	token := twitch.UserToken{
		UserID:       userID,
		AccessToken:  fields["accessToken"],
		RefreshToken: fields["refreshToken"],
	}
	if token.AccessToken == "" && token.RefreshToken == "" {
		return twitch.UserToken{}, twitch.ErrNoToken
	}
	return token, nil
}
