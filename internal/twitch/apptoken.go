package twitch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/nicklaw5/helix/v2"
	"golang.org/x/sync/singleflight"
)

// refreshMargin renews the app token this long before its stated expiry.
const refreshMargin = 60 * time.Second

// appTokenAPI is the subset of the Helix client used to obtain app tokens.
type appTokenAPI interface {
	RequestAppAccessToken(scopes []string) (*helix.AppAccessTokenResponse, error)
}

// AppTokenSource provides an app access token (client credentials grant)
// for subscription management. The token is cached until shortly before
// its expiry; concurrent refreshes are deduplicated.
type AppTokenSource struct {
	api    appTokenAPI
	clock  clockwork.Clock
	scopes []string

	mu      sync.Mutex
	token   string
	expires time.Time

	group singleflight.Group
}

func NewAppTokenSource(api appTokenAPI, clock clockwork.Clock) *AppTokenSource {
	return &AppTokenSource{
		api:    api,
		clock:  clock,
		scopes: []string{"moderator:read:followers"},
	}
}

// Token returns a valid app access token, fetching a new one if the cached
// token is missing or about to expire.
func (s *AppTokenSource) Token(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	if s.token != "" && s.clock.Now().Before(s.expires) {
		token := s.token
		s.mu.Unlock()
		return token, nil
	}
	s.mu.Unlock()

	// Single key: there is only one app token per process
	result, err, _ := s.group.Do("app-token", func() (any, error) {
		return s.fetch()
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (s *AppTokenSource) fetch() (string, error) {
	resp, err := s.api.RequestAppAccessToken(s.scopes)
	if err != nil {
		return "", fmt.Errorf("failed to get app access token: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("app access token request returned status %d: %s", resp.StatusCode, resp.ErrorMessage)
	}

	expires := s.clock.Now().Add(time.Duration(resp.Data.ExpiresIn) * time.Second).Add(-refreshMargin)

	s.mu.Lock()
	s.token = resp.Data.AccessToken
	s.expires = expires
	s.mu.Unlock()

	slog.Debug("App access token refreshed", "expires_in", resp.Data.ExpiresIn)
	return resp.Data.AccessToken, nil
}
