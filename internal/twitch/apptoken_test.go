package twitch

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/nicklaw5/helix/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAppTokenAPI struct {
	mu        sync.Mutex
	calls     int
	token     string
	expiresIn int
	err       error
	status    int
}

func (f *fakeAppTokenAPI) RequestAppAccessToken(_ []string) (*helix.AppAccessTokenResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	status := f.status
	if status == 0 {
		status = http.StatusOK
	}
	resp := &helix.AppAccessTokenResponse{}
	resp.StatusCode = status
	resp.Data.AccessToken = f.token
	resp.Data.ExpiresIn = f.expiresIn
	return resp, nil
}

func (f *fakeAppTokenAPI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestAppTokenSource_CachesUntilExpiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	api := &fakeAppTokenAPI{token: "app-token-1", expiresIn: 3600}
	source := NewAppTokenSource(api, clock)

	ctx := context.Background()

	token, err := source.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "app-token-1", token)

	// Second call within the expiry window hits the cache
	token, err = source.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "app-token-1", token)
	assert.Equal(t, 1, api.callCount())
}

func TestAppTokenSource_RefreshesAfterExpiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	api := &fakeAppTokenAPI{token: "app-token-1", expiresIn: 3600}
	source := NewAppTokenSource(api, clock)

	ctx := context.Background()

	_, err := source.Token(ctx)
	require.NoError(t, err)

	api.mu.Lock()
	api.token = "app-token-2"
	api.mu.Unlock()

	// Advance past expiry minus refresh margin
	clock.Advance(3600 * time.Second)

	token, err := source.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "app-token-2", token)
	assert.Equal(t, 2, api.callCount())
}

func TestAppTokenSource_RefreshMargin(t *testing.T) {
	clock := clockwork.NewFakeClock()
	api := &fakeAppTokenAPI{token: "app-token-1", expiresIn: 3600}
	source := NewAppTokenSource(api, clock)

	ctx := context.Background()

	_, err := source.Token(ctx)
	require.NoError(t, err)

	// 30 seconds before nominal expiry is inside the 60s margin, so a
	// new token is fetched
	clock.Advance(3600*time.Second - 30*time.Second)

	_, err = source.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, api.callCount())
}

func TestAppTokenSource_FetchError(t *testing.T) {
	clock := clockwork.NewFakeClock()
	api := &fakeAppTokenAPI{err: fmt.Errorf("network down")}
	source := NewAppTokenSource(api, clock)

	_, err := source.Token(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "app access token")
}

func TestAppTokenSource_NonOKStatus(t *testing.T) {
	clock := clockwork.NewFakeClock()
	api := &fakeAppTokenAPI{token: "", expiresIn: 0, status: http.StatusForbidden}
	source := NewAppTokenSource(api, clock)

	_, err := source.Token(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestAppTokenSource_ContextCancelled(t *testing.T) {
	clock := clockwork.NewFakeClock()
	api := &fakeAppTokenAPI{token: "app-token-1", expiresIn: 3600}
	source := NewAppTokenSource(api, clock)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := source.Token(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, api.callCount())
}
