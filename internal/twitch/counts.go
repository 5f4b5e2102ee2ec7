package twitch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/flygOn-LiTe/widget-platform/internal/metrics"
)

const (
	helixBaseURL    = "https://api.twitch.tv/helix"
	httpCallTimeout = 10 * time.Second
)

// APIError carries the status code of a failed Helix call so handlers can
// pass it through to their own callers.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("twitch api returned status %d: %s", e.StatusCode, e.Message)
}

// CountFetcher retrieves follower and subscriber totals from the Helix API
// using a broadcaster's user access token. A 401 from Twitch surfaces as
// ErrTokenExpired so the caller can run its one-shot refresh-and-retry.
type CountFetcher struct {
	clientID string
	baseURL  string // overridable for tests
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker
}

type CountFetcherOption func(*CountFetcher)

// WithBaseURL points the fetcher at a different Helix endpoint, used by
// tests to swap in a local server.
func WithBaseURL(baseURL string) CountFetcherOption {
	return func(f *CountFetcher) {
		f.baseURL = baseURL
	}
}

func NewCountFetcher(clientID string, opts ...CountFetcherOption) *CountFetcher {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "twitch-counts",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Token expiry is the caller's problem, not a Twitch outage
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			if apiErr, ok := err.(*APIError); ok && apiErr.StatusCode == http.StatusUnauthorized {
				return true
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed", "component", name, "from", from.String(), "to", to.String())
			metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
		},
	})

	f := &CountFetcher{
		clientID: clientID,
		baseURL:  helixBaseURL,
		client:   &http.Client{Timeout: httpCallTimeout},
		breaker:  breaker,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func breakerStateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}

// FollowerCount returns the broadcaster's current follower total.
func (f *CountFetcher) FollowerCount(ctx context.Context, broadcasterID, accessToken string) (int, error) {
	query := url.Values{}
	query.Set("broadcaster_id", broadcasterID)
	query.Set("first", "1")
	return f.fetchTotal(ctx, "channels/followers", query, accessToken)
}

// SubscriberCount returns the broadcaster's current subscriber total.
func (f *CountFetcher) SubscriberCount(ctx context.Context, broadcasterID, accessToken string) (int, error) {
	query := url.Values{}
	query.Set("broadcaster_id", broadcasterID)
	return f.fetchTotal(ctx, "subscriptions", query, accessToken)
}

func (f *CountFetcher) fetchTotal(ctx context.Context, endpoint string, query url.Values, accessToken string) (int, error) {
	result, err := f.breaker.Execute(func() (any, error) {
		return f.doFetchTotal(ctx, endpoint, query, accessToken)
	})
	if err != nil {
		if apiErr, ok := err.(*APIError); ok && apiErr.StatusCode == http.StatusUnauthorized {
			return 0, fmt.Errorf("%s: %w", endpoint, ErrTokenExpired)
		}
		return 0, err
	}
	return result.(int), nil
}

func (f *CountFetcher) doFetchTotal(ctx context.Context, endpoint string, query url.Values, accessToken string) (int, error) {
	start := time.Now()
	defer func() {
		metrics.TwitchAPICallDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/"+endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s request: %w", endpoint, err)
	}
	req.Header.Set("Client-Id", f.clientID)
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to execute %s request: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		metrics.TwitchAPIErrorsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()
		return 0, &APIError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	var result struct {
		Total int `json:"total"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}

	return result.Total, nil
}
