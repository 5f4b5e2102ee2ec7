package twitch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/nicklaw5/helix/v2"

	"github.com/flygOn-LiTe/widget-platform/internal/metrics"
)

// eventSubAPI is the subset of the Helix client used to view and manage
// EventSub subscriptions.
type eventSubAPI interface {
	SetAppAccessToken(token string)
	GetEventSubSubscriptions(params *helix.EventSubSubscriptionsParams) (*helix.EventSubSubscriptionsResponse, error)
	CreateEventSubSubscription(payload *helix.EventSubSubscription) (*helix.EventSubSubscriptionsResponse, error)
}

// appTokenSource provides an app access token for subscription management.
type appTokenSource interface {
	Token(ctx context.Context) (string, error)
}

// SubscriptionResult reports the outcome of one EnsureSubscribed call.
type SubscriptionResult struct {
	EventType string `json:"eventType"`
	Created   bool   `json:"created"`
	Reason    string `json:"reason"`
}

// SubscriptionManager keeps exactly one active webhook subscription per
// (event type, broadcaster) pair. The remote subscription list is the
// source of truth; nothing is persisted locally.
type SubscriptionManager struct {
	mu          sync.Mutex
	api         eventSubAPI
	tokens      appTokenSource
	callbackURL string
	secret      string
}

func NewSubscriptionManager(api eventSubAPI, tokens appTokenSource, callbackURL, secret string) *SubscriptionManager {
	return &SubscriptionManager{
		api:         api,
		tokens:      tokens,
		callbackURL: callbackURL,
		secret:      secret,
	}
}

// EnsureSubscribed registers a webhook subscription for (eventType, userID)
// unless one already exists. Safe to call repeatedly: a remote match on
// type and broadcaster id is treated as already-satisfied.
func (m *SubscriptionManager) EnsureSubscribed(ctx context.Context, eventType, userID string) (SubscriptionResult, error) {
	result := SubscriptionResult{EventType: eventType}

	appToken, err := m.tokens.Token(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to get app access token: %w", err)
	}

	// The helix client holds token state, so serialize set-and-call.
	m.mu.Lock()
	defer m.mu.Unlock()
	m.api.SetAppAccessToken(appToken)

	if existing := m.findExisting(eventType, userID); existing {
		result.Reason = "existing subscription found"
		slog.Info("Subscription already exists, continuing to use it",
			"type", eventType, "broadcaster_user_id", userID)
		return result, nil
	}

	payload := &helix.EventSubSubscription{
		Type:    eventType,
		Version: subscriptionVersion(eventType),
		Condition: helix.EventSubCondition{
			BroadcasterUserID: userID,
		},
		Transport: helix.EventSubTransport{
			Method:   "webhook",
			Callback: m.callbackURL,
			Secret:   m.secret,
		},
	}
	// channel.follow v2 requires a moderator; the broadcaster moderates
	// their own channel.
	if eventType == EventTypeFollow {
		payload.Condition.ModeratorUserID = userID
	}

	resp, err := m.api.CreateEventSubSubscription(payload)
	if err != nil {
		return result, fmt.Errorf("failed to create subscription for %s: %w", eventType, err)
	}

	switch resp.StatusCode {
	case http.StatusAccepted, http.StatusOK:
		result.Created = true
		result.Reason = "subscription created"
		metrics.SubscriptionCreatesTotal.WithLabelValues(eventType).Inc()
		slog.Info("Webhook subscription created", "type", eventType, "broadcaster_user_id", userID)
		return result, nil
	case http.StatusConflict:
		// Already exists on Twitch even though the listing missed it
		result.Reason = "existing subscription found"
		slog.Info("Subscription already exists on Twitch, treating as success",
			"type", eventType, "broadcaster_user_id", userID)
		return result, nil
	default:
		return result, fmt.Errorf("subscription creation for %s returned status %d: %s",
			eventType, resp.StatusCode, resp.ErrorMessage)
	}
}

// findExisting scans the remote subscription list for a match on
// (type, broadcaster id). A listing failure is treated as an empty list so
// creation is still attempted (best effort).
func (m *SubscriptionManager) findExisting(eventType, userID string) bool {
	resp, err := m.api.GetEventSubSubscriptions(&helix.EventSubSubscriptionsParams{
		Type: eventType,
	})
	if err != nil {
		slog.Warn("Failed to list current subscriptions, proceeding as if none exist", "error", err)
		return false
	}
	if resp.StatusCode != http.StatusOK {
		slog.Warn("Subscription listing returned non-OK status, proceeding as if none exist",
			"status", resp.StatusCode)
		return false
	}

	for _, sub := range resp.Data.EventSubSubscriptions {
		if sub.Type == eventType && sub.Condition.BroadcasterUserID == userID {
			return true
		}
	}
	return false
}

func subscriptionVersion(eventType string) string {
	if eventType == EventTypeFollow {
		return "2"
	}
	return "1"
}
