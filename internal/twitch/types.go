package twitch

import (
	"context"
	"errors"
)

// EventSub event types handled by this backend.
const (
	EventTypeFollow    = "channel.follow"
	EventTypeSubscribe = "channel.subscribe"
	EventTypeCheer     = "channel.cheer"
)

// SubscribedEventTypes is the fixed list registered by the subscription
// trigger endpoint.
var SubscribedEventTypes = []string{EventTypeFollow, EventTypeSubscribe, EventTypeCheer}

// ErrNoToken is returned when no access token is stored for a user.
var ErrNoToken = errors.New("no access token stored for user")

// ErrTokenExpired is returned when the Twitch API rejects a user access
// token with a 401. Callers may refresh the token exactly once and retry.
var ErrTokenExpired = errors.New("twitch access token expired")

// UserToken is a per-user access/refresh token pair. Created on OAuth
// callback, replaced wholesale on refresh.
type UserToken struct {
	UserID       string
	AccessToken  string
	RefreshToken string
}

// TokenStore persists per-user token pairs. The Redis implementation lives
// in internal/redis.
type TokenStore interface {
	SaveTokens(ctx context.Context, userID, accessToken, refreshToken string) error
	GetTokens(ctx context.Context, userID string) (UserToken, error)
}

// WebhookEvent is a verified EventSub notification, alive only for the
// duration of one inbound request.
type WebhookEvent struct {
	Type              string `json:"-"`
	BroadcasterUserID string `json:"broadcaster_user_id"`
	UserName          string `json:"user_name"`
	Bits              int    `json:"bits"`
}

// UpdateMessage is the payload pushed to every live-update connection of
// the target user. Immutable once constructed; broadcast verbatim.
type UpdateMessage struct {
	EventType       string `json:"eventType"`
	FollowerCount   *int   `json:"followerCount,omitempty"`
	SubscriberCount *int   `json:"subscriberCount,omitempty"`
	SubscriberName  string `json:"subscriberName,omitempty"`
	BitsCount       *int   `json:"bitsCount,omitempty"`
	UserName        string `json:"userName,omitempty"`
}

// IntPtr returns a pointer to v, for optional count fields.
func IntPtr(v int) *int { return &v }
