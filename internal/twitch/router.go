package twitch

import (
	"context"
	"fmt"
	"log/slog"

	apperrors "github.com/flygOn-LiTe/widget-platform/internal/errors"
	"github.com/flygOn-LiTe/widget-platform/internal/logging"
	"github.com/flygOn-LiTe/widget-platform/internal/metrics"
)

// EventRouter turns verified webhook events into overlay update messages,
// enriching them with live counts from the Helix API where the event type
// calls for it.
type EventRouter struct {
	store     TokenStore
	refresher *TokenRefresher
	counts    *CountFetcher
}

func NewEventRouter(store TokenStore, refresher *TokenRefresher, counts *CountFetcher) *EventRouter {
	return &EventRouter{store: store, refresher: refresher, counts: counts}
}

// Route maps an incoming event to the message broadcast to the broadcaster's
// overlays. A nil message with a nil error means the event produced no
// update and is dropped silently.
func (r *EventRouter) Route(ctx context.Context, event WebhookEvent) (*UpdateMessage, error) {
	switch event.Type {
	case EventTypeFollow:
		return r.routeFollow(ctx, event)
	case EventTypeSubscribe:
		return r.routeSubscribe(ctx, event)
	case EventTypeCheer:
		metrics.WebhookEventsTotal.WithLabelValues(event.Type, "broadcast").Inc()
		return &UpdateMessage{
			EventType: EventTypeCheer,
			BitsCount: IntPtr(event.Bits),
			UserName:  event.UserName,
		}, nil
	default:
		metrics.WebhookEventsTotal.WithLabelValues(event.Type, "ignored").Inc()
		slog.Debug("Ignoring unhandled event type", "type", event.Type)
		return nil, nil
	}
}

func (r *EventRouter) routeFollow(ctx context.Context, event WebhookEvent) (*UpdateMessage, error) {
	var total int
	err := WithRefreshRetry(ctx, r.store, r.refresher, event.BroadcasterUserID, func(accessToken string) error {
		var fetchErr error
		total, fetchErr = r.counts.FollowerCount(ctx, event.BroadcasterUserID, accessToken)
		return fetchErr
	})
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues(event.Type, "error").Inc()
		return nil, apperrors.UnauthorizedError(
			fmt.Sprintf("no usable credentials for broadcaster %s", event.BroadcasterUserID)).WithCause(err)
	}

	metrics.WebhookEventsTotal.WithLabelValues(event.Type, "broadcast").Inc()
	return &UpdateMessage{
		EventType:     EventTypeFollow,
		FollowerCount: IntPtr(total),
		UserName:      event.UserName,
	}, nil
}

func (r *EventRouter) routeSubscribe(ctx context.Context, event WebhookEvent) (*UpdateMessage, error) {
	var total int
	err := WithRefreshRetry(ctx, r.store, r.refresher, event.BroadcasterUserID, func(accessToken string) error {
		var fetchErr error
		total, fetchErr = r.counts.SubscriberCount(ctx, event.BroadcasterUserID, accessToken)
		return fetchErr
	})
	if err != nil {
		// A subscribe event without a fresh count is not worth failing the
		// webhook over, the next event will carry an up to date total.
		metrics.WebhookEventsTotal.WithLabelValues(event.Type, "dropped").Inc()
		logging.WithBroadcaster(event.BroadcasterUserID).Warn(
			"Dropping subscribe event, could not fetch subscriber count", "error", err)
		return nil, nil
	}

	metrics.WebhookEventsTotal.WithLabelValues(event.Type, "broadcast").Inc()
	return &UpdateMessage{
		EventType:       EventTypeSubscribe,
		SubscriberCount: IntPtr(total),
		SubscriberName:  event.UserName,
	}, nil
}
