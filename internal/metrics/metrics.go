package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Webhook ingress metrics
var (
	// WebhookEventsTotal tracks inbound webhook notifications by event type and outcome
	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Inbound webhook notifications by event type and outcome (routed/dropped/no_token)",
		},
		[]string{"type", "outcome"},
	)

	// WebhookSignatureFailures tracks rejected webhook requests
	WebhookSignatureFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "webhook_signature_failures_total",
			Help: "Webhook requests rejected due to signature verification failure",
		},
	)

	// WebhookChallengesTotal tracks subscription handshake challenges answered
	WebhookChallengesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "webhook_challenges_total",
			Help: "EventSub subscription handshake challenges answered",
		},
	)
)

// Fan-out hub metrics
var (
	// SSEConnectionsCurrent tracks currently open live-update connections
	SSEConnectionsCurrent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_current",
			Help: "Currently open live-update connections",
		},
	)

	// SSEConnectionsTotal tracks total live-update connections opened
	SSEConnectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sse_connections_total",
			Help: "Total live-update connections opened",
		},
	)

	// SSEActiveUsers tracks users with at least one open connection
	SSEActiveUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_active_users",
			Help: "Users with at least one open live-update connection",
		},
	)

	// SSEBroadcastsTotal tracks messages delivered to connections
	SSEBroadcastsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sse_broadcasts_total",
			Help: "Update messages delivered to live-update connections",
		},
	)

	// SSESlowClientsEvicted tracks clients disconnected for not keeping up
	SSESlowClientsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sse_slow_clients_evicted_total",
			Help: "Live-update clients evicted because their send buffer was full",
		},
	)
)

// Twitch API metrics
var (
	// TwitchAPICallDuration tracks Helix call latency by endpoint
	TwitchAPICallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "twitch_api_call_duration_seconds",
			Help:    "Twitch Helix API call duration in seconds",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"endpoint"},
	)

	// TwitchAPIErrorsTotal tracks Helix call failures by endpoint and status
	TwitchAPIErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twitch_api_errors_total",
			Help: "Twitch Helix API call failures by endpoint and status code",
		},
		[]string{"endpoint", "status"},
	)

	// TokenRefreshesTotal tracks user token refreshes by outcome
	TokenRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_refreshes_total",
			Help: "User access token refreshes by outcome",
		},
		[]string{"outcome"},
	)

	// SubscriptionCreatesTotal tracks EventSub subscription creations by event type
	SubscriptionCreatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventsub_subscription_creates_total",
			Help: "EventSub subscriptions created by event type",
		},
		[]string{"type"},
	)

	// CircuitBreakerState tracks current circuit breaker state (0=closed, 1=half-open, 2=open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"component"},
	)
)

// Redis metrics
var (
	// RedisOpsTotal tracks total Redis operations by operation type and status
	RedisOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_operations_total",
			Help: "Total Redis operations by operation and status",
		},
		[]string{"operation", "status"},
	)

	// RedisOpDuration tracks Redis operation latency in seconds
	RedisOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Redis operation duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)
)
