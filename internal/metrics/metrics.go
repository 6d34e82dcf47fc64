// Package metrics holds the Prometheus collectors shared by the HTTP layer,
// the services and the background workers. Collectors are usable before
// Register is called, which keeps tests free of registry setup.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// HTTPRequests counts requests by method, route pattern and status code.
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPDuration records request latency by method and route pattern.
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_inflight",
			Help: "Current number of in-flight HTTP requests.",
		},
	)

	RateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "http_rate_limited_total",
			Help: "Requests rejected by the per-client rate limiter.",
		},
	)

	FriendshipsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "friendships_created_total",
			Help: "Friendships written to the ledger.",
		},
	)

	// UpsertConflicts counts friendship creates that lost a race and were
	// answered by re-reading the stored record.
	UpsertConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "friendship_upsert_conflicts_total",
			Help: "Friendship creates resolved by re-reading after a conflict.",
		},
	)

	// PartialResults counts fan-out reads where one branch failed.
	PartialResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partial_results_total",
			Help: "Two-sided reads answered from a single side.",
		},
		[]string{"op"},
	)

	MediaSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_sent_total",
			Help: "Media items stored, by type.",
		},
		[]string{"type"},
	)

	MediaSeen = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "media_seen_total",
			Help: "Seen marks recorded.",
		},
	)

	Notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Notifications delivered, by channel and outcome.",
		},
		[]string{"channel", "outcome"},
	)

	WSConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_connections",
			Help: "Currently registered WebSocket connections.",
		},
	)

	// RefreshRuns counts background refresh passes by outcome
	// (complete, budget_exceeded).
	RefreshRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refresh_runs_total",
			Help: "Background summary refresh passes.",
		},
		[]string{"outcome"},
	)
)

// Register adds every collector to reg. Call it once at startup.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequests,
		HTTPDuration,
		HTTPInflight,
		RateLimited,
		FriendshipsCreated,
		UpsertConflicts,
		PartialResults,
		MediaSent,
		MediaSeen,
		Notifications,
		WSConnections,
		RefreshRuns,
	)
}
