// Package metrics registers the engine's prometheus collectors: one
// field per observability concern, each backed by a real
// prometheus.Counter/Gauge/Histogram object registered against a
// package-level registry.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry is the collector registry the /metrics HTTP handler serves.
var Registry = prometheus.NewRegistry()

var (
	// DecisionsTotal counts every non-hold Decision the orchestrator emits, by action.
	DecisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pairs_engine_decisions_total",
		Help: "Decisions emitted by the orchestrator, labeled by action.",
	}, []string{"action"})

	// OrdersFilledTotal counts filled legs, by symbol and side.
	OrdersFilledTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pairs_engine_orders_filled_total",
		Help: "Order legs filled by the order manager, labeled by symbol and side.",
	}, []string{"symbol", "side"})

	// RateLimiterCooldownsTotal counts adaptive-backoff cooldowns entered.
	RateLimiterCooldownsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pairs_engine_rate_limiter_cooldowns_total",
		Help: "Number of times the rate limiter entered an adaptive backoff cooldown.",
	})

	// OpenPositions reports the current open-position count.
	OpenPositions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pairs_engine_open_positions",
		Help: "Current number of open pair positions.",
	})

	// IterationLatency histograms one engine tick's wall-clock duration.
	IterationLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pairs_engine_iteration_latency_seconds",
		Help:    "Wall-clock duration of one engine tick.",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	Registry.MustRegister(DecisionsTotal, OrdersFilledTotal, RateLimiterCooldownsTotal, OpenPositions, IterationLatency)
}
