package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GatewayRequestDuration records gateway call latency.
	GatewayRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "frzterr_gateway_request_duration_seconds",
		Help:    "Gateway call latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"backend", "op", "table"})

	// GatewayErrors counts failed gateway calls by error code.
	GatewayErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frzterr_gateway_errors_total",
		Help: "Total number of failed gateway calls",
	}, []string{"backend", "op", "code"})

	// OptimisticReverts counts optimistic mutations that did not confirm.
	OptimisticReverts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frzterr_optimistic_reverts_total",
		Help: "Optimistic mutations reverted or reconciled after a failed write",
	}, []string{"kind"})

	// FeedReloads counts feed loads by reason (initial, refresh, reconcile).
	FeedReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frzterr_feed_reloads_total",
		Help: "Feed loads by reason",
	}, []string{"reason"})

	// FeedAggregationDuration records the time to build one feed.
	FeedAggregationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "frzterr_feed_aggregation_seconds",
		Help:    "Feed aggregation latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"scope"})

	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frzterr_redis_errors_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// FeedSubscribers is the number of open feed WebSocket streams.
	FeedSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "frzterr_feed_subscribers",
		Help: "Open feed snapshot streams",
	})
)

// TrackGatewayCall returns a function that records latency and, when err is
// non-nil, the error code.
func TrackGatewayCall(backend, op, table string) func(code string) {
	start := time.Now()
	return func(code string) {
		GatewayRequestDuration.WithLabelValues(backend, op, table).Observe(time.Since(start).Seconds())
		if code != "" {
			GatewayErrors.WithLabelValues(backend, op, code).Inc()
		}
	}
}
