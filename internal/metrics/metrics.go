// Package metrics defines the Prometheus collectors shared across the engine
// and its adapters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// VotesTotal tracks cast votes by target (item/comment), direction, and result.
	VotesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "votes_total",
			Help: "Total votes cast by target, direction, and result",
		},
		[]string{"target", "direction", "result"},
	)

	// RankRefreshesTotal counts opportunistic rank re-index operations.
	RankRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rank_refreshes_total",
			Help: "Total lazy rank refreshes by result (updated/fresh/failed)",
		},
		[]string{"result"},
	)

	// CommentOpsTotal counts comment inserts, edits, and tombstones.
	CommentOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comment_ops_total",
			Help: "Total comment operations by kind",
		},
		[]string{"op"},
	)

	// KarmaCreditsTotal counts passive karma credits applied.
	KarmaCreditsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "karma_credits_total",
			Help: "Total passive karma credits applied",
		},
	)

	// RedisOpsTotal tracks Redis command executions.
	RedisOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_ops_total",
			Help: "Total Redis operations by command and status",
		},
		[]string{"operation", "status"},
	)

	// RedisOpDuration tracks Redis command latency.
	RedisOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_op_duration_seconds",
			Help:    "Redis operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// RedisConnectionErrors counts failed Redis dials.
	RedisConnectionErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "redis_connection_errors_total",
			Help: "Total Redis connection errors",
		},
	)

	// CircuitBreakerState exposes the current breaker state (0 closed, 1 half-open, 2 open).
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"component"},
	)
)
