package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RetryAttemptsTotal tracks retries scheduled per retried operation
	RetryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backstop_retry_attempts_total",
			Help: "Total number of retries scheduled after a failed attempt",
		},
		[]string{"op"},
	)

	// ErrorResponsesTotal tracks rendered error responses
	ErrorResponsesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backstop_error_responses_total",
			Help: "Total number of error responses rendered at the boundary",
		},
		[]string{"status", "representation"},
	)

	// RenderErrorsTotal tracks failures to render an error response
	RenderErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backstop_render_errors_total",
			Help: "Total number of error contexts that could not be rendered",
		},
		[]string{"representation"},
	)

	// UpstreamRequestsTotal tracks upstream calls per outcome
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backstop_upstream_requests_total",
			Help: "Total number of upstream requests",
		},
		[]string{"upstream", "outcome"},
	)

	// UpstreamLatency tracks upstream call latency, retries included
	UpstreamLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backstop_upstream_latency_seconds",
			Help:    "Upstream call latency in seconds, including retries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"upstream"},
	)
)

// ObserveRetry is a retry.Executor OnRetry hook.
func ObserveRetry(op string, _ int, _ time.Duration) {
	RetryAttemptsTotal.WithLabelValues(op).Inc()
}
