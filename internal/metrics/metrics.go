package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Data API metrics
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_http_requests_total",
			Help: "Data API request attempts by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"}, // "success", "transient", "permanent"
	)

	HTTPRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_http_retries_total",
			Help: "Data API retries scheduled after a transient failure",
		},
		[]string{"endpoint"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ingest_http_request_duration_seconds",
			Help:    "Data API request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		},
		[]string{"endpoint"},
	)

	// Throttling metrics
	RateLimitWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_ratelimit_wait_seconds",
			Help:    "Time spent waiting for a rate limiter permit",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)

	GateInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ingest_gate_in_flight",
			Help: "Fetch tasks currently holding a concurrency slot",
		},
	)

	// Store metrics
	RowsUpserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_rows_upserted_total",
			Help: "Rows inserted or changed by upserts",
		},
		[]string{"table"},
	)

	BatchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_batch_failures_total",
			Help: "Upsert batches rolled back",
		},
		[]string{"table"},
	)

	// Run metrics
	Runs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_runs_total",
			Help: "Finished ingest runs by final status",
		},
		[]string{"status"},
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_run_duration_seconds",
			Help:    "Wall-clock duration of ingest runs",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s .. ~34m
		},
	)

	StateTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_state_transitions_total",
			Help: "Orchestrator state transitions",
		},
		[]string{"from", "to"},
	)

	AccountErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_account_errors_total",
			Help: "Per-account failures recorded in run summaries",
		},
		[]string{"kind"},
	)
)

// Handler returns the HTTP handler exposing the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
