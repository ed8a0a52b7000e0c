// Package metrics exposes Prometheus collectors for the analyzer service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	analyzerTasksTotal          *prometheus.CounterVec
	analyzerRetriesTotal        prometheus.Counter
	analyzerQueueDepth          prometheus.Gauge
	analyzerStageDuration       *prometheus.HistogramVec
	analyzerEmailsTotal         *prometheus.CounterVec
	httpRequestsTotal           *prometheus.CounterVec
	httpRequestDurationSeconds  *prometheus.HistogramVec
	analyzerReconciledTotal     prometheus.Counter
	analyzerScratchClearsFailed prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus collectors. It is safe to call multiple
// times; the observers below call it themselves so ordering never matters.
func Init() {
	once.Do(func() {
		analyzerTasksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analyzer_tasks_total",
				Help: "Total number of analysis tasks finished, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		analyzerRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "analyzer_task_retries_total",
				Help: "Total number of retry attempts scheduled for transient failures.",
			},
		)

		analyzerQueueDepth = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "analyzer_queue_depth",
				Help: "Number of tasks currently waiting in the queue.",
			},
		)

		analyzerStageDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "analyzer_stage_duration_seconds",
				Help:    "Histogram of pipeline stage durations, labeled by stage.",
				Buckets: []float64{0.5, 1, 5, 15, 60, 180, 600, 1800},
			},
			[]string{"stage"},
		)

		analyzerEmailsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analyzer_emails_total",
				Help: "Total completion emails attempted, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		analyzerReconciledTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "analyzer_reconciled_records_total",
				Help: "Total analysis records restored into the status cache.",
			},
		)

		analyzerScratchClearsFailed = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "analyzer_scratch_clear_failures_total",
				Help: "Total failed scratch-store cleanup attempts.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveTask increments the task counter for the given outcome.
func ObserveTask(outcome string) {
	Init()
	analyzerTasksTotal.WithLabelValues(outcome).Inc()
}

// ObserveRetry counts one scheduled retry.
func ObserveRetry() {
	Init()
	analyzerRetriesTotal.Inc()
}

// SetQueueDepth records the current queue depth.
func SetQueueDepth(depth int) {
	Init()
	analyzerQueueDepth.Set(float64(depth))
}

// ObserveStage records the duration of one pipeline stage.
func ObserveStage(stage string, duration time.Duration) {
	Init()
	analyzerStageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// ObserveEmail increments the email counter for the given outcome.
func ObserveEmail(outcome string) {
	Init()
	analyzerEmailsTotal.WithLabelValues(outcome).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveReconciled counts records restored during reconciliation.
func ObserveReconciled(n int) {
	Init()
	analyzerReconciledTotal.Add(float64(n))
}

// ObserveScratchClearFailure counts one failed scratch cleanup.
func ObserveScratchClearFailure() {
	Init()
	analyzerScratchClearsFailed.Inc()
}
