// Package metrics exposes the operational Prometheus metrics for the
// engine: task queue throughput, batch execution latency, and search
// latency. Analytics telemetry (per-query logging, dashboards) is out of
// scope, but basic operational counters are ambient infrastructure, not
// analytics, so they stay in scope here.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Task queue metrics.
	TasksRegisteredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vela_tasks_registered_total",
			Help: "Total number of tasks registered by kind",
		},
		[]string{"kind"},
	)

	TasksFinishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vela_tasks_finished_total",
			Help: "Total number of tasks that reached a terminal state, by kind and status",
		},
		[]string{"kind", "status"},
	)

	TaskQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vela_task_queue_depth",
			Help: "Number of tasks currently enqueued, by status",
		},
		[]string{"status"},
	)

	// Batch execution metrics.
	BatchesExecutedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vela_batches_executed_total",
			Help: "Total number of batches executed by the scheduler",
		},
	)

	BatchExecutionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vela_batch_execution_duration_seconds",
			Help:    "Time taken to execute one batch under its write transaction",
			Buckets: prometheus.DefBuckets,
		},
	)

	BatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vela_batch_size_tasks",
			Help:    "Number of tasks grouped into one executed batch",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	// Indexing metrics.
	DocumentsIndexedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vela_documents_indexed_total",
			Help: "Total number of documents indexed, by index uid",
		},
		[]string{"index"},
	)

	// Search metrics.
	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vela_search_requests_total",
			Help: "Total number of search requests, by index and outcome",
		},
		[]string{"index", "outcome"},
	)

	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vela_search_duration_seconds",
			Help:    "Search request duration in seconds, by index",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"index"},
	)

	IndexOpenTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vela_indexes_open",
			Help: "Number of indexes currently open in the registry",
		},
	)
)

func init() {
	prometheus.MustRegister(
		TasksRegisteredTotal,
		TasksFinishedTotal,
		TaskQueueDepth,
		BatchesExecutedTotal,
		BatchExecutionDuration,
		BatchSize,
		DocumentsIndexedTotal,
		SearchRequestsTotal,
		SearchDuration,
		IndexOpenTotal,
	)
}

// Handler serves the Prometheus exposition format for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures an in-flight operation's elapsed time.
type Timer struct {
	start time.Time
}

// NewTimer starts a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time since the timer started into
// histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time into a label-qualified
// histogram vec.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}
