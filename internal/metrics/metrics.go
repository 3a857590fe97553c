package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "replenishment"

// Metrics groups the engine's Prometheus collectors. A nil *Metrics is a
// valid no-op recorder.
type Metrics struct {
	// HTTP request metrics
	HttpRequestsTotal   *prometheus.CounterVec
	HttpRequestDuration *prometheus.HistogramVec

	// Run metrics
	RunsTotal         *prometheus.CounterVec
	RunDuration       *prometheus.HistogramVec
	BatchesTotal      *prometheus.CounterVec
	BatchRetriesTotal *prometheus.CounterVec
	ProductsTotal     *prometheus.CounterVec
	PriorityGauge     *prometheus.GaugeVec
	AlertsTotal       *prometheus.CounterVec
}

// New registers every collector on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		HttpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HttpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Analysis runs by final status",
			},
			[]string{"source", "status"},
		),
		RunDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Wall-clock duration of analysis runs",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
			},
			[]string{"source"},
		),
		BatchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batches_total",
				Help:      "Product batches by outcome",
			},
			[]string{"source", "status"},
		),
		BatchRetriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batch_retries_total",
				Help:      "Batch commit retries after transient failures",
			},
			[]string{"source"},
		),
		ProductsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "products_total",
				Help:      "Products processed by outcome (analyzed, skipped)",
			},
			[]string{"source", "outcome"},
		),
		PriorityGauge: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "recommendations",
				Help:      "Recommendations of the latest run by priority",
			},
			[]string{"source", "priority"},
		),
		AlertsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alerts_total",
				Help:      "Alert changes applied by reconciliation",
			},
			[]string{"source", "action"},
		),
	}
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.HttpRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HttpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// RecordRun records a finished run.
func (m *Metrics) RecordRun(source, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(source, status).Inc()
	m.RunDuration.WithLabelValues(source).Observe(duration.Seconds())
}

func (m *Metrics) RecordBatch(source, status string, retries int) {
	if m == nil {
		return
	}
	m.BatchesTotal.WithLabelValues(source, status).Inc()
	if retries > 0 {
		m.BatchRetriesTotal.WithLabelValues(source).Add(float64(retries))
	}
}

func (m *Metrics) RecordProducts(source string, analyzed, skipped int) {
	if m == nil {
		return
	}
	m.ProductsTotal.WithLabelValues(source, "analyzed").Add(float64(analyzed))
	m.ProductsTotal.WithLabelValues(source, "skipped").Add(float64(skipped))
}

// SetPriorityCounts replaces the per-priority gauge of a source.
func (m *Metrics) SetPriorityCounts(source string, counts map[string]int) {
	if m == nil {
		return
	}
	m.PriorityGauge.DeletePartialMatch(prometheus.Labels{"source": source})
	for priority, count := range counts {
		m.PriorityGauge.WithLabelValues(source, priority).Set(float64(count))
	}
}

func (m *Metrics) RecordAlerts(source string, raised, updated, resolved, reopened int) {
	if m == nil {
		return
	}
	m.AlertsTotal.WithLabelValues(source, "raised").Add(float64(raised))
	m.AlertsTotal.WithLabelValues(source, "updated").Add(float64(updated))
	m.AlertsTotal.WithLabelValues(source, "resolved").Add(float64(resolved))
	m.AlertsTotal.WithLabelValues(source, "reopened").Add(float64(reopened))
}
