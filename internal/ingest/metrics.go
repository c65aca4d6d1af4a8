package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricSignalsProcessed = "ingest_signals_processed_total"
	MetricSignalsError     = "ingest_signals_error_total"
	MetricSignalsApplied   = "ingest_signals_applied_total"
	MetricUnknownPost      = "ingest_unknown_post_total"
	MetricApplyLatency     = "ingest_apply_latency_seconds"
)

// Metrics contains Prometheus metrics for the signal consumer.
// All operations are thread-safe, and every method is nil-safe so callers
// can run without metrics wired.
type Metrics struct {
	signalsProcessed prometheus.Counter
	signalsError     prometheus.Counter
	signalsApplied   *prometheus.CounterVec
	unknownPost      prometheus.Counter
	applyLatency     prometheus.Histogram
}

// NewMetrics creates a Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		signalsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricSignalsProcessed,
			Help: "Total number of signal stream messages received",
		}),
		signalsError: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricSignalsError,
			Help: "Total number of signals that were malformed or failed to apply",
		}),
		signalsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricSignalsApplied,
			Help: "Total number of signals applied to posts, by kind",
		}, []string{"kind"}),
		unknownPost: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricUnknownPost,
			Help: "Total number of signals referencing posts not in the store",
		}),
		applyLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricApplyLatency,
			Help:    "Histogram of signal apply latency in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Register registers all metrics with the given registry.
// Returns an error if registration fails.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.signalsProcessed,
		m.signalsError,
		m.signalsApplied,
		m.unknownPost,
		m.applyLatency,
	}

	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) incProcessed() {
	if m == nil {
		return
	}
	m.signalsProcessed.Inc()
}

func (m *Metrics) incErrors() {
	if m == nil {
		return
	}
	m.signalsError.Inc()
}

func (m *Metrics) incApplied(kind string) {
	if m == nil {
		return
	}
	m.signalsApplied.WithLabelValues(kind).Inc()
}

func (m *Metrics) incUnknownPost() {
	if m == nil {
		return
	}
	m.unknownPost.Inc()
}

func (m *Metrics) observeLatency(seconds float64) {
	if m == nil {
		return
	}
	m.applyLatency.Observe(seconds)
}
