package ranking

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricFeedGeneratedTotal      = "feed_generated_total"
	MetricFeedWindowAttemptsTotal = "feed_window_attempts_total"
	MetricFeedRelaxedPassesTotal  = "feed_relaxed_passes_total"
	MetricFeedFallbackTotal       = "feed_fallback_total"
	MetricFeedGenerationDuration  = "feed_generation_duration_seconds"
	MetricFeedCandidatePoolSize   = "feed_candidate_pool_size"
)

// Metrics contains Prometheus metrics for feed generation. All methods are
// nil-safe so an Engine without metrics costs nothing.
type Metrics struct {
	generatedTotal     prometheus.Counter
	windowAttempts     prometheus.Counter
	relaxedPasses      prometheus.Counter
	fallbackTotal      prometheus.Counter
	generationDuration prometheus.Histogram
	candidatePoolSize  prometheus.Histogram
}

// NewMetrics creates and returns a new Metrics instance with all collectors
// initialized. The metrics are not registered; call Register to register
// them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		generatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricFeedGeneratedTotal,
			Help: "Total number of feeds generated",
		}),
		windowAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricFeedWindowAttemptsTotal,
			Help: "Total number of window/relaxation passes attempted across all feeds",
		}),
		relaxedPasses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricFeedRelaxedPassesTotal,
			Help: "Total number of passes run with the muted-topic exclusion relaxed",
		}),
		fallbackTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricFeedFallbackTotal,
			Help: "Total number of feeds served from the unranked recency fallback",
		}),
		generationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricFeedGenerationDuration,
			Help:    "Histogram of feed generation duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		}),
		candidatePoolSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricFeedCandidatePoolSize,
			Help:    "Histogram of candidate pool sizes supplied to feed generation",
			Buckets: prometheus.ExponentialBuckets(10, 4, 6), // 10 to ~10k
		}),
	}
}

// Register registers all metrics with the given registry.
// Returns an error if registration fails.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.generatedTotal,
		m.windowAttempts,
		m.relaxedPasses,
		m.fallbackTotal,
		m.generationDuration,
		m.candidatePoolSize,
	}

	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) incWindowAttempts() {
	if m == nil {
		return
	}
	m.windowAttempts.Inc()
}

func (m *Metrics) incRelaxedPasses() {
	if m == nil {
		return
	}
	m.relaxedPasses.Inc()
}

func (m *Metrics) observePoolSize(n int) {
	if m == nil {
		return
	}
	m.candidatePoolSize.Observe(float64(n))
}

func (m *Metrics) observeGeneration(d time.Duration, fallback bool) {
	if m == nil {
		return
	}
	m.generatedTotal.Inc()
	m.generationDuration.Observe(d.Seconds())
	if fallback {
		m.fallbackTotal.Inc()
	}
}
