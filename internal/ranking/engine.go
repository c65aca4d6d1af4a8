package ranking

import (
	"log/slog"
	"strings"
	"time"
)

// Engine evaluates eligibility, scores posts, and assembles feeds. It is
// immutable after construction and safe for concurrent use: every call
// operates only on its arguments.
type Engine struct {
	weights *Weights
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithWeights sets the scoring weights. Nil falls back to DefaultWeights.
func WithWeights(w *Weights) Option {
	return func(e *Engine) {
		if w != nil {
			e.weights = w
		}
	}
}

// WithLogger sets the logger used for data-integrity warnings and
// eligibility diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics attaches Prometheus metrics to the engine.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithClock overrides the time source. Used by tests that need
// deterministic recency terms.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine creates a ranking engine with production defaults.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		weights: DefaultWeights(),
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// fuzzyMatch reports whether two tags match: case-insensitive equality or
// substring containment in either direction. Empty strings never match;
// otherwise every tag would contain them.
func fuzzyMatch(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	la, lb := strings.ToLower(a), strings.ToLower(b)
	return strings.Contains(la, lb) || strings.Contains(lb, la)
}

// matchesAnyTopic reports whether the post's primary topic or any of its
// semantic tags fuzzy-matches one of the target topics.
func matchesAnyTopic(topic string, tags []string, targets []string) bool {
	for _, target := range targets {
		if fuzzyMatch(topic, target) {
			return true
		}
		for _, tag := range tags {
			if fuzzyMatch(tag, target) {
				return true
			}
		}
	}
	return false
}
