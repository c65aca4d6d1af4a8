// Package middleware provides ranking calibration experiment routing and monitoring.
package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Experiment cohort names. Candidate viewers are served the candidate weight
// calibration; control viewers get the default weights.
const (
	CohortCandidate = "candidate"
	CohortControl   = "control"
)

// rankingCohortKey is the context key for the assigned experiment cohort.
type rankingCohortKey struct{}

// GetRankingCohort retrieves the experiment cohort from context.
// Returns CohortControl if no experiment middleware ran.
func GetRankingCohort(ctx context.Context) string {
	if cohort, ok := ctx.Value(rankingCohortKey{}).(string); ok {
		return cohort
	}
	return CohortControl
}

// SetRankingCohort stores the experiment cohort in context. Exposed for
// handler tests; the experiment middleware sets it on live requests.
func SetRankingCohort(ctx context.Context, cohort string) context.Context {
	return context.WithValue(ctx, rankingCohortKey{}, cohort)
}

// ExperimentConfig holds configuration for a ranking calibration experiment.
type ExperimentConfig struct {
	Enabled          bool
	TrafficPercent   float64 // Percentage of viewers assigned the candidate calibration (0-100)
	ErrorThreshold   float64 // Error rate threshold for auto-rollback (0-100)
	LatencyThreshold float64 // Latency threshold in seconds for auto-rollback
	AutoRollback     bool    // Enable automatic rollback on threshold breach
	Calibration      string  // Identifier for the candidate calibration
}

// ExperimentRouter assigns viewers to experiment cohorts and monitors the
// candidate cohort for regressions. A rolled-back experiment serves everyone
// the control calibration until restarted.
type ExperimentRouter struct {
	config      ExperimentConfig
	metrics     *experimentMetrics
	promMetrics *Metrics
	logger      *slog.Logger
	mu          sync.RWMutex
	active      bool
}

// experimentMetrics tracks request outcomes per cohort.
type experimentMetrics struct {
	mu sync.RWMutex

	candidateRequests   int64
	candidateErrors     int64
	candidateLatencySum float64

	controlRequests   int64
	controlErrors     int64
	controlLatencySum float64

	windowStart time.Time
}

// NewExperimentRouter creates an experiment router with the given configuration.
func NewExperimentRouter(config ExperimentConfig, logger *slog.Logger) *ExperimentRouter {
	return &ExperimentRouter{
		config:  config,
		metrics: &experimentMetrics{windowStart: time.Now()},
		logger:  logger,
		active:  config.Enabled,
	}
}

// SetPrometheusMetrics sets the Prometheus metrics collector for experiment monitoring.
func (er *ExperimentRouter) SetPrometheusMetrics(metrics *Metrics) {
	er.promMetrics = metrics
	if metrics != nil {
		metrics.SetExperimentActive(er.active && er.config.Enabled)
	}
}

// Middleware assigns each request to a cohort and records per-cohort outcomes.
// Assignment hashes the authenticated viewer ID (falling back to client IP),
// so a viewer stays in the same cohort across requests.
func (er *ExperimentRouter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		er.mu.RLock()
		enabled := er.active && er.config.Enabled
		er.mu.RUnlock()

		if !enabled {
			w.Header().Set("X-Ranking-Cohort", CohortControl)
			r = r.WithContext(context.WithValue(r.Context(), rankingCohortKey{}, CohortControl))
			next.ServeHTTP(w, r)
			return
		}

		cohort := er.assignCohort(r)

		w.Header().Set("X-Ranking-Cohort", cohort)
		if cohort == CohortCandidate {
			w.Header().Set("X-Ranking-Calibration", er.config.Calibration)
		}
		r = r.WithContext(context.WithValue(r.Context(), rankingCohortKey{}, cohort))

		start := time.Now()
		wrapped := &experimentResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		isError := wrapped.statusCode >= 500

		er.recordRequest(cohort, duration, isError)

		if er.config.AutoRollback && cohort == CohortCandidate {
			er.checkRollbackConditions()
		}
	})
}

// assignCohort deterministically assigns a request to a cohort.
func (er *ExperimentRouter) assignCohort(r *http.Request) string {
	id := GetViewerID(r.Context())
	if id == "" {
		id = IPKeyFunc()(r)
	}

	hash := sha256.Sum256([]byte(id))
	hashValue := binary.BigEndian.Uint64(hash[:8])

	// Map hash to a percentage with two decimal places of resolution
	percentage := float64(hashValue%10000) / 100.0

	if percentage < er.config.TrafficPercent {
		return CohortCandidate
	}
	return CohortControl
}

// recordRequest records request outcomes for a cohort.
func (er *ExperimentRouter) recordRequest(cohort string, duration float64, isError bool) {
	er.metrics.mu.Lock()
	if cohort == CohortCandidate {
		er.metrics.candidateRequests++
		er.metrics.candidateLatencySum += duration
		if isError {
			er.metrics.candidateErrors++
		}
	} else {
		er.metrics.controlRequests++
		er.metrics.controlLatencySum += duration
		if isError {
			er.metrics.controlErrors++
		}
	}
	er.metrics.mu.Unlock()

	if er.promMetrics != nil {
		calibration := "default"
		if cohort == CohortCandidate {
			calibration = er.config.Calibration
		}
		er.promMetrics.ObserveExperimentRequest(cohort, calibration, duration, isError)
	}
}

// minExperimentSample is the minimum candidate request count before rollback
// conditions are evaluated.
const minExperimentSample = 100

// checkRollbackConditions evaluates candidate metrics against thresholds and
// rolls the experiment back on breach.
func (er *ExperimentRouter) checkRollbackConditions() {
	er.metrics.mu.RLock()

	if er.metrics.candidateRequests < minExperimentSample {
		er.metrics.mu.RUnlock()
		return
	}

	candidateErrorRate := float64(er.metrics.candidateErrors) / float64(er.metrics.candidateRequests) * 100
	var controlErrorRate float64
	if er.metrics.controlRequests > 0 {
		controlErrorRate = float64(er.metrics.controlErrors) / float64(er.metrics.controlRequests) * 100
	}

	candidateAvgLatency := er.metrics.candidateLatencySum / float64(er.metrics.candidateRequests)
	var controlAvgLatency float64
	if er.metrics.controlRequests > 0 {
		controlAvgLatency = er.metrics.controlLatencySum / float64(er.metrics.controlRequests)
	}

	// Release before Rollback, which takes the router lock
	er.metrics.mu.RUnlock()

	if candidateErrorRate > er.config.ErrorThreshold {
		er.logger.Error("experiment rollback triggered: error rate exceeded threshold",
			"candidate_error_rate", fmt.Sprintf("%.2f%%", candidateErrorRate),
			"control_error_rate", fmt.Sprintf("%.2f%%", controlErrorRate),
			"threshold", fmt.Sprintf("%.2f%%", er.config.ErrorThreshold),
		)
		er.Rollback("error_rate_exceeded")
		return
	}

	if candidateAvgLatency > er.config.LatencyThreshold {
		er.logger.Error("experiment rollback triggered: latency exceeded threshold",
			"candidate_avg_latency", fmt.Sprintf("%.3fs", candidateAvgLatency),
			"control_avg_latency", fmt.Sprintf("%.3fs", controlAvgLatency),
			"threshold", fmt.Sprintf("%.3fs", er.config.LatencyThreshold),
		)
		er.Rollback("latency_exceeded")
		return
	}

	// Candidate should not be significantly worse than control
	if controlErrorRate > 0 && candidateErrorRate > controlErrorRate*2 {
		er.logger.Error("experiment rollback triggered: error rate significantly higher than control",
			"candidate_error_rate", fmt.Sprintf("%.2f%%", candidateErrorRate),
			"control_error_rate", fmt.Sprintf("%.2f%%", controlErrorRate),
		)
		er.Rollback("relative_error_rate_high")
		return
	}
}

// Rollback disables the candidate calibration and serves everyone control.
func (er *ExperimentRouter) Rollback(reason string) {
	er.mu.Lock()
	defer er.mu.Unlock()

	if !er.active {
		return
	}

	er.active = false
	er.logger.Warn("ranking experiment rolled back",
		"reason", reason,
		"calibration", er.config.Calibration,
	)

	if er.promMetrics != nil {
		er.promMetrics.SetExperimentActive(false)
	}
}

// Active reports whether the candidate calibration is still serving traffic.
func (er *ExperimentRouter) Active() bool {
	er.mu.RLock()
	defer er.mu.RUnlock()
	return er.active
}

// ExperimentSnapshot represents a point-in-time snapshot of experiment metrics.
type ExperimentSnapshot struct {
	CandidateRequests   int64         `json:"candidate_requests"`
	CandidateErrors     int64         `json:"candidate_errors"`
	CandidateErrorRate  float64       `json:"candidate_error_rate"`
	CandidateAvgLatency float64       `json:"candidate_avg_latency"`
	ControlRequests     int64         `json:"control_requests"`
	ControlErrors       int64         `json:"control_errors"`
	ControlErrorRate    float64       `json:"control_error_rate"`
	ControlAvgLatency   float64       `json:"control_avg_latency"`
	WindowStart         time.Time     `json:"window_start"`
	WindowDuration      time.Duration `json:"window_duration"`
	Active              bool          `json:"active"`
	Calibration         string        `json:"calibration"`
}

// Snapshot returns the current experiment metrics.
func (er *ExperimentRouter) Snapshot() ExperimentSnapshot {
	er.metrics.mu.RLock()
	defer er.metrics.mu.RUnlock()

	candidateAvgLatency := 0.0
	candidateErrorRate := 0.0
	if er.metrics.candidateRequests > 0 {
		candidateAvgLatency = er.metrics.candidateLatencySum / float64(er.metrics.candidateRequests)
		candidateErrorRate = float64(er.metrics.candidateErrors) / float64(er.metrics.candidateRequests) * 100
	}

	controlAvgLatency := 0.0
	controlErrorRate := 0.0
	if er.metrics.controlRequests > 0 {
		controlAvgLatency = er.metrics.controlLatencySum / float64(er.metrics.controlRequests)
		controlErrorRate = float64(er.metrics.controlErrors) / float64(er.metrics.controlRequests) * 100
	}

	return ExperimentSnapshot{
		CandidateRequests:   er.metrics.candidateRequests,
		CandidateErrors:     er.metrics.candidateErrors,
		CandidateErrorRate:  candidateErrorRate,
		CandidateAvgLatency: candidateAvgLatency,
		ControlRequests:     er.metrics.controlRequests,
		ControlErrors:       er.metrics.controlErrors,
		ControlErrorRate:    controlErrorRate,
		ControlAvgLatency:   controlAvgLatency,
		WindowStart:         er.metrics.windowStart,
		WindowDuration:      time.Since(er.metrics.windowStart),
		Active:              er.active,
		Calibration:         er.config.Calibration,
	}
}

// ResetMetrics resets the metrics window.
func (er *ExperimentRouter) ResetMetrics() {
	er.metrics.mu.Lock()
	defer er.metrics.mu.Unlock()

	er.metrics.candidateRequests = 0
	er.metrics.candidateErrors = 0
	er.metrics.candidateLatencySum = 0
	er.metrics.controlRequests = 0
	er.metrics.controlErrors = 0
	er.metrics.controlLatencySum = 0
	er.metrics.windowStart = time.Now()
}

// experimentResponseWriter wraps http.ResponseWriter to capture status code.
type experimentResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *experimentResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
