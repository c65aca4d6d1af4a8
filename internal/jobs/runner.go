package jobs

import (
	"context"
	"log/slog"
	"time"
)

// Runner executes a named background job on a fixed interval and records
// job metrics for every run.
type Runner struct {
	name     string
	interval time.Duration
	fn       func(context.Context) error
	metrics  *Metrics
	logger   *slog.Logger
}

// NewRunner creates a Runner for the given job. The metrics parameter may
// be nil, in which case runs are only logged.
func NewRunner(name string, interval time.Duration, fn func(context.Context) error, metrics *Metrics, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		name:     name,
		interval: interval,
		fn:       fn,
		metrics:  metrics,
		logger:   logger,
	}
}

// Run blocks until ctx is cancelled. The job fires once at startup and then
// on every interval tick.
func (r *Runner) Run(ctx context.Context) {
	r.runOnce(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runOnce(ctx)
		}
	}
}

func (r *Runner) runOnce(ctx context.Context) {
	start := time.Now()
	err := r.fn(ctx)
	elapsed := time.Since(start).Seconds()

	if r.metrics != nil {
		r.metrics.ObserveJobDuration(r.name, elapsed)
	}

	if err != nil {
		if r.metrics != nil {
			r.metrics.IncJobsTotal(r.name, StatusFailure)
			r.metrics.IncJobErrors(r.name, "run_error")
		}
		r.logger.Error("background job failed", "job", r.name, "error", err)
		return
	}

	if r.metrics != nil {
		r.metrics.IncJobsTotal(r.name, StatusSuccess)
	}
	r.logger.Debug("background job completed", "job", r.name, "duration_seconds", elapsed)
}
