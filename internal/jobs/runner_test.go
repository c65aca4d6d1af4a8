package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunner_RunsImmediatelyAndStopsOnCancel(t *testing.T) {
	var runs atomic.Int64
	r := NewRunner("test_job", time.Hour, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}, nil, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	// The first run fires before the first tick.
	deadline := time.After(2 * time.Second)
	for runs.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("job never ran")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if got := runs.Load(); got != 1 {
		t.Errorf("expected exactly 1 run with an hour interval, got %d", got)
	}
}

func TestRunner_RunsOnInterval(t *testing.T) {
	var runs atomic.Int64
	r := NewRunner("test_job", 20*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}, nil, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	deadline := time.After(2 * time.Second)
	for runs.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("expected at least 3 runs, got %d", runs.Load())
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestRunner_RecordsMetrics(t *testing.T) {
	m := NewMetrics()
	var calls atomic.Int64
	r := NewRunner(JobTypeAuditAnonymize, time.Hour, func(ctx context.Context) error {
		if calls.Add(1) == 1 {
			return errors.New("boom")
		}
		return nil
	}, m, slog.Default())

	r.runOnce(context.Background())
	r.runOnce(context.Background())

	if got := getCounterVecValue(m.jobsTotal, JobTypeAuditAnonymize, StatusFailure); got != 1 {
		t.Errorf("failure count = %f, want 1", got)
	}
	if got := getCounterVecValue(m.jobsTotal, JobTypeAuditAnonymize, StatusSuccess); got != 1 {
		t.Errorf("success count = %f, want 1", got)
	}
	if got := getCounterVecValue(m.jobErrors, JobTypeAuditAnonymize, "run_error"); got != 1 {
		t.Errorf("error count = %f, want 1", got)
	}
	if got := getHistogramVecSampleCount(m.jobsDuration, JobTypeAuditAnonymize); got != 2 {
		t.Errorf("duration sample count = %d, want 2", got)
	}
}
