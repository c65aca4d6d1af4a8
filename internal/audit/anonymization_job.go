package audit

import (
	"context"
	"fmt"
	"log/slog"
)

// AnonymizationJob defines the interface for IP address anonymization jobs.
type AnonymizationJob interface {
	// Run executes the IP anonymization process for eligible audit logs.
	// Returns the number of logs anonymized and any error encountered.
	Run(ctx context.Context) (int, error)
}

// AnonymizationJobConfig configures the IP anonymization job.
type AnonymizationJobConfig struct {
	Repository Repository   // Audit log repository
	Logger     *slog.Logger // Logger for job execution
	DryRun     bool         // If true, only log what would be anonymized
}

// BasicAnonymizationJob anonymizes IP addresses on audit logs older than
// the retention cutoff. It is intended to run on a schedule, typically daily.
type BasicAnonymizationJob struct {
	config AnonymizationJobConfig
}

// NewAnonymizationJob creates a new IP anonymization job.
func NewAnonymizationJob(config AnonymizationJobConfig) *BasicAnonymizationJob {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &BasicAnonymizationJob{config: config}
}

// Run executes the IP anonymization process.
func (j *BasicAnonymizationJob) Run(ctx context.Context) (int, error) {
	if j.config.Repository == nil {
		return 0, fmt.Errorf("anonymization job requires a repository")
	}

	cutoff := IPAnonymizationCutoff()
	j.config.Logger.InfoContext(ctx, "Starting IP anonymization job",
		"cutoff_date", cutoff,
		"dry_run", j.config.DryRun,
	)

	if j.config.DryRun {
		j.config.Logger.InfoContext(ctx, "Dry run, no logs modified")
		return 0, nil
	}

	count, err := j.config.Repository.AnonymizeIPsBefore(cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to anonymize audit log IPs: %w", err)
	}

	j.config.Logger.InfoContext(ctx, "IP anonymization job complete",
		"logs_anonymized", count,
	)
	return count, nil
}

// AnonymizeOldIPs anonymizes IP addresses in logs older than the retention
// cutoff. Convenience wrapper for one-shot invocations.
func AnonymizeOldIPs(repo Repository, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cutoff := IPAnonymizationCutoff()
	count, err := repo.AnonymizeIPsBefore(cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to anonymize audit log IPs: %w", err)
	}

	logger.Info("IP anonymization complete",
		"cutoff_date", cutoff,
		"logs_anonymized", count,
	)
	return count, nil
}
