// Package idempotency provides cleanup utilities for idempotency key management.
package idempotency

import (
	"log/slog"
	"time"
)

// DefaultExpiry is the default duration after which idempotency keys expire.
const DefaultExpiry = 24 * time.Hour

// CleanupOldKeys removes idempotency keys older than the specified duration.
// This function should be called periodically (e.g., via cron job) to prevent unbounded growth.
// Returns the number of keys deleted and any error encountered.
func CleanupOldKeys(repo Repository, expiry time.Duration) (int64, error) {
	deleted, err := repo.DeleteOlderThan(expiry)
	if err != nil {
		slog.Error("failed to cleanup old idempotency keys", "error", err)
		return 0, err
	}

	if deleted > 0 {
		slog.Info("cleaned up old idempotency keys", "deleted", deleted, "older_than", expiry)
	}

	return deleted, nil
}
