package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for audit log operations.
type Repository interface {
	// LogAccess records an access event to the audit log.
	// Returns the created audit log entry.
	LogAccess(entry LogEntry) (*AuditLog, error)

	// QueryByEntity retrieves audit logs for a specific entity, sorted by time (newest first).
	// Limit specifies the maximum number of entries to return (0 = no limit).
	QueryByEntity(entityType, entityID string, limit int) ([]*AuditLog, error)

	// QueryByViewer retrieves audit logs for a specific viewer, sorted by time (newest first).
	// Limit specifies the maximum number of entries to return (0 = no limit).
	QueryByViewer(viewerID string, limit int) ([]*AuditLog, error)

	// AnonymizeIPsBefore rewrites the IP address of entries older than the
	// cutoff. Returns the number of entries touched.
	AnonymizeIPsBefore(cutoff time.Time) (int, error)
}

// chainHash computes the tamper-detection hash of an entry. IPAddress and
// UserAgent are excluded so retention anonymization cannot break the chain.
func chainHash(log *AuditLog) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%s|%s|%s|%s|%s",
		log.ID,
		log.ViewerID,
		log.EntityType,
		log.EntityID,
		log.Action,
		log.Outcome,
		log.CreatedAt.UTC().Format(time.RFC3339Nano),
		log.RequestID,
		log.PreviousHash,
	)
	return hex.EncodeToString(h.Sum(nil))
}

// InMemoryRepository is an in-memory implementation of Repository.
// Used for testing and development. Thread-safe via RWMutex.
type InMemoryRepository struct {
	mu   sync.RWMutex
	logs map[string]*AuditLog
	// Maintain insertion order for queries and chain verification
	order    []string
	lastHash string
	now      func() time.Time
}

// NewInMemoryRepository creates a new in-memory audit repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		logs:  make(map[string]*AuditLog),
		order: make([]string, 0),
		now:   time.Now,
	}
}

// SetClock replaces the repository's time source. CreatedAt feeds the hash
// chain, so entries must carry their final timestamp when they are linked.
func (r *InMemoryRepository) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// LogAccess records an access event to the audit log, linking it into the
// hash chain.
func (r *InMemoryRepository) LogAccess(entry LogEntry) (*AuditLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	outcome := entry.Outcome
	if outcome == "" {
		outcome = "success"
	}

	log := &AuditLog{
		ID:           uuid.New().String(),
		ViewerID:     entry.ViewerID,
		EntityType:   entry.EntityType,
		EntityID:     entry.EntityID,
		Action:       entry.Action,
		Outcome:      outcome,
		CreatedAt:    r.now().UTC(),
		RequestID:    entry.RequestID,
		IPAddress:    entry.IPAddress,
		UserAgent:    entry.UserAgent,
		PreviousHash: r.lastHash,
	}

	r.logs[log.ID] = log
	r.order = append(r.order, log.ID)
	r.lastHash = chainHash(log)

	// Return a copy to prevent external modification
	logCopy := *log
	return &logCopy, nil
}

// GetLastHash returns the hash of the most recent entry, or the empty
// string for an empty log.
func (r *InMemoryRepository) GetLastHash() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastHash
}

// VerifyHashChain walks every entry in insertion order and recomputes the
// chain. Returns an error naming the first entry whose link does not match.
func (r *InMemoryRepository) VerifyHashChain() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	prev := ""
	for i, id := range r.order {
		log := r.logs[id]
		if log.PreviousHash != prev {
			return fmt.Errorf("hash chain broken at entry %d (id %s)", i, id)
		}
		prev = chainHash(log)
	}
	if prev != r.lastHash {
		return fmt.Errorf("hash chain head does not match last recorded hash")
	}
	return nil
}

// QueryByEntity retrieves audit logs for a specific entity, sorted by time (newest first).
func (r *InMemoryRepository) QueryByEntity(entityType, entityID string, limit int) ([]*AuditLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []*AuditLog

	// Iterate in reverse order (newest first)
	for i := len(r.order) - 1; i >= 0; i-- {
		log := r.logs[r.order[i]]

		if log.EntityType == entityType && log.EntityID == entityID {
			logCopy := *log
			results = append(results, &logCopy)

			if limit > 0 && len(results) >= limit {
				break
			}
		}
	}

	return results, nil
}

// QueryByViewer retrieves audit logs for a specific viewer, sorted by time (newest first).
func (r *InMemoryRepository) QueryByViewer(viewerID string, limit int) ([]*AuditLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []*AuditLog

	for i := len(r.order) - 1; i >= 0; i-- {
		log := r.logs[r.order[i]]

		if log.ViewerID == viewerID {
			logCopy := *log
			results = append(results, &logCopy)

			if limit > 0 && len(results) >= limit {
				break
			}
		}
	}

	return results, nil
}

// AnonymizeIPsBefore rewrites the IP address of entries older than the
// cutoff using AnonymizeIP. Entries with no IP are skipped. The hash chain
// stays valid because IP addresses are not part of chainHash.
func (r *InMemoryRepository) AnonymizeIPsBefore(cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, id := range r.order {
		log := r.logs[id]
		if log.IPAddress == "" || !log.CreatedAt.Before(cutoff) {
			continue
		}
		anonymized := AnonymizeIP(log.IPAddress)
		if anonymized == log.IPAddress {
			continue
		}
		log.IPAddress = anonymized
		count++
	}
	return count, nil
}
