// Package audit provides audit logging for sensitive viewer operations:
// preference changes, follow graph edits, post deletion and token issuance.
package audit

import (
	"time"
)

// AuditLog represents a single audit event in the system.
type AuditLog struct {
	ID         string
	ViewerID   string
	EntityType string
	EntityID   string
	Action     string
	Outcome    string // "success" or "failure"
	CreatedAt  time.Time

	// Optional metadata
	RequestID string
	IPAddress string
	UserAgent string

	// PreviousHash chains entries for tamper detection. It covers the
	// immutable fields only; IPAddress and UserAgent are excluded so the
	// retention anonymization job can rewrite them without breaking the
	// chain.
	PreviousHash string
}

// LogEntry represents the input for creating an audit log entry.
type LogEntry struct {
	ViewerID   string
	EntityType string
	EntityID   string
	Action     string
	Outcome    string // "success" or "failure"

	// Optional metadata
	RequestID string
	IPAddress string
	UserAgent string
}
