package audit

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/onda-social/onda/internal/middleware"
)

var (
	// ErrNilRepository is returned when a nil repository is passed to logging functions.
	ErrNilRepository = errors.New("audit repository cannot be nil")
	// ErrInvalidEntityType is returned when an invalid entity type is provided.
	ErrInvalidEntityType = errors.New("entity type cannot be empty")
	// ErrInvalidEntityID is returned when an invalid entity ID is provided.
	ErrInvalidEntityID = errors.New("entity ID cannot be empty")
	// ErrInvalidAction is returned when an invalid action is provided.
	ErrInvalidAction = errors.New("action cannot be empty")
)

// ValidEntityTypes defines the allowed entity types for audit logging.
var ValidEntityTypes = map[string]bool{
	"post":   true,
	"viewer": true,
	"prefs":  true,
	"token":  true,
}

// ValidActions defines the allowed actions for audit logging.
var ValidActions = map[string]bool{
	"view_ranking_prefs":   true,
	"modify_ranking_prefs": true,
	"modify_interests":     true,
	"follow_author":        true,
	"unfollow_author":      true,
	"delete_post":          true,
	"issue_token":          true,
	"export_viewer_data":   true,
}

// validateLogEntry validates the required fields of a log entry against whitelists.
func validateLogEntry(entityType, entityID, action string) error {
	if entityType == "" {
		return ErrInvalidEntityType
	}
	if entityID == "" {
		return ErrInvalidEntityID
	}
	if action == "" {
		return ErrInvalidAction
	}

	if !ValidEntityTypes[entityType] {
		return ErrInvalidEntityType
	}
	if !ValidActions[action] {
		return ErrInvalidAction
	}

	return nil
}

// extractIPAddress extracts the client IP address from an HTTP request.
// It checks X-Forwarded-For, X-Real-IP, and RemoteAddr in that order.
// The port is stripped so the value stores cleanly.
func extractIPAddress(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// Use the first IP in the chain, trimming whitespace per RFC 7239
		var firstIP string
		if idx := strings.Index(xff, ","); idx != -1 {
			firstIP = strings.TrimSpace(xff[:idx])
		} else {
			firstIP = strings.TrimSpace(xff)
		}
		if firstIP != "" {
			host, _, err := net.SplitHostPort(firstIP)
			if err != nil {
				// IP might not have a port
				return firstIP
			}
			return host
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		xri = strings.TrimSpace(xri)
		host, _, err := net.SplitHostPort(xri)
		if err != nil {
			return xri
		}
		return host
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// LogAccess records an access event to the audit log. It extracts the
// viewer ID and request ID from the context if available.
//
// Error handling is fail-closed: if audit logging fails, the error is
// returned to the caller so compliance-sensitive operations can abort.
func LogAccess(ctx context.Context, repo Repository, entityType, entityID, action string) error {
	if repo == nil {
		return ErrNilRepository
	}

	if err := validateLogEntry(entityType, entityID, action); err != nil {
		return err
	}

	entry := LogEntry{
		ViewerID:   middleware.GetViewerID(ctx),
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		RequestID:  middleware.GetRequestID(ctx),
	}

	_, err := repo.LogAccess(entry)
	return err
}

// LogAccessFromRequest records an access event with HTTP request metadata:
// viewer ID, request ID, client IP and user agent.
func LogAccessFromRequest(r *http.Request, repo Repository, entityType, entityID, action string) error {
	if repo == nil {
		return ErrNilRepository
	}

	if err := validateLogEntry(entityType, entityID, action); err != nil {
		return err
	}

	entry := LogEntry{
		ViewerID:   middleware.GetViewerID(r.Context()),
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		RequestID:  middleware.GetRequestID(r.Context()),
		IPAddress:  extractIPAddress(r),
		UserAgent:  r.UserAgent(),
	}

	_, err := repo.LogAccess(entry)
	return err
}
