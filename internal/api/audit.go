package api

import (
	"log/slog"
	"net/http"

	"github.com/onda-social/onda/internal/audit"
)

// recordAudit writes an audit entry for a sensitive operation. Handlers
// call it after the operation succeeds, so a failed write is logged but
// does not roll back the response.
func recordAudit(r *http.Request, repo audit.Repository, entityType, entityID, action string) {
	if repo == nil {
		return
	}
	if err := audit.LogAccessFromRequest(r, repo, entityType, entityID, action); err != nil {
		slog.ErrorContext(r.Context(), "failed to write audit log",
			"error", err,
			"entity_type", entityType,
			"entity_id", entityID,
			"action", action,
		)
	}
}
