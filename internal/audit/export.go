package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"time"
)

// ExportFormat defines supported export formats.
type ExportFormat string

const (
	// ExportFormatCSV exports logs as comma-separated values.
	ExportFormatCSV ExportFormat = "csv"
	// ExportFormatJSON exports logs as JSON array.
	ExportFormatJSON ExportFormat = "json"
)

// ExportOptions configures audit log export parameters.
type ExportOptions struct {
	Format   ExportFormat // Export format (csv or json)
	From     time.Time    // Start of time range (inclusive)
	To       time.Time    // End of time range (inclusive)
	ViewerID string       // Filter by viewer ID (required)
	Limit    int          // Maximum number of entries to export (0 = no limit)
}

// ExportLogs exports audit logs matching the given options. A viewer ID
// filter is required; this is how data-access requests are served, so a
// whole-table dump is deliberately not offered here.
func ExportLogs(repo Repository, opts ExportOptions) ([]byte, error) {
	if opts.Format != ExportFormatCSV && opts.Format != ExportFormatJSON {
		return nil, fmt.Errorf("unsupported export format: %s", opts.Format)
	}

	if opts.ViewerID == "" {
		return nil, fmt.Errorf("export requires a viewer ID filter")
	}

	// Query without limit first so the limit applies after time filtering.
	logs, err := repo.QueryByViewer(opts.ViewerID, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to query logs: %w", err)
	}

	if !opts.From.IsZero() || !opts.To.IsZero() {
		logs = filterByTimeRange(logs, opts.From, opts.To)
	}

	if opts.Limit > 0 && len(logs) > opts.Limit {
		logs = logs[:opts.Limit]
	}

	switch opts.Format {
	case ExportFormatCSV:
		return exportToCSV(logs)
	case ExportFormatJSON:
		return exportToJSON(logs)
	default:
		return nil, fmt.Errorf("unsupported export format: %s", opts.Format)
	}
}

// filterByTimeRange filters logs to only include entries within the time range.
func filterByTimeRange(logs []*AuditLog, from, to time.Time) []*AuditLog {
	var filtered []*AuditLog
	for _, log := range logs {
		if !from.IsZero() && log.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && log.CreatedAt.After(to) {
			continue
		}
		filtered = append(filtered, log)
	}
	return filtered
}

// exportToCSV exports audit logs to CSV format.
func exportToCSV(logs []*AuditLog) ([]byte, error) {
	buf := new(bytes.Buffer)
	writer := csv.NewWriter(buf)

	header := []string{
		"ID",
		"Timestamp (UTC)",
		"Viewer ID",
		"Entity Type",
		"Entity ID",
		"Action",
		"Outcome",
		"Request ID",
		"IP Address",
		"User Agent",
		"Previous Hash",
	}
	if err := writer.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, log := range logs {
		row := []string{
			log.ID,
			log.CreatedAt.Format(time.RFC3339),
			log.ViewerID,
			log.EntityType,
			log.EntityID,
			log.Action,
			log.Outcome,
			log.RequestID,
			log.IPAddress,
			log.UserAgent,
			log.PreviousHash,
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// exportToJSON exports audit logs to JSON format.
func exportToJSON(logs []*AuditLog) ([]byte, error) {
	type exportLog struct {
		ID           string `json:"id"`
		Timestamp    string `json:"timestamp"` // ISO 8601 format
		ViewerID     string `json:"viewer_id"`
		EntityType   string `json:"entity_type"`
		EntityID     string `json:"entity_id"`
		Action       string `json:"action"`
		Outcome      string `json:"outcome"`
		RequestID    string `json:"request_id,omitempty"`
		IPAddress    string `json:"ip_address,omitempty"`
		UserAgent    string `json:"user_agent,omitempty"`
		PreviousHash string `json:"previous_hash,omitempty"`
	}

	exportLogs := make([]exportLog, len(logs))
	for i, log := range logs {
		exportLogs[i] = exportLog{
			ID:           log.ID,
			Timestamp:    log.CreatedAt.Format(time.RFC3339),
			ViewerID:     log.ViewerID,
			EntityType:   log.EntityType,
			EntityID:     log.EntityID,
			Action:       log.Action,
			Outcome:      log.Outcome,
			RequestID:    log.RequestID,
			IPAddress:    log.IPAddress,
			UserAgent:    log.UserAgent,
			PreviousHash: log.PreviousHash,
		}
	}

	data, err := json.MarshalIndent(exportLogs, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}

	return data, nil
}
