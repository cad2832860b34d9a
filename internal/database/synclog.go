package database

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"polar-flow-sync/internal/metrics"
)

// Sync statuses
const (
	SyncStatusSuccess = "success"
	SyncStatusPartial = "partial"
	SyncStatusFailed  = "failed"
)

// EndpointError is one endpoint's classified failure as recorded in the audit row
type EndpointError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// SyncLogEntry is an immutable audit row, one per sync attempt.
// Rows are written once at sync completion and never mutated.
type SyncLogEntry struct {
	ID             int64
	JobID          string
	UserID         string
	TriggerSource  string
	Priority       string
	Status         string
	StartedAt      int64
	FinishedAt     int64
	DurationMs     int64
	EndpointCounts map[string]int
	EndpointErrors map[string]EndpointError
	ErrorType      *string
	ErrorMessage   *string
}

// InsertSyncLog appends one audit row
func (db *DB) InsertSyncLog(e *SyncLogEntry) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpInsertSyncLog))
	defer timer.ObserveDuration()

	countsJSON, err := json.Marshal(e.EndpointCounts)
	if err != nil {
		return fmt.Errorf("failed to marshal endpoint counts: %w", err)
	}
	errorsJSON, err := json.Marshal(e.EndpointErrors)
	if err != nil {
		return fmt.Errorf("failed to marshal endpoint errors: %w", err)
	}

	result, err := db.conn.Exec(`
		INSERT INTO sync_log (
			job_id, user_id, trigger_source, priority, status,
			started_at, finished_at, duration_ms,
			endpoint_counts, endpoint_errors, error_type, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.JobID, e.UserID, e.TriggerSource, e.Priority, e.Status,
		e.StartedAt, e.FinishedAt, e.DurationMs,
		string(countsJSON), string(errorsJSON), e.ErrorType, e.ErrorMessage)

	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpInsertSyncLog).Inc()
		return fmt.Errorf("failed to insert sync log: %w", err)
	}

	e.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get sync log id: %w", err)
	}
	return nil
}

// GetSyncHistory returns a user's most recent sync attempts, newest first
func (db *DB) GetSyncHistory(userID string, limit int) ([]*SyncLogEntry, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpGetSyncHistory))
	defer timer.ObserveDuration()

	rows, err := db.conn.Query(`
		SELECT id, job_id, user_id, trigger_source, priority, status,
		       started_at, finished_at, duration_ms,
		       endpoint_counts, endpoint_errors, error_type, error_message
		FROM sync_log WHERE user_id = ?
		ORDER BY started_at DESC LIMIT ?
	`, userID, limit)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpGetSyncHistory).Inc()
		return nil, fmt.Errorf("failed to get sync history: %w", err)
	}
	defer rows.Close()

	var entries []*SyncLogEntry
	for rows.Next() {
		var e SyncLogEntry
		var countsJSON, errorsJSON string
		err := rows.Scan(
			&e.ID, &e.JobID, &e.UserID, &e.TriggerSource, &e.Priority, &e.Status,
			&e.StartedAt, &e.FinishedAt, &e.DurationMs,
			&countsJSON, &errorsJSON, &e.ErrorType, &e.ErrorMessage,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync log entry: %w", err)
		}
		if err := json.Unmarshal([]byte(countsJSON), &e.EndpointCounts); err != nil {
			return nil, fmt.Errorf("failed to unmarshal endpoint counts: %w", err)
		}
		if err := json.Unmarshal([]byte(errorsJSON), &e.EndpointErrors); err != nil {
			return nil, fmt.Errorf("failed to unmarshal endpoint errors: %w", err)
		}
		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync log: %w", err)
	}

	return entries, nil
}

// SyncStats aggregates sync outcomes over a window
type SyncStats struct {
	Total       int     `json:"total"`
	Success     int     `json:"success"`
	Partial     int     `json:"partial"`
	Failed      int     `json:"failed"`
	SuccessRate float64 `json:"success_rate"`
}

// GetSyncStats aggregates outcomes of all syncs since the given time.
// Partial syncs count toward the success rate; they delivered data.
func (db *DB) GetSyncStats(since time.Time) (*SyncStats, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpGetSyncStats))
	defer timer.ObserveDuration()

	var s SyncStats
	err := db.conn.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'partial' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0)
		FROM sync_log WHERE started_at >= ?
	`, since.Unix()).Scan(&s.Total, &s.Success, &s.Partial, &s.Failed)

	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpGetSyncStats).Inc()
		return nil, fmt.Errorf("failed to get sync stats: %w", err)
	}

	if s.Total > 0 {
		s.SuccessRate = float64(s.Success+s.Partial) / float64(s.Total)
	}
	return &s, nil
}
