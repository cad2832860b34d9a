package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"polar-flow-sync/internal/metrics"
)

// SeriesPoint is one (date, value) observation for a metric.
// Dates are stored as YYYY-MM-DD strings, which sort correctly as text.
type SeriesPoint struct {
	Date  string
	Value float64
}

// UpsertSamples writes points for one (user, metric) pair.
// Re-syncing an existing date overwrites, last write wins.
func (db *DB) UpsertSamples(userID, metric string, points []SeriesPoint) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpUpsertSamples))
	defer timer.ObserveDuration()

	if len(points) == 0 {
		return nil
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO metric_series (user_id, metric, date, value, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, metric, date) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, p := range points {
		if _, err := stmt.Exec(userID, metric, p.Date, p.Value, now); err != nil {
			metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpUpsertSamples).Inc()
			return fmt.Errorf("failed to upsert sample %s/%s: %w", metric, p.Date, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit samples: %w", err)
	}
	return nil
}

// GetSeries returns a metric's points on or after sinceDate, oldest first
func (db *DB) GetSeries(userID, metric, sinceDate string) ([]SeriesPoint, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpGetSeries))
	defer timer.ObserveDuration()

	rows, err := db.conn.Query(`
		SELECT date, value FROM metric_series
		WHERE user_id = ? AND metric = ? AND date >= ?
		ORDER BY date ASC
	`, userID, metric, sinceDate)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpGetSeries).Inc()
		return nil, fmt.Errorf("failed to get series: %w", err)
	}
	defer rows.Close()

	var points []SeriesPoint
	for rows.Next() {
		var p SeriesPoint
		if err := rows.Scan(&p.Date, &p.Value); err != nil {
			return nil, fmt.Errorf("failed to scan series point: %w", err)
		}
		points = append(points, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating series: %w", err)
	}

	return points, nil
}

// GetLatestSample returns a metric's most recent point, or nil if none exists
func (db *DB) GetLatestSample(userID, metric string) (*SeriesPoint, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpGetLatestSample))
	defer timer.ObserveDuration()

	var p SeriesPoint
	err := db.conn.QueryRow(`
		SELECT date, value FROM metric_series
		WHERE user_id = ? AND metric = ?
		ORDER BY date DESC LIMIT 1
	`, userID, metric).Scan(&p.Date, &p.Value)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpGetLatestSample).Inc()
		return nil, fmt.Errorf("failed to get latest sample: %w", err)
	}
	return &p, nil
}

// GetLatestSampleDate returns the date of the user's newest point across
// all metrics, or "" if the user has no data yet. The scheduler uses it to
// tell active devices from quiet ones.
func (db *DB) GetLatestSampleDate(userID string) (string, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpGetLatestSample))
	defer timer.ObserveDuration()

	var date sql.NullString
	err := db.conn.QueryRow(`
		SELECT MAX(date) FROM metric_series WHERE user_id = ?
	`, userID).Scan(&date)

	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpGetLatestSample).Inc()
		return "", fmt.Errorf("failed to get latest sample date: %w", err)
	}
	if !date.Valid {
		return "", nil
	}
	return date.String, nil
}

// GetEarliestSampleDate returns the date of the user's oldest point across
// all metrics, or "" if the user has no data yet. Drives feature unlock.
func (db *DB) GetEarliestSampleDate(userID string) (string, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpGetEarliestSample))
	defer timer.ObserveDuration()

	// MIN over an empty set yields NULL, hence the NullString scan
	var date sql.NullString
	err := db.conn.QueryRow(`
		SELECT MIN(date) FROM metric_series WHERE user_id = ?
	`, userID).Scan(&date)

	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpGetEarliestSample).Inc()
		return "", fmt.Errorf("failed to get earliest sample date: %w", err)
	}
	if !date.Valid {
		return "", nil
	}
	return date.String, nil
}
