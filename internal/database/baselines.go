package database

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"polar-flow-sync/internal/metrics"
)

// Baseline statuses
const (
	BaselineReady        = "ready"
	BaselinePartial      = "partial"
	BaselineInsufficient = "insufficient"
)

// Baseline is a personal statistical snapshot for one metric.
// Optional fields are nil when the sample count is too low to
// populate them honestly.
type Baseline struct {
	UserID      string
	Metric      string
	MeanAll     *float64
	Mean7d      *float64
	Mean30d     *float64
	Mean90d     *float64
	Median      *float64
	Q1          *float64
	Q3          *float64
	IQR         *float64
	StdDev      *float64
	Min         *float64
	Max         *float64
	SampleCount int
	Status      string
	ComputedAt  int64
}

// WarningBounds returns the [Q1-1.5*IQR, Q3+1.5*IQR] outlier bounds,
// with ok=false when the snapshot has no quartiles
func (b *Baseline) WarningBounds() (lower, upper float64, ok bool) {
	return b.bounds(1.5)
}

// CriticalBounds returns the [Q1-3*IQR, Q3+3*IQR] outlier bounds
func (b *Baseline) CriticalBounds() (lower, upper float64, ok bool) {
	return b.bounds(3.0)
}

func (b *Baseline) bounds(k float64) (float64, float64, bool) {
	if b.Q1 == nil || b.Q3 == nil || b.IQR == nil {
		return 0, 0, false
	}
	return *b.Q1 - k*(*b.IQR), *b.Q3 + k*(*b.IQR), true
}

// ReplaceBaseline replaces the stored snapshot for (user, metric) wholesale.
// Every column is overwritten; nothing from the previous snapshot survives.
func (db *DB) ReplaceBaseline(b *Baseline) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpReplaceBaseline))
	defer timer.ObserveDuration()

	b.ComputedAt = time.Now().Unix()
	_, err := db.conn.Exec(`
		INSERT INTO baselines (
			user_id, metric, mean_all, mean_7d, mean_30d, mean_90d,
			median, q1, q3, iqr, std_dev, min_value, max_value,
			sample_count, status, computed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, metric) DO UPDATE SET
			mean_all = excluded.mean_all,
			mean_7d = excluded.mean_7d,
			mean_30d = excluded.mean_30d,
			mean_90d = excluded.mean_90d,
			median = excluded.median,
			q1 = excluded.q1,
			q3 = excluded.q3,
			iqr = excluded.iqr,
			std_dev = excluded.std_dev,
			min_value = excluded.min_value,
			max_value = excluded.max_value,
			sample_count = excluded.sample_count,
			status = excluded.status,
			computed_at = excluded.computed_at
	`, b.UserID, b.Metric, b.MeanAll, b.Mean7d, b.Mean30d, b.Mean90d,
		b.Median, b.Q1, b.Q3, b.IQR, b.StdDev, b.Min, b.Max,
		b.SampleCount, b.Status, b.ComputedAt)

	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpReplaceBaseline).Inc()
		return fmt.Errorf("failed to replace baseline: %w", err)
	}
	return nil
}

// GetBaselines returns every stored baseline for a user
func (db *DB) GetBaselines(userID string) ([]*Baseline, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpGetBaselines))
	defer timer.ObserveDuration()

	rows, err := db.conn.Query(`
		SELECT user_id, metric, mean_all, mean_7d, mean_30d, mean_90d,
		       median, q1, q3, iqr, std_dev, min_value, max_value,
		       sample_count, status, computed_at
		FROM baselines WHERE user_id = ?
		ORDER BY metric ASC
	`, userID)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpGetBaselines).Inc()
		return nil, fmt.Errorf("failed to get baselines: %w", err)
	}
	defer rows.Close()

	var baselines []*Baseline
	for rows.Next() {
		b, err := scanBaseline(rows)
		if err != nil {
			return nil, err
		}
		baselines = append(baselines, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating baselines: %w", err)
	}

	return baselines, nil
}

// GetBaseline returns one metric's baseline for a user, nil if absent
func (db *DB) GetBaseline(userID, metric string) (*Baseline, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpGetBaselines))
	defer timer.ObserveDuration()

	rows, err := db.conn.Query(`
		SELECT user_id, metric, mean_all, mean_7d, mean_30d, mean_90d,
		       median, q1, q3, iqr, std_dev, min_value, max_value,
		       sample_count, status, computed_at
		FROM baselines WHERE user_id = ? AND metric = ?
	`, userID, metric)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpGetBaselines).Inc()
		return nil, fmt.Errorf("failed to get baseline: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanBaseline(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBaseline(row rowScanner) (*Baseline, error) {
	var b Baseline
	err := row.Scan(
		&b.UserID, &b.Metric, &b.MeanAll, &b.Mean7d, &b.Mean30d, &b.Mean90d,
		&b.Median, &b.Q1, &b.Q3, &b.IQR, &b.StdDev, &b.Min, &b.Max,
		&b.SampleCount, &b.Status, &b.ComputedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan baseline: %w", err)
	}
	return &b, nil
}
