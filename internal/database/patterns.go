package database

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"polar-flow-sync/internal/metrics"
)

// Pattern types
const (
	PatternTypeCorrelation = "correlation"
	PatternTypeTrend       = "trend"
	PatternTypeComposite   = "composite"
)

// Pattern significance levels
const (
	SignificanceHigh         = "high"
	SignificanceMedium       = "medium"
	SignificanceLow          = "low"
	SignificanceInsufficient = "insufficient"
)

// Pattern is a detected relationship among a user's metrics.
// Details carries type-specific fields (trend direction, risk factors,
// interpretation text) as a JSON object.
type Pattern struct {
	UserID          string
	Name            string
	PatternType     string
	Score           float64
	Confidence      float64
	Significance    string
	MetricsInvolved []string
	Details         map[string]any
	SampleCount     int
	ComputedAt      int64
}

// ReplacePattern replaces the stored snapshot for (user, name) wholesale
func (db *DB) ReplacePattern(p *Pattern) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpReplacePattern))
	defer timer.ObserveDuration()

	metricsJSON, err := json.Marshal(p.MetricsInvolved)
	if err != nil {
		return fmt.Errorf("failed to marshal metrics involved: %w", err)
	}
	detailsJSON, err := json.Marshal(p.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal pattern details: %w", err)
	}

	p.ComputedAt = time.Now().Unix()
	_, err = db.conn.Exec(`
		INSERT INTO patterns (
			user_id, name, pattern_type, score, confidence, significance,
			metrics_involved, details, sample_count, computed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, name) DO UPDATE SET
			pattern_type = excluded.pattern_type,
			score = excluded.score,
			confidence = excluded.confidence,
			significance = excluded.significance,
			metrics_involved = excluded.metrics_involved,
			details = excluded.details,
			sample_count = excluded.sample_count,
			computed_at = excluded.computed_at
	`, p.UserID, p.Name, p.PatternType, p.Score, p.Confidence, p.Significance,
		string(metricsJSON), string(detailsJSON), p.SampleCount, p.ComputedAt)

	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpReplacePattern).Inc()
		return fmt.Errorf("failed to replace pattern: %w", err)
	}
	return nil
}

// GetPatterns returns every stored pattern for a user
func (db *DB) GetPatterns(userID string) ([]*Pattern, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpGetPatterns))
	defer timer.ObserveDuration()

	rows, err := db.conn.Query(`
		SELECT user_id, name, pattern_type, score, confidence, significance,
		       metrics_involved, details, sample_count, computed_at
		FROM patterns WHERE user_id = ?
		ORDER BY name ASC
	`, userID)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpGetPatterns).Inc()
		return nil, fmt.Errorf("failed to get patterns: %w", err)
	}
	defer rows.Close()

	var patterns []*Pattern
	for rows.Next() {
		var p Pattern
		var metricsJSON, detailsJSON string
		err := rows.Scan(
			&p.UserID, &p.Name, &p.PatternType, &p.Score, &p.Confidence, &p.Significance,
			&metricsJSON, &detailsJSON, &p.SampleCount, &p.ComputedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pattern: %w", err)
		}
		if err := json.Unmarshal([]byte(metricsJSON), &p.MetricsInvolved); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metrics involved: %w", err)
		}
		if err := json.Unmarshal([]byte(detailsJSON), &p.Details); err != nil {
			return nil, fmt.Errorf("failed to unmarshal pattern details: %w", err)
		}
		patterns = append(patterns, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating patterns: %w", err)
	}

	return patterns, nil
}
