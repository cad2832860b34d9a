// Package analytics turns raw metric series into personal baselines,
// detected patterns, anomaly alerts and aggregated insights.
package analytics

import (
	"log/slog"
	"time"

	"polar-flow-sync/internal/database"
)

// Engine computes all derived analytics for a user from persisted series
type Engine struct {
	db     *database.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewEngine creates an analytics engine backed by the given database
func NewEngine(db *database.DB, logger *slog.Logger) *Engine {
	return &Engine{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// dateDaysAgo formats the date n days before now in series date format
func (e *Engine) dateDaysAgo(n int) string {
	return e.now().AddDate(0, 0, -n).Format("2006-01-02")
}
