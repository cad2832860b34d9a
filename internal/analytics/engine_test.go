package analytics

import (
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"polar-flow-sync/internal/database"
)

// testNow is the fixed clock every analytics test runs against
var testNow = time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

func setupEngine(t *testing.T) (*Engine, *database.DB) {
	t.Helper()

	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	engine := NewEngine(db, slog.Default())
	engine.now = func() time.Time { return testNow }
	return engine, db
}

// seedDaily writes one point per day ending yesterday, oldest value first
func seedDaily(t *testing.T, db *database.DB, userID, metric string, values []float64) {
	t.Helper()

	points := make([]database.SeriesPoint, len(values))
	for i, v := range values {
		daysAgo := len(values) - i
		points[i] = database.SeriesPoint{
			Date:  testNow.AddDate(0, 0, -daysAgo).Format("2006-01-02"),
			Value: v,
		}
	}
	if err := db.UpsertSamples(userID, metric, points); err != nil {
		t.Fatalf("failed to seed %s: %v", metric, err)
	}
}

func constSeries(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
