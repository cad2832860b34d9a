package analytics

import (
	"fmt"

	"polar-flow-sync/internal/database"
	"polar-flow-sync/internal/polar"
)

// Sample thresholds for baseline quality
const (
	minSamplesBaseline = 7  // below this a baseline is insufficient
	minSamplesReady    = 21 // at or above this a baseline is ready
	minSamplesMean30   = 14 // 30-day mean is withheld below this
	minSamplesMean90   = 60 // 90-day mean is withheld below this
)

// ComputeBaseline recomputes one metric's statistical snapshot from up to
// 90 days of history and replaces the stored snapshot wholesale.
func (e *Engine) ComputeBaseline(userID, metric string) (*database.Baseline, error) {
	points, err := e.db.GetSeries(userID, metric, e.dateDaysAgo(90))
	if err != nil {
		return nil, fmt.Errorf("failed to load series for baseline: %w", err)
	}

	b := &database.Baseline{
		UserID:      userID,
		Metric:      metric,
		SampleCount: len(points),
		Status:      database.BaselineInsufficient,
	}

	if len(points) < minSamplesBaseline {
		if err := e.db.ReplaceBaseline(b); err != nil {
			return nil, err
		}
		return b, nil
	}

	values := make([]float64, len(points))
	minV, maxV := points[0].Value, points[0].Value
	for i, p := range points {
		values[i] = p.Value
		if p.Value < minV {
			minV = p.Value
		}
		if p.Value > maxV {
			maxV = p.Value
		}
	}

	q1, median, q3 := quartiles(values)
	iqr := q3 - q1
	sd := stdDev(values)

	b.MeanAll = f64(mean(values))
	b.Median = f64(median)
	b.Q1 = f64(q1)
	b.Q3 = f64(q3)
	b.IQR = f64(iqr)
	b.StdDev = f64(sd)
	b.Min = f64(minV)
	b.Max = f64(maxV)

	// windowed means are calendar windows over the retrieved points;
	// the longer windows are withheld when history is too sparse to
	// report them honestly
	if recent := valuesSince(points, e.dateDaysAgo(7)); len(recent) > 0 {
		b.Mean7d = f64(mean(recent))
	}
	if len(points) >= minSamplesMean30 {
		if recent := valuesSince(points, e.dateDaysAgo(30)); len(recent) > 0 {
			b.Mean30d = f64(mean(recent))
		}
	}
	if len(points) >= minSamplesMean90 {
		b.Mean90d = b.MeanAll
	}

	if len(points) >= minSamplesReady {
		b.Status = database.BaselineReady
	} else {
		b.Status = database.BaselinePartial
	}

	if err := e.db.ReplaceBaseline(b); err != nil {
		return nil, err
	}
	return b, nil
}

// ComputeAllBaselines recomputes every metric's baseline for the user.
// Metrics with no data at all are skipped rather than stored as empty rows.
func (e *Engine) ComputeAllBaselines(userID string) error {
	for _, metric := range polar.AllMetrics {
		points, err := e.db.GetSeries(userID, metric, e.dateDaysAgo(90))
		if err != nil {
			return fmt.Errorf("failed to load series for %s: %w", metric, err)
		}
		if len(points) == 0 {
			continue
		}
		if _, err := e.ComputeBaseline(userID, metric); err != nil {
			return fmt.Errorf("failed to compute baseline for %s: %w", metric, err)
		}
	}
	return nil
}

func valuesSince(points []database.SeriesPoint, sinceDate string) []float64 {
	var out []float64
	for _, p := range points {
		if p.Date >= sinceDate {
			out = append(out, p.Value)
		}
	}
	return out
}

func f64(v float64) *float64 {
	return &v
}
