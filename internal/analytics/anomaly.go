package analytics

import (
	"fmt"

	"polar-flow-sync/internal/database"
	"polar-flow-sync/internal/metrics"
)

// Anomaly severities
const (
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Anomaly directions
const (
	DirectionAbove = "above"
	DirectionBelow = "below"
)

// Anomaly is a latest observation falling outside a metric's personal
// baseline bounds. Derived on demand, never persisted.
type Anomaly struct {
	Metric        string  `json:"metric"`
	Date          string  `json:"date"`
	CurrentValue  float64 `json:"current_value"`
	BaselineValue float64 `json:"baseline_value"`
	LowerBound    float64 `json:"lower_bound"`
	UpperBound    float64 `json:"upper_bound"`
	Severity      string  `json:"severity"`
	Direction     string  `json:"direction"`
}

// ScanAnomalies compares each metric's latest value against its baseline's
// IQR bounds. Metrics without a usable baseline are skipped; no baseline,
// no anomaly.
func (e *Engine) ScanAnomalies(userID string) ([]Anomaly, error) {
	baselines, err := e.db.GetBaselines(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load baselines for scan: %w", err)
	}

	var anomalies []Anomaly
	for _, b := range baselines {
		if b.Status == database.BaselineInsufficient {
			continue
		}
		warnLower, warnUpper, ok := b.WarningBounds()
		if !ok {
			continue
		}

		latest, err := e.db.GetLatestSample(userID, b.Metric)
		if err != nil {
			return nil, fmt.Errorf("failed to load latest %s sample: %w", b.Metric, err)
		}
		if latest == nil {
			continue
		}

		if latest.Value >= warnLower && latest.Value <= warnUpper {
			continue
		}

		a := Anomaly{
			Metric:       b.Metric,
			Date:         latest.Date,
			CurrentValue: latest.Value,
			LowerBound:   warnLower,
			UpperBound:   warnUpper,
			Severity:     SeverityWarning,
			Direction:    DirectionAbove,
		}
		if b.Median != nil {
			a.BaselineValue = *b.Median
		}
		if latest.Value < warnLower {
			a.Direction = DirectionBelow
		}

		if critLower, critUpper, ok := b.CriticalBounds(); ok {
			if latest.Value < critLower || latest.Value > critUpper {
				a.Severity = SeverityCritical
			}
		}

		metrics.AnomaliesDetected.WithLabelValues(a.Severity).Inc()
		anomalies = append(anomalies, a)
	}

	return anomalies, nil
}
