package analytics

import (
	"fmt"
	"time"

	"polar-flow-sync/internal/database"
)

// Insights statuses
const (
	InsightsUnavailable = "unavailable"
	InsightsPartial     = "partial"
	InsightsReady       = "ready"
)

// Feature names and the days of history that unlock them. Features unlock
// progressively as a user accumulates data; ml_predictions is reserved for
// a future phase and never gates readiness.
const (
	FeatureBaselines7d   = "baselines_7d"
	FeaturePatterns      = "patterns"
	FeatureAnomalies     = "anomaly_detection"
	FeatureBaselines30d  = "baselines_30d"
	FeatureMLPredictions = "ml_predictions"
)

var featureUnlockDays = []struct {
	Feature string
	Days    int
}{
	{FeatureBaselines7d, 7},
	{FeaturePatterns, 21},
	{FeatureAnomalies, 21},
	{FeatureBaselines30d, 30},
	{FeatureMLPredictions, 60},
}

// readyAtDays is the data age at which every implemented feature is unlocked
const readyAtDays = 30

// UnlockProgress points at the next locked feature
type UnlockProgress struct {
	NextFeature string  `json:"next_feature,omitempty"`
	DaysUntil   int     `json:"days_until,omitempty"`
	Percent     float64 `json:"percent"`
}

// MetricSnapshot is a metric's latest value with its baseline context
type MetricSnapshot struct {
	Value          float64  `json:"value"`
	Date           string   `json:"date"`
	VsBaselinePct  *float64 `json:"vs_baseline_pct,omitempty"`
	BaselineStatus string   `json:"baseline_status,omitempty"`
}

// InsightsPayload is the full consumer-facing analytics view for one user
type InsightsPayload struct {
	UserID         string                     `json:"user_id"`
	Status         string                     `json:"status"`
	DataAgeDays    int                        `json:"data_age_days"`
	Features       map[string]bool            `json:"feature_availability"`
	UnlockProgress UnlockProgress             `json:"unlock_progress"`
	CurrentMetrics map[string]*MetricSnapshot `json:"current_metrics"`
	Baselines      []*database.Baseline       `json:"baselines"`
	Patterns       []*database.Pattern        `json:"patterns"`
	Anomalies      []Anomaly                  `json:"anomalies"`
	Observations   []Observation              `json:"observations"`
	Suggestions    []string                   `json:"suggestions"`
	GeneratedAt    time.Time                  `json:"generated_at"`
}

// GetInsights assembles baselines, patterns, anomalies and observations into
// one payload, gated by the user's feature availability
func (e *Engine) GetInsights(userID string) (*InsightsPayload, error) {
	dataAge, err := e.dataAgeDays(userID)
	if err != nil {
		return nil, err
	}

	features := make(map[string]bool, len(featureUnlockDays))
	for _, f := range featureUnlockDays {
		features[f.Feature] = dataAge >= f.Days
	}

	payload := &InsightsPayload{
		UserID:         userID,
		Status:         insightsStatus(dataAge),
		DataAgeDays:    dataAge,
		Features:       features,
		UnlockProgress: unlockProgress(dataAge),
		CurrentMetrics: make(map[string]*MetricSnapshot),
		Anomalies:      []Anomaly{},
		Suggestions:    []string{},
		GeneratedAt:    e.now(),
	}

	if payload.Status == InsightsUnavailable {
		payload.Baselines = []*database.Baseline{}
		payload.Patterns = []*database.Pattern{}
		payload.Observations = e.buildObservations(payload)
		return payload, nil
	}

	payload.Baselines, err = e.db.GetBaselines(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load baselines for insights: %w", err)
	}

	if features[FeaturePatterns] {
		payload.Patterns, err = e.db.GetPatterns(userID)
		if err != nil {
			return nil, fmt.Errorf("failed to load patterns for insights: %w", err)
		}
	} else {
		payload.Patterns = []*database.Pattern{}
	}

	if features[FeatureAnomalies] {
		payload.Anomalies, err = e.ScanAnomalies(userID)
		if err != nil {
			return nil, fmt.Errorf("failed to scan anomalies for insights: %w", err)
		}
		if payload.Anomalies == nil {
			payload.Anomalies = []Anomaly{}
		}
	}

	for _, b := range payload.Baselines {
		latest, err := e.db.GetLatestSample(userID, b.Metric)
		if err != nil {
			return nil, fmt.Errorf("failed to load latest %s sample: %w", b.Metric, err)
		}
		if latest == nil {
			continue
		}
		snap := &MetricSnapshot{
			Value:          latest.Value,
			Date:           latest.Date,
			BaselineStatus: b.Status,
		}
		if b.Mean7d != nil && *b.Mean7d != 0 {
			pct := (latest.Value - *b.Mean7d) / *b.Mean7d * 100
			snap.VsBaselinePct = f64(pct)
		}
		payload.CurrentMetrics[b.Metric] = snap
	}

	payload.Observations = e.buildObservations(payload)
	payload.Suggestions = buildSuggestions(payload)
	return payload, nil
}

// dataAgeDays computes whole days since the user's earliest synced record
func (e *Engine) dataAgeDays(userID string) (int, error) {
	earliest, err := e.db.GetEarliestSampleDate(userID)
	if err != nil {
		return 0, fmt.Errorf("failed to determine data age: %w", err)
	}
	if earliest == "" {
		return 0, nil
	}
	t, err := time.Parse("2006-01-02", earliest)
	if err != nil {
		return 0, fmt.Errorf("failed to parse earliest sample date %q: %w", earliest, err)
	}
	days := int(e.now().Sub(t).Hours() / 24)
	if days < 0 {
		days = 0
	}
	return days, nil
}

func insightsStatus(dataAge int) string {
	switch {
	case dataAge < 7:
		return InsightsUnavailable
	case dataAge >= readyAtDays:
		return InsightsReady
	default:
		return InsightsPartial
	}
}

func unlockProgress(dataAge int) UnlockProgress {
	for _, f := range featureUnlockDays {
		if dataAge < f.Days {
			return UnlockProgress{
				NextFeature: f.Feature,
				DaysUntil:   f.Days - dataAge,
				Percent:     float64(dataAge) / float64(f.Days) * 100,
			}
		}
	}
	return UnlockProgress{Percent: 100}
}

func findPattern(patterns []*database.Pattern, name string) *database.Pattern {
	for _, p := range patterns {
		if p.Name == name {
			return p
		}
	}
	return nil
}
