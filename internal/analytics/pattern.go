package analytics

import (
	"fmt"
	"math"

	"polar-flow-sync/internal/database"
	"polar-flow-sync/internal/polar"
)

// Pattern names
const (
	PatternSleepHRVCorrelation = "sleep_hrv_correlation"
	PatternHRVTrend            = "hrv_trend"
	PatternSleepTrend          = "sleep_trend"
	PatternRestingHRTrend      = "resting_hr_trend"
	PatternOvertrainingRisk    = "overtraining_risk"
)

// Trend directions
const (
	TrendDeclining = "declining"
	TrendStable    = "stable"
	TrendImproving = "improving"
)

// minAlignedCorrelation is the minimum number of date-aligned points for a
// correlation estimate. Below this Spearman estimates are unreliable.
const minAlignedCorrelation = 21

// trendThresholdPct is the deviation between the recent mean and the
// baseline mean below which a trend counts as stable
const trendThresholdPct = 5.0

// Overtraining factor weights and thresholds. These bands are heuristics
// carried over from field use, tunable, not derived.
var overtrainingFactors = struct {
	HRVDeclineFull, HRVDeclinePartial     float64 // trend pct, negative
	SleepDeclineFull, SleepDeclinePartial float64
	RHRRiseFull, RHRRisePartial           float64 // trend pct, positive
	LoadRatioFull, LoadRatioPartial       float64 // acute:chronic ratio
	FullWeight, PartialWeight             float64
}{
	HRVDeclineFull: -10, HRVDeclinePartial: -5,
	SleepDeclineFull: -10, SleepDeclinePartial: -5,
	RHRRiseFull: 5, RHRRisePartial: 2,
	LoadRatioFull: 1.5, LoadRatioPartial: 1.3,
	FullWeight: 25, PartialWeight: 15,
}

// DetectPatterns recomputes every pattern for the user, replaces the stored
// snapshots and returns each pattern's significance
func (e *Engine) DetectPatterns(userID string) (map[string]string, error) {
	results := make(map[string]string)

	corr, err := e.computeCorrelationPattern(userID)
	if err != nil {
		return nil, err
	}
	results[corr.Name] = corr.Significance

	trendMetrics := []struct {
		name   string
		metric string
	}{
		{PatternHRVTrend, polar.MetricHRVRMSSD},
		{PatternSleepTrend, polar.MetricSleepScore},
		{PatternRestingHRTrend, polar.MetricRestingHR},
	}
	trends := make(map[string]*trend)
	for _, tm := range trendMetrics {
		t, err := e.computeTrend(userID, tm.metric)
		if err != nil {
			return nil, err
		}
		trends[tm.metric] = t

		p, err := e.storeTrendPattern(userID, tm.name, tm.metric, t)
		if err != nil {
			return nil, err
		}
		results[tm.name] = p.Significance
	}

	composite, err := e.computeOvertrainingRisk(userID, trends)
	if err != nil {
		return nil, err
	}
	results[composite.Name] = composite.Significance

	return results, nil
}

// computeCorrelationPattern relates sleep quality to HRV across date-aligned
// observations using Spearman rank correlation
func (e *Engine) computeCorrelationPattern(userID string) (*database.Pattern, error) {
	since := e.dateDaysAgo(90)
	sleep, err := e.db.GetSeries(userID, polar.MetricSleepScore, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load sleep series: %w", err)
	}
	hrv, err := e.db.GetSeries(userID, polar.MetricHRVRMSSD, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load hrv series: %w", err)
	}

	xs, ys := alignByDate(sleep, hrv)

	p := &database.Pattern{
		UserID:          userID,
		Name:            PatternSleepHRVCorrelation,
		PatternType:     database.PatternTypeCorrelation,
		Significance:    database.SignificanceInsufficient,
		MetricsInvolved: []string{polar.MetricSleepScore, polar.MetricHRVRMSSD},
		Details:         map[string]any{},
		SampleCount:     len(xs),
	}

	if len(xs) < minAlignedCorrelation {
		p.Details["reason"] = fmt.Sprintf("%d aligned days, need %d", len(xs), minAlignedCorrelation)
		if err := e.db.ReplacePattern(p); err != nil {
			return nil, err
		}
		return p, nil
	}

	rho, pval := spearman(xs, ys)
	p.Score = rho
	p.Confidence = 1 - pval
	p.Significance = significanceFromP(pval)
	p.Details["p_value"] = pval
	p.Details["interpretation"] = interpretCorrelation(rho)

	if err := e.db.ReplacePattern(p); err != nil {
		return nil, err
	}
	return p, nil
}

func significanceFromP(p float64) string {
	switch {
	case p < 0.01:
		return database.SignificanceHigh
	case p < 0.05:
		return database.SignificanceMedium
	case p < 0.1:
		return database.SignificanceLow
	default:
		return database.SignificanceInsufficient
	}
}

func interpretCorrelation(rho float64) string {
	strength := "negligible"
	switch abs := math.Abs(rho); {
	case abs >= 0.7:
		strength = "strong"
	case abs >= 0.4:
		strength = "moderate"
	case abs >= 0.2:
		strength = "weak"
	}
	direction := "positive"
	if rho < 0 {
		direction = "negative"
	}
	return fmt.Sprintf("%s %s relationship between sleep quality and heart rate variability", strength, direction)
}

// trend captures how a metric's recent week compares to its prior month
type trend struct {
	Direction    string
	ChangePct    float64
	RecentMean   float64
	BaselineMean float64
	RecentCount  int
	BaselineCnt  int
	Measurable   bool
}

// computeTrend compares the last 7 days' mean against the mean of the
// preceding weeks within a 30-day window. Needs at least 3 recent and
// 7 baseline points to be measurable.
func (e *Engine) computeTrend(userID, metric string) (*trend, error) {
	points, err := e.db.GetSeries(userID, metric, e.dateDaysAgo(30))
	if err != nil {
		return nil, fmt.Errorf("failed to load series for trend: %w", err)
	}

	cutoff := e.dateDaysAgo(7)
	var recent, baseline []float64
	for _, p := range points {
		if p.Date >= cutoff {
			recent = append(recent, p.Value)
		} else {
			baseline = append(baseline, p.Value)
		}
	}

	t := &trend{
		Direction:   TrendStable,
		RecentCount: len(recent),
		BaselineCnt: len(baseline),
	}
	if len(recent) < 3 || len(baseline) < 7 {
		return t, nil
	}

	t.Measurable = true
	t.RecentMean = mean(recent)
	t.BaselineMean = mean(baseline)
	if t.BaselineMean != 0 {
		t.ChangePct = (t.RecentMean - t.BaselineMean) / t.BaselineMean * 100
	}

	switch {
	case t.ChangePct <= -trendThresholdPct:
		t.Direction = TrendDeclining
	case t.ChangePct >= trendThresholdPct:
		t.Direction = TrendImproving
	}
	return t, nil
}

func (e *Engine) storeTrendPattern(userID, name, metric string, t *trend) (*database.Pattern, error) {
	p := &database.Pattern{
		UserID:          userID,
		Name:            name,
		PatternType:     database.PatternTypeTrend,
		Score:           t.ChangePct,
		Significance:    database.SignificanceInsufficient,
		MetricsInvolved: []string{metric},
		Details: map[string]any{
			"direction":     t.Direction,
			"recent_mean":   t.RecentMean,
			"baseline_mean": t.BaselineMean,
		},
		SampleCount: t.RecentCount + t.BaselineCnt,
	}

	if t.Measurable {
		p.Confidence = 1
		switch abs := math.Abs(t.ChangePct); {
		case abs >= 10:
			p.Significance = database.SignificanceHigh
		case abs >= 5:
			p.Significance = database.SignificanceMedium
		default:
			p.Significance = database.SignificanceLow
		}
	}

	if err := e.db.ReplacePattern(p); err != nil {
		return nil, err
	}
	return p, nil
}

// computeOvertrainingRisk combines four independently scored factors into a
// 0-100 risk score
func (e *Engine) computeOvertrainingRisk(userID string, trends map[string]*trend) (*database.Pattern, error) {
	f := overtrainingFactors

	var score float64
	var riskFactors []string
	checked := 0

	if t := trends[polar.MetricHRVRMSSD]; t != nil && t.Measurable {
		checked++
		switch {
		case t.ChangePct <= f.HRVDeclineFull:
			score += f.FullWeight
			riskFactors = append(riskFactors, fmt.Sprintf("HRV down %.1f%% over the last week", -t.ChangePct))
		case t.ChangePct <= f.HRVDeclinePartial:
			score += f.PartialWeight
			riskFactors = append(riskFactors, fmt.Sprintf("HRV trending down %.1f%%", -t.ChangePct))
		}
	}

	if t := trends[polar.MetricSleepScore]; t != nil && t.Measurable {
		checked++
		switch {
		case t.ChangePct <= f.SleepDeclineFull:
			score += f.FullWeight
			riskFactors = append(riskFactors, fmt.Sprintf("sleep quality down %.1f%% over the last week", -t.ChangePct))
		case t.ChangePct <= f.SleepDeclinePartial:
			score += f.PartialWeight
			riskFactors = append(riskFactors, fmt.Sprintf("sleep quality trending down %.1f%%", -t.ChangePct))
		}
	}

	if t := trends[polar.MetricRestingHR]; t != nil && t.Measurable {
		checked++
		switch {
		case t.ChangePct >= f.RHRRiseFull:
			score += f.FullWeight
			riskFactors = append(riskFactors, fmt.Sprintf("resting heart rate up %.1f%%", t.ChangePct))
		case t.ChangePct >= f.RHRRisePartial:
			score += f.PartialWeight
			riskFactors = append(riskFactors, fmt.Sprintf("resting heart rate slightly elevated (+%.1f%%)", t.ChangePct))
		}
	}

	ratio, hasRatio, err := e.latestLoadRatio(userID)
	if err != nil {
		return nil, err
	}
	if hasRatio {
		checked++
		switch {
		case ratio >= f.LoadRatioFull:
			score += f.FullWeight
			riskFactors = append(riskFactors, fmt.Sprintf("training load ratio %.2f, well above sustainable range", ratio))
		case ratio >= f.LoadRatioPartial:
			score += f.PartialWeight
			riskFactors = append(riskFactors, fmt.Sprintf("training load ratio %.2f, above sustainable range", ratio))
		}
	}

	p := &database.Pattern{
		UserID:      userID,
		Name:        PatternOvertrainingRisk,
		PatternType: database.PatternTypeComposite,
		Score:       score,
		Confidence:  float64(checked) / 4.0,
		MetricsInvolved: []string{
			polar.MetricHRVRMSSD, polar.MetricSleepScore,
			polar.MetricRestingHR, polar.MetricTrainingLoadRatio,
		},
		Details: map[string]any{
			"risk_factors":    riskFactors,
			"factors_checked": checked,
			"recommendations": recoveryRecommendations(score),
		},
		SampleCount: checked,
	}

	switch {
	case checked < 2:
		p.Significance = database.SignificanceInsufficient
	case score >= 50:
		p.Significance = database.SignificanceHigh
	case score >= 25:
		p.Significance = database.SignificanceMedium
	default:
		p.Significance = database.SignificanceLow
	}

	if err := e.db.ReplacePattern(p); err != nil {
		return nil, err
	}
	return p, nil
}

func (e *Engine) latestLoadRatio(userID string) (float64, bool, error) {
	latest, err := e.db.GetLatestSample(userID, polar.MetricTrainingLoadRatio)
	if err != nil {
		return 0, false, fmt.Errorf("failed to load training load ratio: %w", err)
	}
	if latest == nil || latest.Date < e.dateDaysAgo(7) {
		return 0, false, nil
	}
	return latest.Value, true, nil
}

func recoveryRecommendations(score float64) []string {
	switch {
	case score >= 75:
		return []string{
			"take at least two full rest days",
			"prioritize sleep and hydration",
			"avoid high-intensity sessions until HRV recovers",
		}
	case score >= 50:
		return []string{
			"schedule a rest day this week",
			"replace one hard session with easy aerobic work",
		}
	case score >= 25:
		return []string{
			"monitor recovery metrics closely",
			"keep intensity moderate for the next few days",
		}
	default:
		return []string{"training load looks sustainable"}
	}
}

// alignByDate pairs two series on their shared dates, ordered by date
func alignByDate(a, b []database.SeriesPoint) (xs, ys []float64) {
	byDate := make(map[string]float64, len(b))
	for _, p := range b {
		byDate[p.Date] = p.Value
	}
	for _, p := range a {
		if v, ok := byDate[p.Date]; ok {
			xs = append(xs, p.Value)
			ys = append(ys, v)
		}
	}
	return xs, ys
}
