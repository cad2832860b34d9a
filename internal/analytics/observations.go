package analytics

import (
	"fmt"
	"sort"

	"polar-flow-sync/internal/database"
	"polar-flow-sync/internal/polar"
)

// Observation priorities, in display order
const (
	PriorityCritical = "critical"
	PriorityHigh     = "high"
	PriorityMedium   = "medium"
	PriorityLow      = "low"
	PriorityInfo     = "info"
	PriorityPositive = "positive"
)

var priorityOrder = map[string]int{
	PriorityCritical: 0,
	PriorityHigh:     1,
	PriorityMedium:   2,
	PriorityLow:      3,
	PriorityInfo:     4,
	PriorityPositive: 5,
}

// Observation categories
const (
	CategoryOnboarding = "onboarding"
	CategoryRecovery   = "recovery"
	CategorySleep      = "sleep"
	CategoryTraining   = "training"
	CategoryAnomaly    = "anomaly"
	CategoryPattern    = "pattern"
)

// Observation is one natural-language statement about the user's data,
// generated by a deterministic threshold rule
type Observation struct {
	Category string `json:"category"`
	Priority string `json:"priority"`
	Message  string `json:"message"`
	Context  string `json:"context,omitempty"`
	Trend    string `json:"trend,omitempty"`
}

// Thresholds for metric-vs-baseline observations, as fractions of the
// 7-day baseline
const (
	lowVsBaseline  = 0.85
	highVsBaseline = 1.10
)

// buildObservations applies the observation rules to an assembled payload
// and returns the results ordered by priority
func (e *Engine) buildObservations(p *InsightsPayload) []Observation {
	var obs []Observation

	switch {
	case p.DataAgeDays < 7:
		obs = append(obs, Observation{
			Category: CategoryOnboarding,
			Priority: PriorityInfo,
			Message:  "Your personal baselines are being established.",
			Context:  fmt.Sprintf("%d of 7 days collected. Keep syncing daily to unlock baseline analytics.", p.DataAgeDays),
		})
	case p.DataAgeDays < 21:
		obs = append(obs, Observation{
			Category: CategoryOnboarding,
			Priority: PriorityInfo,
			Message:  "Early baselines are available, pattern detection unlocks soon.",
			Context:  fmt.Sprintf("%d of 21 days collected for trend and correlation analysis.", p.DataAgeDays),
		})
	}

	for _, a := range p.Anomalies {
		priority := PriorityHigh
		if a.Severity == SeverityCritical {
			priority = PriorityCritical
		}
		obs = append(obs, Observation{
			Category: CategoryAnomaly,
			Priority: priority,
			Message:  fmt.Sprintf("%s is %s your normal range.", a.Metric, a.Direction),
			Context: fmt.Sprintf("Latest value %.1f on %s, typical range %.1f to %.1f.",
				a.CurrentValue, a.Date, a.LowerBound, a.UpperBound),
		})
	}

	if snap, ok := p.CurrentMetrics[polar.MetricHRVRMSSD]; ok && snap.VsBaselinePct != nil {
		ratio := 1 + *snap.VsBaselinePct/100
		if ratio < lowVsBaseline {
			obs = append(obs, Observation{
				Category: CategoryRecovery,
				Priority: PriorityHigh,
				Message:  "HRV is well below your recent baseline.",
				Context:  fmt.Sprintf("Current HRV is %.0f%% of your 7-day average. Consider an easier day.", ratio*100),
				Trend:    TrendDeclining,
			})
		} else if ratio > highVsBaseline {
			obs = append(obs, Observation{
				Category: CategoryRecovery,
				Priority: PriorityPositive,
				Message:  "HRV is above your recent baseline, recovery looks good.",
				Context:  fmt.Sprintf("Current HRV is %.0f%% of your 7-day average.", ratio*100),
				Trend:    TrendImproving,
			})
		}
	}

	if snap, ok := p.CurrentMetrics[polar.MetricSleepScore]; ok && snap.VsBaselinePct != nil {
		if ratio := 1 + *snap.VsBaselinePct/100; ratio < lowVsBaseline {
			obs = append(obs, Observation{
				Category: CategorySleep,
				Priority: PriorityMedium,
				Message:  "Last night's sleep scored below your recent baseline.",
				Context:  fmt.Sprintf("Sleep score was %.0f%% of your 7-day average.", ratio*100),
				Trend:    TrendDeclining,
			})
		}
	}

	if ot := findPattern(p.Patterns, PatternOvertrainingRisk); ot != nil {
		if ot.Score >= 50 {
			obs = append(obs, Observation{
				Category: CategoryTraining,
				Priority: PriorityHigh,
				Message:  "Multiple recovery metrics point to elevated overtraining risk.",
				Context:  fmt.Sprintf("Risk score %.0f of 100.", ot.Score),
			})
		} else if ot.Score >= 25 {
			obs = append(obs, Observation{
				Category: CategoryTraining,
				Priority: PriorityMedium,
				Message:  "Some recovery metrics suggest accumulating fatigue.",
				Context:  fmt.Sprintf("Risk score %.0f of 100.", ot.Score),
			})
		}
	}

	if corr := findPattern(p.Patterns, PatternSleepHRVCorrelation); corr != nil {
		if corr.Significance == database.SignificanceHigh && corr.Score > 0.5 {
			obs = append(obs, Observation{
				Category: CategoryPattern,
				Priority: PriorityInfo,
				Message:  "Your sleep quality strongly tracks your HRV.",
				Context:  "Better sleep tends to precede better recovery for you.",
			})
		}
	}

	sort.SliceStable(obs, func(i, j int) bool {
		return priorityOrder[obs[i].Priority] < priorityOrder[obs[j].Priority]
	})
	return obs
}

// Suggestion identifiers consumed by the coaching layer
const (
	SuggestRestDay            = "rest_day"
	SuggestReduceIntensity    = "reduce_intensity"
	SuggestPrioritizeRecovery = "prioritize_recovery"
	SuggestMonitorClosely     = "monitor_closely"
	SuggestTrainNormally      = "train_normally"
)

// buildSuggestions derives actionable suggestion keys from the payload
func buildSuggestions(p *InsightsPayload) []string {
	var out []string

	if ot := findPattern(p.Patterns, PatternOvertrainingRisk); ot != nil {
		if ot.Score >= 50 {
			out = append(out, SuggestRestDay)
		} else if ot.Score >= 25 {
			out = append(out, SuggestReduceIntensity)
		}
	}

	hrvRatio := 0.0
	if snap, ok := p.CurrentMetrics[polar.MetricHRVRMSSD]; ok && snap.VsBaselinePct != nil {
		hrvRatio = 1 + *snap.VsBaselinePct/100
		if hrvRatio < lowVsBaseline {
			out = append(out, SuggestPrioritizeRecovery)
		}
	}

	for _, a := range p.Anomalies {
		if a.Severity == SeverityCritical {
			out = append(out, SuggestMonitorClosely)
			break
		}
	}

	if len(out) == 0 && hrvRatio >= 1.0 {
		out = append(out, SuggestTrainNormally)
	}
	return out
}
