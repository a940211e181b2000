package quality

import (
	"sort"
	"time"
)

// Recommendation values, strongest safety signal first.
const (
	ReviewRequired = "REVIEW_REQUIRED"
	Promote        = "PROMOTE"
	Neutral        = "NEUTRAL"
)

// Metric keys used in ComparisonReport.Deltas alongside per-field entries.
const (
	MetricAvgConfidence = "avgConfidence"
	MetricSuccessRate   = "successRate"
)

// Thresholds is the comparison policy. Zero values fall back to the
// defaults; both numbers are deliberate policy knobs, not invariants.
type Thresholds struct {
	Regression  float64
	Improvement float64
}

const (
	defaultRegressionThreshold  = 0.01
	defaultImprovementThreshold = 0.02
)

func (t Thresholds) withDefaults() Thresholds {
	if t.Regression == 0 {
		t.Regression = defaultRegressionThreshold
	}
	if t.Improvement == 0 {
		t.Improvement = defaultImprovementThreshold
	}
	return t
}

// Delta is one metric's movement between baseline and candidate.
type Delta struct {
	Baseline  float64 `json:"baseline"`
	Candidate float64 `json:"candidate"`
	Delta     float64 `json:"delta"`
	DeltaPct  float64 `json:"deltaPct"`
}

// ComparisonReport is the full diff of two metrics snapshots. It is always
// derived from two fully computed snapshots, never from partial data.
type ComparisonReport struct {
	BaselineVersion string           `json:"baselineVersion"`
	NewVersion      string           `json:"newVersion"`
	Deltas          map[string]Delta `json:"perFieldDeltas"`
	Regressions     []string         `json:"regressions,omitempty"`
	Recommendation  string           `json:"recommendation"`
	GeneratedAt     time.Time        `json:"generatedAt"`
}

// Compare diffs candidate against baseline. Every metric whose delta falls
// below -thresholds.Regression is listed as a regression. Recommendation is
// evaluated in order: any regression wins REVIEW_REQUIRED; then any
// improvement beyond thresholds.Improvement wins PROMOTE; then strictly more
// successful documents wins PROMOTE; otherwise NEUTRAL. Safety outranks
// volume on purpose.
func Compare(baselineVersion, newVersion string, baseline, candidate Metrics, thresholds Thresholds) ComparisonReport {
	th := thresholds.withDefaults()
	report := ComparisonReport{
		BaselineVersion: baselineVersion,
		NewVersion:      newVersion,
		Deltas:          map[string]Delta{},
		GeneratedAt:     time.Now().UTC(),
	}

	record := func(key string, base, cand float64) {
		d := Delta{Baseline: base, Candidate: cand, Delta: cand - base}
		if base != 0 {
			d.DeltaPct = d.Delta / base * 100
		}
		report.Deltas[key] = d
		if d.Delta < -th.Regression {
			report.Regressions = append(report.Regressions, key)
		}
	}

	record(MetricAvgConfidence, baseline.AvgConfidence, candidate.AvgConfidence)
	record(MetricSuccessRate, baseline.SuccessRate, candidate.SuccessRate)
	for _, field := range fieldUnion(baseline.PerFieldAvgConfidence, candidate.PerFieldAvgConfidence) {
		record(field, baseline.PerFieldAvgConfidence[field], candidate.PerFieldAvgConfidence[field])
	}

	sort.Strings(report.Regressions)

	switch {
	case len(report.Regressions) > 0:
		report.Recommendation = ReviewRequired
	case anyImprovement(report.Deltas, th.Improvement):
		report.Recommendation = Promote
	case candidate.SuccessCount > baseline.SuccessCount:
		report.Recommendation = Promote
	default:
		report.Recommendation = Neutral
	}
	return report
}

func anyImprovement(deltas map[string]Delta, threshold float64) bool {
	for _, d := range deltas {
		if d.Delta > threshold {
			return true
		}
	}
	return false
}

func fieldUnion(a, b map[string]float64) []string {
	seen := map[string]struct{}{}
	for k := range a {
		seen[k] = struct{}{}
	}
	for k := range b {
		seen[k] = struct{}{}
	}
	fields := make([]string, 0, len(seen))
	for k := range seen {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}
