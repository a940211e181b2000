// Package quality aggregates per-document confidence signals from extraction
// artifacts into summary metrics and diffs two such summaries to decide
// whether a candidate extractor version is safe to promote.
package quality

import "time"

// Artifact status values.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Artifact is one extraction output. Immutable once written; artifacts for
// the same document coexist across extractor versions.
type Artifact struct {
	DocumentID       string             `json:"documentId"`
	ExtractorClass   string             `json:"extractorClass"`
	ExtractorVersion string             `json:"extractorVersion"`
	Status           string             `json:"status"`
	Confidence       float64            `json:"confidence"`
	FieldConfidence  map[string]float64 `json:"fieldConfidence,omitempty"`
	ProducedAt       time.Time          `json:"producedAt"`
}

// Metrics summarizes a batch of artifacts. Only successful artifacts
// contribute to the confidence averages.
type Metrics struct {
	SampleSize            int                `json:"sampleSize"`
	SuccessCount          int                `json:"successCount"`
	AvgConfidence         float64            `json:"avgConfidence"`
	PerFieldAvgConfidence map[string]float64 `json:"perFieldAvgConfidence,omitempty"`
	SuccessRate           float64            `json:"successRate"`
}

// Compute aggregates artifacts into Metrics. Empty input yields a zeroed
// value rather than an error.
func Compute(artifacts []Artifact) Metrics {
	m := Metrics{SampleSize: len(artifacts)}
	if len(artifacts) == 0 {
		return m
	}

	var confidenceSum float64
	fieldSums := map[string]float64{}
	fieldCounts := map[string]int{}

	for _, a := range artifacts {
		if a.Status != StatusSuccess {
			continue
		}
		m.SuccessCount++
		confidenceSum += a.Confidence
		for field, c := range a.FieldConfidence {
			fieldSums[field] += c
			fieldCounts[field]++
		}
	}

	if m.SuccessCount > 0 {
		m.AvgConfidence = confidenceSum / float64(m.SuccessCount)
	}
	if len(fieldSums) > 0 {
		m.PerFieldAvgConfidence = make(map[string]float64, len(fieldSums))
		for field, sum := range fieldSums {
			m.PerFieldAvgConfidence[field] = sum / float64(fieldCounts[field])
		}
	}
	m.SuccessRate = float64(m.SuccessCount) / float64(m.SampleSize)
	return m
}
