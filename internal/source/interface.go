// Package source names the remote datasets the change detector watches and
// drives detection sweeps across their partitions.
package source

import "time"

// Cadence describes how often a source publishes new data upstream.
type Cadence string

const (
	Daily     Cadence = "daily"
	Weekly    Cadence = "weekly"
	Monthly   Cadence = "monthly"
	Quarterly Cadence = "quarterly"
	Annual    Cadence = "annual"
)

// Partition is one independently watermarked resource of a source. Each
// partition carries its own cursor; partitions never share state.
type Partition struct {
	Key string
	URL string
}

// Source defines the interface each watched dataset must implement.
type Source interface {
	// Name returns the unique identifier for this source (e.g., "edgar_full_index").
	Name() string

	// Cadence returns how often this source is updated upstream.
	Cadence() Cadence

	// ShouldRun decides if this source is due for a detection sweep given the
	// current time and the time of the last successful sweep (nil if never run).
	ShouldRun(now time.Time, lastRun *time.Time) bool

	// Partitions enumerates the resources to check, relative to now.
	Partitions(now time.Time) ([]Partition, error)
}
