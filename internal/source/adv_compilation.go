package source

import "time"

const advCompilationURL = "https://www.sec.gov/files/data/investment-adviser-data/ia-daily-compilation.xml"

// AdvCompilation watches the SEC investment-adviser daily compilation XML.
// A single partition; the file's Last-Modified header is unreliable, so the
// detector is expected to run with fingerprint verification for this source.
type AdvCompilation struct{}

func (s *AdvCompilation) Name() string     { return "adv_compilation" }
func (s *AdvCompilation) Cadence() Cadence { return Daily }

func (s *AdvCompilation) ShouldRun(now time.Time, lastRun *time.Time) bool {
	return DailySchedule(now, lastRun)
}

func (s *AdvCompilation) Partitions(time.Time) ([]Partition, error) {
	return []Partition{{Key: "daily", URL: advCompilationURL}}, nil
}
