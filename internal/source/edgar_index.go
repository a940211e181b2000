package source

import (
	"fmt"
	"time"
)

const edgarIndexURL = "https://www.sec.gov/Archives/edgar/full-index/%d/QTR%d/master.idx"

// EdgarFullIndex watches the quarterly EDGAR master index files. One
// partition per year/quarter; past quarters are immutable on SEC's side but
// the current quarter's index grows daily.
type EdgarFullIndex struct {
	StartYear int
}

func (s *EdgarFullIndex) Name() string     { return "edgar_full_index" }
func (s *EdgarFullIndex) Cadence() Cadence { return Daily }

func (s *EdgarFullIndex) ShouldRun(now time.Time, lastRun *time.Time) bool {
	return DailySchedule(now, lastRun)
}

func (s *EdgarFullIndex) Partitions(now time.Time) ([]Partition, error) {
	startYear := s.StartYear
	if startYear == 0 {
		startYear = now.Year() - 1
	}
	currentQuarter := (int(now.Month())-1)/3 + 1

	var parts []Partition
	for year := startYear; year <= now.Year(); year++ {
		for quarter := 1; quarter <= 4; quarter++ {
			if year == now.Year() && quarter > currentQuarter {
				break
			}
			parts = append(parts, Partition{
				Key: fmt.Sprintf("%d-QTR%d", year, quarter),
				URL: fmt.Sprintf(edgarIndexURL, year, quarter),
			})
		}
	}
	return parts, nil
}
