package source

import (
	"fmt"
	"time"
)

const financialSetsURL = "https://www.sec.gov/files/dera/data/financial-statement-data-sets/%dq%d.zip"

// FinancialStatementSets watches the quarterly DERA financial statement
// data set archives. Posted roughly six weeks after quarter end; past
// archives are occasionally re-published with corrections, which is why they
// stay in the partition list instead of being dropped once seen.
type FinancialStatementSets struct {
	StartYear int
}

func (s *FinancialStatementSets) Name() string     { return "financial_statement_sets" }
func (s *FinancialStatementSets) Cadence() Cadence { return Quarterly }

func (s *FinancialStatementSets) ShouldRun(now time.Time, lastRun *time.Time) bool {
	return QuarterlyAfterDelay(now, lastRun, 45)
}

func (s *FinancialStatementSets) Partitions(now time.Time) ([]Partition, error) {
	startYear := s.StartYear
	if startYear == 0 {
		startYear = now.Year() - 1
	}

	lastComplete := lastQuarterEnd(now)
	var parts []Partition
	for year := startYear; year <= lastComplete.Year(); year++ {
		for quarter := 1; quarter <= 4; quarter++ {
			if year == lastComplete.Year() && quarter > (int(lastComplete.Month())-1)/3+1 {
				break
			}
			parts = append(parts, Partition{
				Key: fmt.Sprintf("%dq%d", year, quarter),
				URL: fmt.Sprintf(financialSetsURL, year, quarter),
			})
		}
	}
	return parts, nil
}
