package source

import "time"

// DailySchedule returns true once per UTC day.
func DailySchedule(now time.Time, lastRun *time.Time) bool {
	if lastRun == nil {
		return true
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return lastRun.Before(today)
}

// WeeklySchedule returns true once per ISO week (Monday start).
func WeeklySchedule(now time.Time, lastRun *time.Time) bool {
	if lastRun == nil {
		return true
	}
	weekday := int(now.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	weekStart := time.Date(now.Year(), now.Month(), now.Day()-(weekday-1), 0, 0, 0, 0, time.UTC)
	return lastRun.Before(weekStart)
}

// MonthlySchedule returns true once per calendar month.
func MonthlySchedule(now time.Time, lastRun *time.Time) bool {
	if lastRun == nil {
		return true
	}
	thisMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return lastRun.Before(thisMonth)
}

// QuarterlyAfterDelay returns true when data for the most recent completed
// quarter should be available, given the publisher's posting delay in days.
func QuarterlyAfterDelay(now time.Time, lastRun *time.Time, delayDays int) bool {
	if lastRun == nil {
		return true
	}
	qEnd := lastQuarterEnd(now)
	available := qEnd.AddDate(0, 0, delayDays)
	if now.Before(available) {
		// This quarter's data isn't posted yet; fall back to the one before.
		qEnd = lastQuarterEnd(qEnd.AddDate(0, 0, -1))
		available = qEnd.AddDate(0, 0, delayDays)
		if now.Before(available) {
			return false
		}
	}
	return lastRun.Before(available)
}

// AnnualAfter returns true once per year, after the release month.
func AnnualAfter(now time.Time, lastRun *time.Time, releaseMonth time.Month) bool {
	if lastRun == nil {
		return true
	}
	release := time.Date(now.Year(), releaseMonth, 1, 0, 0, 0, 0, time.UTC)
	return now.After(release) && lastRun.Before(release)
}

// lastQuarterEnd returns the final day of the most recent completed quarter.
func lastQuarterEnd(t time.Time) time.Time {
	year := t.Year()
	var endMonth time.Month
	switch {
	case t.Month() <= time.March:
		endMonth = time.December
		year--
	case t.Month() <= time.June:
		endMonth = time.March
	case t.Month() <= time.September:
		endMonth = time.June
	default:
		endMonth = time.September
	}
	return time.Date(year, endMonth+1, 0, 23, 59, 59, 0, time.UTC)
}
