package utils

import (
	"fmt"
	"time"
)

// PeriodFormat is the layout of a contribution period (one calendar month).
const PeriodFormat = "2006-01"

// DefaultDateFormat is the layout of bank statement dates.
const DefaultDateFormat = "2006-01-02"

// Period returns the YYYY-MM period containing t.
func Period(t time.Time) string {
	return t.Format(PeriodFormat)
}

// ParsePeriod parses a YYYY-MM period into the first instant of that month (UTC).
func ParsePeriod(period string) (time.Time, error) {
	t, err := time.Parse(PeriodFormat, period)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid period '%s', expected YYYY-MM: %w", period, err)
	}
	return t.UTC(), nil
}

// MonthsBetween counts whole calendar months from 'from' to 'to'.
// A month only counts once the day of month of 'from' has been reached again.
func MonthsBetween(from, to time.Time) int {
	if to.Before(from) {
		return 0
	}
	months := (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
	if to.Day() < from.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}

// PeriodsFrom returns n consecutive periods starting with the month containing start.
func PeriodsFrom(start time.Time, n int) []string {
	if n <= 0 {
		return nil
	}
	first := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	periods := make([]string, 0, n)
	for i := 0; i < n; i++ {
		periods = append(periods, Period(first.AddDate(0, i, 0)))
	}
	return periods
}

// PeriodsOfYear returns the twelve periods of year.
func PeriodsOfYear(year int) []string {
	return PeriodsFrom(time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC), 12)
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(dateStr string) (time.Time, error) {
	return time.Parse(DefaultDateFormat, dateStr)
}
