// Package calendar provides the UTC day-bucket and calendar-grid math used by
// the schedule service. All computations are pure and anchored to UTC.
package calendar

import "time"

// DayStart returns the UTC midnight beginning the calendar day containing t.
func DayStart(t time.Time) time.Time {
	utc := t.UTC()
	return time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
}

// DayBucket returns the half-open UTC interval [start, start+24h) containing t.
func DayBucket(t time.Time) (time.Time, time.Time) {
	start := DayStart(t)
	return start, start.AddDate(0, 0, 1)
}

// DayKey formats the UTC calendar day of t as YYYY-MM-DD. The schedule store
// uses it as the uniqueness key for the one-schedule-per-day invariant.
func DayKey(t time.Time) string {
	return DayStart(t).Format("2006-01-02")
}

// SameDay reports whether a and b fall on the same UTC calendar day.
func SameDay(a, b time.Time) bool {
	return DayStart(a).Equal(DayStart(b))
}

// WeekRange returns the half-open 7-day interval anchored to the Sunday on or
// before the UTC day containing t.
func WeekRange(t time.Time) (time.Time, time.Time) {
	start := DayStart(t)
	start = start.AddDate(0, 0, -int(start.Weekday()))
	return start, start.AddDate(0, 0, 7)
}

// MonthGrid returns the half-open 42-day interval backing a six-week calendar
// view of the given month: it begins on the Sunday on or before the 1st and
// always spans exactly six weeks regardless of month length.
func MonthGrid(year int, month time.Month) (time.Time, time.Time) {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	start := first.AddDate(0, 0, -int(first.Weekday()))
	return start, start.AddDate(0, 0, 42)
}
