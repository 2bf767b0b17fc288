package domain

import "time"

// DateFormat is the wire and storage format for transaction dates.
const DateFormat = "2006-01-02"

// DisplayLocation is UTC+8; all internal times stay UTC.
var DisplayLocation = time.FixedZone("UTC+8", 8*60*60)

// DateOnly truncates t to midnight UTC.
func DateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD string as midnight UTC.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateFormat, s)
}

// YearStart returns Jan 1st of year, midnight UTC.
func YearStart(year int) time.Time {
	return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
}

// YearEnd returns Dec 31st of year, midnight UTC, capped at today for the
// current year.
func YearEnd(year int, now time.Time) time.Time {
	end := time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)
	today := DateOnly(now)
	if end.After(today) {
		return today
	}
	return end
}
