package contracts

import "time"

// DateLayout is the ISO date layout used on every wire and display format
const DateLayout = "2006-01-02"

// Day truncates t to midnight UTC of its calendar date. All engine dates are
// days; intraday time never takes part in a comparison.
func Day(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Date builds a UTC day
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses an ISO date
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// SameDay reports whether a and b fall on the same calendar day
func SameDay(a, b time.Time) bool {
	return Day(a).Equal(Day(b))
}
