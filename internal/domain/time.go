package domain

import "time"

// TimeLayout is the canonical timestamp format stored in the database on both
// backends. RFC3339 UTC text sorts chronologically, so "newer than" checks
// need no backend-specific timestamp handling.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// FormatTime renders a timestamp in the canonical stored form.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a stored timestamp. The zero time is represented as the
// empty string.
func ParseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(TimeLayout, s)
}
