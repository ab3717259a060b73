package database

import (
	"time"
)

const (
	// DateLayout is the calendar date format stored in last_login_date.
	DateLayout = "2006-01-02"

	// timestampLayout is fixed width so stored timestamps sort lexically.
	timestampLayout = "2006-01-02T15:04:05.000000Z"
)

// FormatTimestamp formats t as a UTC timestamp string for storage.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// Now returns the current time as a storage timestamp.
func Now() string {
	return FormatTimestamp(time.Now())
}

// FormatDisplay formats a stored timestamp for human-readable display.
// "2026-02-06T10:00:00.000000Z" → "Feb 06, 2026 10:00".
// Values that do not parse are returned unchanged.
func FormatDisplay(ts string) string {
	t, err := time.Parse(timestampLayout, ts)
	if err != nil {
		d, dErr := time.Parse(DateLayout, ts)
		if dErr != nil {
			return ts
		}
		return d.Format("Jan 02, 2006")
	}
	return t.Format("Jan 02, 2006 15:04")
}
