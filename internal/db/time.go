package db

import "time"

// FormatTime renders a timestamp the way sqlite's datetime('now') does,
// so stored values stay lexicographically comparable.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.DateTime)
}

// ParseTime reads a timestamp written by FormatTime or by a sqlite default.
func ParseTime(s string) time.Time {
	if t, err := time.Parse(time.DateTime, s); err == nil {
		return t.UTC()
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC()
	}
	return time.Time{}
}
