package utils

import (
	"fmt"
	"time"
)

// DateLayout is the calendar-date format used across the engine's inputs.
const DateLayout = "2006-01-02"

// ParseDate returns a UTC midnight time for a YYYY-MM-DD string.
func ParseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty date value")
	}
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date: %w", err)
	}
	return t, nil
}

// StartOfDay truncates a time to UTC midnight. Survey dates are calendar
// dates; comparing them at day granularity avoids time-of-day artifacts.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns whole calendar days from a to b (positive when b is
// later than a).
func DaysBetween(a, b time.Time) int {
	return int(StartOfDay(b).Sub(StartOfDay(a)).Hours() / 24)
}
