package domain

import (
	"fmt"
	"time"
)

// DateLayout is the storage format for calendar dates
const DateLayout = "2006-01-02"

// DateOf returns the calendar date of t in loc, as midnight UTC.
// Calendar dates are compared as values, so they must not carry a zone offset.
func DateOf(t time.Time, loc *time.Location) time.Time {
	if loc != nil {
		t = t.In(loc)
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FormatDate renders a calendar date
func FormatDate(d time.Time) string {
	return d.Format(DateLayout)
}

// ParseDate parses a YYYY-MM-DD calendar date
func ParseDate(value string) (time.Time, error) {
	d, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, NewValidationError("date", fmt.Sprintf("expected YYYY-MM-DD, got %q", value))
	}
	return d, nil
}

// IsWeekend reports whether d falls on Saturday or Sunday
func IsWeekend(d time.Time) bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
