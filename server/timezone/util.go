// Package timezone provides the zone and calendar-day helpers shared by the
// recurrence engine, the calendar service and the sync runner.
package timezone

import (
	"fmt"
	"strings"
	"time"
)

// UTC is the coordinated universal time timezone.
var UTC = time.UTC

// ParseTimezone parses an IANA timezone identifier (e.g., "Europe/Paris").
// An empty name and "UTC" are UTC; "Local" is the process zone.
func ParseTimezone(tz string) (*time.Location, error) {
	switch {
	case tz == "" || tz == "UTC":
		return UTC, nil
	case strings.EqualFold(tz, "local"):
		return time.Local, nil
	}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}
	return loc, nil
}

// Resolve returns the named zone, or fallback when the name is empty or unknown.
func Resolve(tz string, fallback *time.Location) *time.Location {
	if fallback == nil {
		fallback = UTC
	}
	if tz == "" {
		return fallback
	}
	loc, err := ParseTimezone(tz)
	if err != nil {
		return fallback
	}
	return loc
}

// IsValidTimezone checks if a timezone identifier is valid.
func IsValidTimezone(tz string) bool {
	_, err := ParseTimezone(tz)
	return err == nil
}

// StartOfDay returns the start of the day (00:00:00) of t in the given timezone.
func StartOfDay(t time.Time, tz *time.Location) time.Time {
	if tz == nil {
		tz = UTC
	}
	t = t.In(tz)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, tz)
}

// EndOfDay returns the end of the day (23:59:59.999999999) of t in the given timezone.
func EndOfDay(t time.Time, tz *time.Location) time.Time {
	if tz == nil {
		tz = UTC
	}
	t = t.In(tz)
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 999999999, tz)
}

// LastSecondOfDay returns 23:59:59 of t's day in the given timezone. Formats
// without sub-second precision, like an RRULE UNTIL, use it as the inclusive
// end of a day.
func LastSecondOfDay(t time.Time, tz *time.Location) time.Time {
	return EndOfDay(t, tz).Truncate(time.Second)
}

// SameOrBeforeDay reports whether a falls on or before b's calendar day, each
// read in its own zone.
func SameOrBeforeDay(a, b time.Time) bool {
	return !dateOf(a).After(dateOf(b))
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FormatSpan formats an interval for display.
// Rules:
//   - All-day: "2006-01-02"
//   - Same day: "2006-01-02 15:04 - 16:00"
//   - Otherwise: "2006-01-02 15:04 - 2006-01-03 09:00"
func FormatSpan(start, end time.Time, allDay bool, tz *time.Location) string {
	if tz == nil {
		tz = UTC
	}
	start, end = start.In(tz), end.In(tz)
	if allDay {
		return start.Format("2006-01-02")
	}
	if StartOfDay(start, tz).Equal(StartOfDay(end, tz)) {
		return fmt.Sprintf("%s - %s", start.Format("2006-01-02 15:04"), end.Format("15:04"))
	}
	return fmt.Sprintf("%s - %s", start.Format("2006-01-02 15:04"), end.Format("2006-01-02 15:04"))
}
