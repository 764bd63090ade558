package recurrence

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Pattern is the repeat cadence of an event definition.
type Pattern string

const (
	None    Pattern = "none"
	Daily   Pattern = "daily"
	Weekly  Pattern = "weekly"
	Monthly Pattern = "monthly"
	Yearly  Pattern = "yearly"
)

// ErrInvalidPattern is returned when a pattern string is not one of the known cadences.
var ErrInvalidPattern = errors.New("invalid recurrence pattern")

// InvalidPatternError carries the rejected pattern value.
type InvalidPatternError struct {
	Value string
}

func (e *InvalidPatternError) Error() string {
	return fmt.Sprintf("invalid recurrence pattern %q", e.Value)
}

func (e *InvalidPatternError) Unwrap() error {
	return ErrInvalidPattern
}

// ParsePattern converts a stored or user-supplied value into a Pattern.
// An empty value means None. Unknown values are rejected.
func ParsePattern(value string) (Pattern, error) {
	switch p := Pattern(strings.ToLower(strings.TrimSpace(value))); p {
	case "":
		return None, nil
	case None, Daily, Weekly, Monthly, Yearly:
		return p, nil
	default:
		return None, &InvalidPatternError{Value: value}
	}
}

// IsValid reports whether p is one of the known cadences.
func (p Pattern) IsValid() bool {
	switch p {
	case None, Daily, Weekly, Monthly, Yearly:
		return true
	}
	return false
}

// Repeats reports whether p produces more than one occurrence.
func (p Pattern) Repeats() bool {
	return p != None && p.IsValid()
}

func (p Pattern) String() string {
	return string(p)
}

// next returns the occurrence following current. Calendar steps are taken on
// the wall clock of current's location.
func (p Pattern) next(current time.Time) time.Time {
	switch p {
	case Daily:
		return current.AddDate(0, 0, 1)
	case Weekly:
		return current.AddDate(0, 0, 7)
	case Monthly:
		return addMonthClamped(current)
	case Yearly:
		return current.AddDate(1, 0, 0)
	default:
		return current
	}
}

// addMonthClamped moves current one month ahead keeping its day of month. When
// the target month is too short the result is the last day of that month, and
// the next step starts from the clamped day.
func addMonthClamped(current time.Time) time.Time {
	next := current.AddDate(0, 1, 0)
	if next.Day() != current.Day() {
		// Day 0 of the overflowed month is the last day of the target month.
		next = time.Date(next.Year(), next.Month(), 0,
			current.Hour(), current.Minute(), current.Second(), current.Nanosecond(), current.Location())
	}
	return next
}
