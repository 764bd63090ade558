// Package availability computes free time slots from a set of busy intervals
// under a work-day policy.
//
// The computation is a per-day sweep: each work day contributes a window, busy
// intervals are clipped to it, and every gap long enough for the requested
// duration becomes a candidate slot. Intervals are half-open, so an interval
// ending exactly where another begins does not conflict with it.
package availability

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidDuration is returned when the requested minimum slot length is not positive.
	ErrInvalidDuration = errors.New("minimum slot duration must be positive")
	// ErrInvalidRange is returned when the search horizon ends before it starts.
	ErrInvalidRange = errors.New("search end is before search start")
	// ErrRangeTooWide is returned when the search range is longer than the engine's horizon.
	ErrRangeTooWide = errors.New("search range is wider than the horizon")
	// ErrInvalidInterval is the sentinel behind InvalidIntervalError.
	ErrInvalidInterval = errors.New("invalid busy interval")
)

// InvalidIntervalError reports a busy interval whose end is not after its start.
type InvalidIntervalError struct {
	Interval BusyInterval
}

func (e *InvalidIntervalError) Error() string {
	return fmt.Sprintf("invalid busy interval %q: end %s is not after start %s",
		e.Interval.Title, e.Interval.End.Format(time.RFC3339), e.Interval.Start.Format(time.RFC3339))
}

func (e *InvalidIntervalError) Unwrap() error {
	return ErrInvalidInterval
}

// Source tags where a busy interval came from.
type Source string

const (
	SourceEvent  Source = "event"
	SourceTask   Source = "task"
	SourceGoogle Source = "google"
)

// BusyInterval is a committed block of time, [Start, End).
type BusyInterval struct {
	Start  time.Time
	End    time.Time
	Source Source
	Title  string
}

// Validate rejects zero and negative length intervals.
func (b BusyInterval) Validate() error {
	if !b.End.After(b.Start) {
		return &InvalidIntervalError{Interval: b}
	}
	return nil
}

// Overlaps reports whether the half-open ranges [aStart, aEnd) and [bStart, bEnd) intersect.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// Slot is a free interval found by the engine. Score and Justification are
// left empty by the engine and filled in by an external ranking step.
type Slot struct {
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	DurationHours float64   `json:"duration_hours"`
	Score         int       `json:"score,omitempty"`
	Justification string    `json:"justification,omitempty"`
}

// Duration returns the slot length.
func (s Slot) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// WorkSchedule describes which days are work days and the working hours on them.
type WorkSchedule struct {
	Days        []time.Weekday
	StartHour   int
	StartMinute int
	EndHour     int
	EndMinute   int
	// Location is the timezone the working hours are expressed in. Nil means time.Local.
	Location *time.Location
}

// DefaultWorkSchedule is Monday to Friday, 09:00 to 18:00 local time.
func DefaultWorkSchedule() WorkSchedule {
	return WorkSchedule{
		Days:      []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		StartHour: 9,
		EndHour:   18,
		Location:  time.Local,
	}
}

// Validate checks that the schedule describes a non-empty working window.
func (w WorkSchedule) Validate() error {
	if len(w.Days) == 0 {
		return errors.New("work schedule has no work days")
	}
	for _, d := range w.Days {
		if d < time.Sunday || d > time.Saturday {
			return fmt.Errorf("invalid work day %d", d)
		}
	}
	start := w.StartHour*60 + w.StartMinute
	end := w.EndHour*60 + w.EndMinute
	if w.StartHour < 0 || w.StartMinute < 0 || w.StartMinute > 59 || w.EndMinute < 0 || w.EndMinute > 59 {
		return errors.New("work hours out of range")
	}
	if end > 24*60 {
		return errors.New("work hours end after midnight")
	}
	if end <= start {
		return fmt.Errorf("work hours end %02d:%02d is not after start %02d:%02d",
			w.EndHour, w.EndMinute, w.StartHour, w.StartMinute)
	}
	return nil
}

func (w WorkSchedule) location() *time.Location {
	if w.Location == nil {
		return time.Local
	}
	return w.Location
}

func (w WorkSchedule) isWorkDay(day time.Weekday) bool {
	for _, d := range w.Days {
		if d == day {
			return true
		}
	}
	return false
}

// window returns the working window on the calendar day of day.
func (w WorkSchedule) window(day time.Time) (time.Time, time.Time) {
	loc := w.location()
	y, m, d := day.In(loc).Date()
	return time.Date(y, m, d, w.StartHour, w.StartMinute, 0, 0, loc),
		time.Date(y, m, d, w.EndHour, w.EndMinute, 0, 0, loc)
}

// DefaultHorizonDays is how far ahead a search looks when the caller does not bound it.
const DefaultHorizonDays = 14

// Config configures the availability engine.
type Config struct {
	Schedule    WorkSchedule
	HorizonDays int
}

// DefaultConfig returns the standard work week with a two week horizon.
func DefaultConfig() Config {
	return Config{
		Schedule:    DefaultWorkSchedule(),
		HorizonDays: DefaultHorizonDays,
	}
}
