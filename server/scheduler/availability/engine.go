package availability

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// maxSlotHours bounds the minimum slot length in hours.
const maxSlotHours = 24

// Engine finds free slots for a fixed work-day policy. It is safe for concurrent use.
type Engine struct {
	schedule    WorkSchedule
	horizonDays int
}

// NewEngine validates cfg and creates an engine.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Schedule.Validate(); err != nil {
		return nil, err
	}
	if cfg.HorizonDays <= 0 {
		cfg.HorizonDays = DefaultHorizonDays
	}
	return &Engine{schedule: cfg.Schedule, horizonDays: cfg.HorizonDays}, nil
}

var defaultEngine, _ = NewEngine(DefaultConfig())

// FindFreeSlots searches [searchStart, searchEnd] with the default work week.
func FindFreeSlots(busy []BusyInterval, searchStart, searchEnd time.Time, minDurationHours float64) ([]Slot, error) {
	minDuration, err := HoursToDuration(minDurationHours)
	if err != nil {
		return nil, err
	}
	return defaultEngine.FindFreeSlots(busy, searchStart, searchEnd, minDuration)
}

// Schedule returns the work-day policy of the engine.
func (e *Engine) Schedule() WorkSchedule {
	return e.schedule
}

// Horizon returns the default search range starting at from.
func (e *Engine) Horizon(from time.Time) (time.Time, time.Time) {
	return from, from.AddDate(0, 0, e.horizonDays)
}

// CheckRange reports whether [searchStart, searchEnd] is ordered and no longer
// than the horizon.
func (e *Engine) CheckRange(searchStart, searchEnd time.Time) error {
	if searchEnd.Before(searchStart) {
		return ErrInvalidRange
	}
	if _, limit := e.Horizon(searchStart); searchEnd.After(limit) {
		return fmt.Errorf("%w: at most %d days", ErrRangeTooWide, e.horizonDays)
	}
	return nil
}

// FindFreeSlots returns every gap of at least minDuration between busy intervals
// that lies inside a working window on a work day within [searchStart, searchEnd].
// Slots are returned in ascending start order and never overlap.
func (e *Engine) FindFreeSlots(busy []BusyInterval, searchStart, searchEnd time.Time, minDuration time.Duration) ([]Slot, error) {
	if minDuration <= 0 {
		return nil, ErrInvalidDuration
	}
	if err := e.CheckRange(searchStart, searchEnd); err != nil {
		return nil, err
	}

	sorted := make([]BusyInterval, len(busy))
	copy(sorted, busy)
	for _, b := range sorted {
		if err := b.Validate(); err != nil {
			return nil, err
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Start.Equal(sorted[j].Start) {
			return sorted[i].End.Before(sorted[j].End)
		}
		return sorted[i].Start.Before(sorted[j].Start)
	})

	loc := e.schedule.location()
	first := searchStart.In(loc)
	day := time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, loc)

	slots := []Slot{}
	for !day.After(searchEnd) {
		if e.schedule.isWorkDay(day.Weekday()) {
			windowStart, windowEnd := e.schedule.window(day)
			if windowStart.Before(searchStart) {
				windowStart = searchStart
			}
			if windowEnd.After(searchEnd) {
				windowEnd = searchEnd
			}
			if windowStart.Before(windowEnd) {
				slots = append(slots, sweep(sorted, windowStart, windowEnd, minDuration)...)
			}
		}
		day = day.AddDate(0, 0, 1)
	}

	return slots, nil
}

// sweep walks the sorted busy intervals across one working window.
func sweep(busy []BusyInterval, windowStart, windowEnd time.Time, minDuration time.Duration) []Slot {
	var slots []Slot
	cursor := windowStart

	for _, b := range busy {
		if !b.Start.Before(windowEnd) {
			break
		}
		// Ends before the cursor, including intervals outside the window.
		if !b.End.After(cursor) {
			continue
		}
		if b.Start.After(cursor) && b.Start.Sub(cursor) >= minDuration {
			slots = append(slots, newSlot(cursor, b.Start))
		}
		end := b.End
		if end.After(windowEnd) {
			end = windowEnd
		}
		if end.After(cursor) {
			cursor = end
		}
	}

	if windowEnd.Sub(cursor) >= minDuration {
		slots = append(slots, newSlot(cursor, windowEnd))
	}
	return slots
}

func newSlot(start, end time.Time) Slot {
	return Slot{
		Start:         start,
		End:           end,
		DurationHours: end.Sub(start).Hours(),
	}
}

// HoursToDuration converts a minimum slot length in hours. Values that are not
// finite, not positive or longer than a day are rejected; positive values below
// a nanosecond round up to one.
func HoursToDuration(hours float64) (time.Duration, error) {
	if math.IsNaN(hours) || math.IsInf(hours, 0) || hours <= 0 || hours > maxSlotHours {
		return 0, fmt.Errorf("%w: got %v hours", ErrInvalidDuration, hours)
	}
	d := time.Duration(math.Ceil(hours * float64(time.Hour)))
	return max(d, time.Nanosecond), nil
}
