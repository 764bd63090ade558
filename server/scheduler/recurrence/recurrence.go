// Package recurrence expands stored event definitions into the concrete
// occurrences that fall inside a query window.
//
// Expansion is pure: it performs no I/O, keeps no state between calls and never
// mutates the definition it is given. Occurrences are stepped on the wall clock
// of the definition's start location, while every occurrence keeps the exact
// absolute duration of the first one.
package recurrence

import (
	"errors"
	"log/slog"
	"time"

	"github.com/hrygo/chronoplan/server/timezone"
)

// DefaultMaxInstances bounds how many occurrences a single expansion may emit.
const DefaultMaxInstances = 1000

// ErrInvalidRange is returned when the query window ends before it starts.
var ErrInvalidRange = errors.New("range end is before range start")

// Config tunes the expansion engine.
type Config struct {
	// MaxInstances is the number of occurrences after which expansion stops
	// and the result is marked truncated. Values <= 0 fall back to DefaultMaxInstances.
	MaxInstances int
}

// DefaultConfig returns the configuration used by the package-level Expand.
func DefaultConfig() Config {
	return Config{MaxInstances: DefaultMaxInstances}
}

// Definition is the stored description of an event, recurring or not.
type Definition struct {
	ID          int32
	UID         string
	Title       string
	Description string
	Location    string
	Color       string
	Type        string
	StartDate   time.Time
	EndDate     time.Time
	AllDay      bool
	IsRecurring bool
	Pattern     Pattern
	// RecurrenceEndDate is the last day of the series, if any. Occurrences
	// starting at any time on that calendar day are included.
	RecurrenceEndDate *time.Time
}

// Duration is the length of the first occurrence.
func (d *Definition) Duration() time.Duration {
	return d.EndDate.Sub(d.StartDate)
}

// Repeats reports whether the definition describes a series.
func (d *Definition) Repeats() bool {
	return d.IsRecurring && d.Pattern.Repeats()
}

// Instance is one materialized occurrence of a Definition.
type Instance struct {
	ID          int32
	UID         string
	Title       string
	Description string
	Location    string
	Color       string
	Type        string
	StartDate   time.Time
	EndDate     time.Time
	AllDay      bool
	IsRecurring bool
	Pattern     Pattern
	// RecurrenceParentID points back at the definition a recurring occurrence was derived from.
	RecurrenceParentID *int32
	// InstanceKey identifies the occurrence within its series.
	InstanceKey string
}

// Expansion is the result of expanding one definition.
type Expansion struct {
	Instances []*Instance
	// Truncated is set when MaxInstances stopped the expansion before the window was exhausted.
	Truncated bool
}

// Engine expands definitions with a fixed configuration. It is safe for concurrent use.
type Engine struct {
	maxInstances int
}

// NewEngine creates an engine for cfg.
func NewEngine(cfg Config) *Engine {
	if cfg.MaxInstances <= 0 {
		cfg.MaxInstances = DefaultMaxInstances
	}
	return &Engine{maxInstances: cfg.MaxInstances}
}

var defaultEngine = NewEngine(DefaultConfig())

// Expand expands def over [rangeStart, rangeEnd] with the default configuration.
func Expand(def *Definition, rangeStart, rangeEnd time.Time) (*Expansion, error) {
	return defaultEngine.Expand(def, rangeStart, rangeEnd)
}

// Expand returns the occurrences of def whose start lies in [rangeStart, rangeEnd],
// in strictly increasing start order.
func (e *Engine) Expand(def *Definition, rangeStart, rangeEnd time.Time) (*Expansion, error) {
	if def == nil {
		return nil, errors.New("definition is nil")
	}
	if rangeEnd.Before(rangeStart) {
		return nil, ErrInvalidRange
	}

	result := &Expansion{Instances: []*Instance{}}

	if !def.Repeats() {
		if !def.StartDate.Before(rangeStart) && !def.StartDate.After(rangeEnd) {
			result.Instances = append(result.Instances, newInstance(def, def.StartDate, false))
		}
		return result, nil
	}

	limit := rangeEnd
	if def.RecurrenceEndDate != nil {
		if until := timezone.EndOfDay(*def.RecurrenceEndDate, def.StartDate.Location()); until.Before(limit) {
			limit = until
		}
	}

	current := def.StartDate
	for !current.After(limit) {
		if !current.Before(rangeStart) {
			if len(result.Instances) >= e.maxInstances {
				result.Truncated = true
				break
			}
			result.Instances = append(result.Instances, newInstance(def, current, true))
		}

		next := def.Pattern.next(current)
		if !next.After(current) {
			break
		}
		current = next
	}

	if result.Truncated {
		slog.Warn("recurrence expansion truncated",
			"definition_id", def.ID,
			"pattern", def.Pattern.String(),
			"limit", e.maxInstances)
	}

	return result, nil
}

func newInstance(def *Definition, start time.Time, recurring bool) *Instance {
	instance := &Instance{
		ID:          def.ID,
		UID:         def.UID,
		Title:       def.Title,
		Description: def.Description,
		Location:    def.Location,
		Color:       def.Color,
		Type:        def.Type,
		StartDate:   start,
		EndDate:     start.Add(def.Duration()),
		AllDay:      def.AllDay,
		IsRecurring: recurring,
		Pattern:     def.Pattern,
		InstanceKey: start.Format(time.RFC3339),
	}
	if recurring {
		parentID := def.ID
		instance.RecurrenceParentID = &parentID
	}
	return instance
}
