// Package stats computes calendar usage statistics for a user.
package stats

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/hrygo/chronoplan/store"
)

const (
	monthsTracked = 12
	weeksTracked  = 8
	dayLayout     = "2006-01-02"
	monthLayout   = "2006-01"
)

// DayCount is the number of events starting on one day.
type DayCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// Stats represents the calendar statistics of one user.
type Stats struct {
	// Type -> number of events.
	TypeDistribution map[string]int `json:"type_distribution"`
	// "2006-01" -> events starting in that month, last 12 months.
	EventsByMonth map[string]int `json:"events_by_month"`
	// Monday of the week -> scheduled hours, last 8 weeks.
	HoursByWeek map[string]float64 `json:"hours_by_week"`

	TotalEvents     int       `json:"total_events"`
	AvgEventsPerDay float64   `json:"avg_events_per_day"`
	BusiestDay      *DayCount `json:"busiest_day,omitempty"`

	LastUpdated time.Time `json:"last_updated"`
}

// Store is the interface for store operations needed by the collector.
type Store interface {
	ListEvents(ctx context.Context, find *store.FindEvent) ([]*store.Event, error)
}

// Collector computes statistics from stored events.
type Collector struct {
	store Store
	loc   *time.Location
	now   func() time.Time
}

// NewCollector creates a new statistics collector. Days and weeks are cut in loc.
func NewCollector(st Store, loc *time.Location) *Collector {
	if loc == nil {
		loc = time.Local
	}
	return &Collector{store: st, loc: loc, now: time.Now}
}

// Collect computes the statistics of userID's event definitions.
func (c *Collector) Collect(ctx context.Context, userID int32) (*Stats, error) {
	normal := store.Normal
	events, err := c.store.ListEvents(ctx, &store.FindEvent{CreatorID: &userID, RowStatus: &normal})
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return Compute(events, c.now().In(c.loc)), nil
}

// Compute derives statistics from events relative to now. Calendar boundaries
// are taken in now's location.
func Compute(events []*store.Event, now time.Time) *Stats {
	loc := now.Location()
	stats := &Stats{
		TypeDistribution: make(map[string]int),
		EventsByMonth:    make(map[string]int),
		HoursByWeek:      make(map[string]float64),
		TotalEvents:      len(events),
		LastUpdated:      now,
	}

	monthsStart := time.Date(now.Year(), now.Month()-(monthsTracked-1), 1, 0, 0, 0, 0, loc)
	weeksStart := now.AddDate(0, 0, -7*weeksTracked)

	byDay := make(map[string]int)
	var earliest time.Time
	for _, e := range events {
		eventType := string(e.Type)
		if eventType == "" {
			eventType = string(store.EventTypePersonal)
		}
		stats.TypeDistribution[eventType]++

		start := e.StartTime().In(loc)
		if earliest.IsZero() || start.Before(earliest) {
			earliest = start
		}
		byDay[start.Format(dayLayout)]++

		if !start.Before(monthsStart) {
			stats.EventsByMonth[start.Format(monthLayout)]++
		}
		if !start.Before(weeksStart) {
			hours := e.EndTime().Sub(e.StartTime()).Hours()
			stats.HoursByWeek[weekStart(start).Format(dayLayout)] += hours
		}
	}

	if len(events) > 0 {
		days := math.Max(1, math.Ceil(now.Sub(earliest).Hours()/24))
		stats.AvgEventsPerDay = math.Round(float64(len(events))/days*10) / 10
		stats.BusiestDay = busiest(byDay)
	}
	return stats
}

// busiest returns the day with most events, the earliest one on ties.
func busiest(byDay map[string]int) *DayCount {
	days := make([]string, 0, len(byDay))
	for day := range byDay {
		days = append(days, day)
	}
	sort.Strings(days)

	var best *DayCount
	for _, day := range days {
		if best == nil || byDay[day] > best.Count {
			best = &DayCount{Date: day, Count: byDay[day]}
		}
	}
	return best
}

// weekStart returns midnight of the Monday starting t's week.
func weekStart(t time.Time) time.Time {
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return day.AddDate(0, 0, -weekday+1)
}

// GetSummary returns a human-readable summary.
func (s *Stats) GetSummary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Calendar statistics (updated %s)\n\n", s.LastUpdated.Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "Events\n  Total: %d\n  Per day: %.1f\n", s.TotalEvents, s.AvgEventsPerDay)
	if s.BusiestDay != nil {
		fmt.Fprintf(&b, "  Busiest day: %s (%d)\n", s.BusiestDay.Date, s.BusiestDay.Count)
	}

	b.WriteString("\nBy type\n")
	for _, key := range sortedKeys(s.TypeDistribution) {
		fmt.Fprintf(&b, "  %s: %d\n", key, s.TypeDistribution[key])
	}

	b.WriteString("\nHours by week\n")
	for _, key := range sortedKeys(s.HoursByWeek) {
		fmt.Fprintf(&b, "  %s: %.1f\n", key, s.HoursByWeek[key])
	}
	return strings.TrimRight(b.String(), "\n")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
