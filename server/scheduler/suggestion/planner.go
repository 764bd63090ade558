package suggestion

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/hrygo/chronoplan/server/scheduler/availability"
	"github.com/hrygo/chronoplan/server/service/calendar"
	"github.com/hrygo/chronoplan/store"
)

// ErrMissingTitle is returned when the task has no title.
var ErrMissingTitle = errors.New("task title is required")

// Calendar is the part of the calendar service the planner needs.
type Calendar interface {
	FindAvailableSlots(ctx context.Context, userID int32, req *calendar.SlotRequest) (*calendar.SlotResponse, error)
	ListTasks(ctx context.Context, userID int32) ([]*store.Task, error)
}

// Result holds the ranked suggestions and the searched range.
type Result struct {
	Slots []availability.Slot `json:"slots"`
	Start time.Time           `json:"start"`
	End   time.Time           `json:"end"`
	// Partial is set when some busy source could not be read.
	Partial       bool     `json:"partial,omitempty"`
	FailedSources []string `json:"failed_sources,omitempty"`
}

// Planner suggests when to work on a task.
type Planner struct {
	calendar Calendar
	ranker   *Ranker
}

// NewPlanner creates a planner.
func NewPlanner(cal Calendar, ranker *Ranker) *Planner {
	if ranker == nil {
		ranker = NewRanker(nil)
	}
	return &Planner{calendar: cal, ranker: ranker}
}

// Suggest searches the default horizon for slots that fit the task and ranks them.
// Remote calendar failures do not block suggestions; the result is then marked partial.
func (p *Planner) Suggest(ctx context.Context, userID int32, task TaskContext) (*Result, error) {
	task.Title = strings.TrimSpace(task.Title)
	if task.Title == "" {
		return nil, ErrMissingTitle
	}
	duration := task.Duration()

	resp, err := p.calendar.FindAvailableSlots(ctx, userID, &calendar.SlotRequest{
		MinDuration: duration,
		BestEffort:  true,
	})
	if err != nil {
		return nil, err
	}

	stats := UserStats{}
	tasks, err := p.calendar.ListTasks(ctx, userID)
	if err != nil {
		slog.Warn("failed to load task stats for suggestions",
			"user_id", userID,
			"error", err)
	} else {
		stats = StatsFromTasks(tasks)
	}

	candidates := make([]availability.Slot, 0, len(resp.Slots))
	for _, slot := range resp.Slots {
		candidates = append(candidates, fit(slot, duration))
	}

	return &Result{
		Slots:         p.ranker.Rank(ctx, task, stats, candidates),
		Start:         resp.Start,
		End:           resp.End,
		Partial:       resp.Partial,
		FailedSources: resp.FailedSources,
	}, nil
}

// fit trims a free gap to the task length, anchored at the gap start.
func fit(slot availability.Slot, duration time.Duration) availability.Slot {
	if slot.Duration() > duration {
		slot.End = slot.Start.Add(duration)
		slot.DurationHours = duration.Hours()
	}
	return slot
}
