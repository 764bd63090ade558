package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/samber/mo"
	"golang.org/x/sync/errgroup"

	"github.com/hrygo/chronoplan/server/scheduler/availability"
	"github.com/hrygo/chronoplan/store"
)

// ErrBusyDataUnavailable is returned when at least one busy source failed and
// the caller did not accept a partial answer.
var ErrBusyDataUnavailable = errors.New("busy data unavailable")

// BusyDataError names the sources that failed. It matches ErrBusyDataUnavailable.
type BusyDataError struct {
	FailedSources []string
}

func (e *BusyDataError) Error() string {
	return fmt.Sprintf("%v: %s", ErrBusyDataUnavailable, strings.Join(e.FailedSources, ", "))
}

func (e *BusyDataError) Unwrap() error {
	return ErrBusyDataUnavailable
}

// BusySource provides the busy intervals of one origin.
type BusySource interface {
	Name() string
	ListBusy(ctx context.Context, userID int32, start, end time.Time) ([]availability.BusyInterval, error)
}

// SourceResult is the outcome of one source.
type SourceResult struct {
	Name   string
	Result mo.Result[[]availability.BusyInterval]
}

// BusyReport collects per-source results of a gathering run.
type BusyReport struct {
	Start   time.Time
	End     time.Time
	results []SourceResult
}

// Results returns the outcome of every source in registration order.
func (r *BusyReport) Results() []SourceResult {
	return r.results
}

// Intervals returns all busy intervals, or ErrBusyDataUnavailable when any source failed.
func (r *BusyReport) Intervals() mo.Result[[]availability.BusyInterval] {
	if failed := r.FailedSources(); len(failed) > 0 {
		return mo.Err[[]availability.BusyInterval](&BusyDataError{FailedSources: failed})
	}
	return mo.Ok(r.Available())
}

// Available returns the intervals of the sources that succeeded, ordered by start.
func (r *BusyReport) Available() []availability.BusyInterval {
	all := make([]availability.BusyInterval, 0)
	for _, result := range r.results {
		all = append(all, result.Result.OrEmpty()...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Start.Before(all[j].Start)
	})
	return all
}

// FailedSources names the sources that returned an error.
func (r *BusyReport) FailedSources() []string {
	var failed []string
	for _, result := range r.results {
		if result.Result.IsError() {
			failed = append(failed, result.Name)
		}
	}
	return failed
}

// Partial reports whether some source failed.
func (r *BusyReport) Partial() bool {
	return len(r.FailedSources()) > 0
}

// GatherBusy queries every source concurrently. A failing source never cancels
// the others; its error is kept in the report.
func (s *service) GatherBusy(ctx context.Context, userID int32, start, end time.Time) *BusyReport {
	report := &BusyReport{
		Start:   start,
		End:     end,
		results: make([]SourceResult, len(s.sources)),
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, source := range s.sources {
		g.Go(func() error {
			intervals, err := source.ListBusy(gctx, userID, start, end)
			if err != nil {
				slog.Warn("busy source failed",
					"source", source.Name(),
					"user_id", userID,
					"error", err)
				report.results[i] = SourceResult{Name: source.Name(), Result: mo.Err[[]availability.BusyInterval](err)}
				return nil
			}
			report.results[i] = SourceResult{Name: source.Name(), Result: mo.Ok(intervals)}
			return nil
		})
	}
	_ = g.Wait()

	return report
}

// FindAvailableSlots gathers busy time and searches the free work-time slots.
func (s *service) FindAvailableSlots(ctx context.Context, userID int32, req *SlotRequest) (*SlotResponse, error) {
	if req == nil {
		return nil, invalid("request", "missing")
	}
	if req.MinDuration <= 0 {
		return nil, availability.ErrInvalidDuration
	}

	start, end := req.Start, req.End
	if start.IsZero() || end.IsZero() {
		start, end = s.availability.Horizon(s.now())
	}
	if err := s.availability.CheckRange(start, end); err != nil {
		return nil, err
	}

	report := s.GatherBusy(ctx, userID, start, end)
	resp := &SlotResponse{Start: start, End: end}

	var gathered []availability.BusyInterval
	if req.BestEffort {
		gathered = report.Available()
		resp.FailedSources = report.FailedSources()
		resp.Partial = len(resp.FailedSources) > 0
	} else {
		intervals, err := report.Intervals().Get()
		if err != nil {
			return nil, err
		}
		gathered = intervals
	}

	busy := make([]availability.BusyInterval, 0, len(gathered))
	for _, b := range gathered {
		if b.End.Before(b.Start) {
			slog.Warn("dropping busy interval ending before it starts",
				"source", b.Source,
				"title", b.Title)
			continue
		}
		if b.End.Equal(b.Start) {
			continue
		}
		busy = append(busy, b)
	}

	slots, err := s.availability.FindFreeSlots(busy, start, end, req.MinDuration)
	if err != nil {
		return nil, fmt.Errorf("failed to find free slots: %w", err)
	}
	resp.Slots = slots
	return resp, nil
}

// eventSource turns expanded event occurrences into busy intervals.
type eventSource struct {
	svc *service
}

func (*eventSource) Name() string { return string(availability.SourceEvent) }

func (e *eventSource) ListBusy(ctx context.Context, userID int32, start, end time.Time) ([]availability.BusyInterval, error) {
	list, err := e.svc.ListEvents(ctx, userID, start, end)
	if err != nil {
		return nil, err
	}
	busy := make([]availability.BusyInterval, 0, len(list.Instances))
	for _, instance := range list.Instances {
		busy = append(busy, availability.BusyInterval{
			Start:  instance.StartDate,
			End:    instance.EndDate,
			Source: availability.SourceEvent,
			Title:  instance.Title,
		})
	}
	return busy, nil
}

// taskSource blocks the span of scheduled, unfinished tasks.
type taskSource struct {
	store Store
}

func (*taskSource) Name() string { return string(availability.SourceTask) }

func (t *taskSource) ListBusy(ctx context.Context, userID int32, start, end time.Time) ([]availability.BusyInterval, error) {
	normal := store.Normal
	startTs, endTs := start.Unix(), end.Unix()
	tasks, err := t.store.ListTasks(ctx, &store.FindTask{
		CreatorID: &userID,
		RowStatus: &normal,
		Scheduled: true,
		StartTs:   &startTs,
		EndTs:     &endTs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	busy := make([]availability.BusyInterval, 0, len(tasks))
	for _, task := range tasks {
		if task.Status == store.TaskDone {
			continue
		}
		taskStart, taskEnd, ok := task.Span()
		if !ok {
			continue
		}
		busy = append(busy, availability.BusyInterval{
			Start:  taskStart,
			End:    taskEnd,
			Source: availability.SourceTask,
			Title:  task.Title,
		})
	}
	return busy, nil
}

// remoteSource reads the linked remote calendar. Users without a link have no remote busy time.
type remoteSource struct {
	remote RemoteConnector
	loc    *time.Location
}

func (*remoteSource) Name() string { return string(availability.SourceGoogle) }

func (r *remoteSource) ListBusy(ctx context.Context, userID int32, start, end time.Time) ([]availability.BusyInterval, error) {
	cal, err := r.remote.Connect(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cal == nil {
		return nil, nil
	}

	events, err := cal.ListEvents(ctx, start, end)
	if err != nil {
		return nil, err
	}

	busy := make([]availability.BusyInterval, 0, len(events))
	for _, event := range events {
		if !event.Busy() {
			continue
		}
		eventStart, err := event.Start.Time(r.loc)
		if err != nil {
			slog.Warn("skipping remote event without start", "event_id", event.ID, "error", err)
			continue
		}
		eventEnd, err := event.End.Time(r.loc)
		if err != nil {
			slog.Warn("skipping remote event without end", "event_id", event.ID, "error", err)
			continue
		}
		busy = append(busy, availability.BusyInterval{
			Start:  eventStart,
			End:    eventEnd,
			Source: availability.SourceGoogle,
			Title:  event.Summary,
		})
	}
	return busy, nil
}
