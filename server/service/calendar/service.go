// Package calendar provides calendar management: event definitions with
// recurring expansion, tasks, conflict checks, busy-time gathering across
// sources, free-slot search and iCalendar import/export.
//
// The service layer keeps business rules out of the store and the API and
// exposes them through the Service interface.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/hrygo/chronoplan/internal/util"
	"github.com/hrygo/chronoplan/server/scheduler/availability"
	"github.com/hrygo/chronoplan/server/scheduler/recurrence"
	"github.com/hrygo/chronoplan/server/timezone"
	"github.com/hrygo/chronoplan/store"
)

// Calendar errors that can be checked with errors.Is.
var (
	ErrEventNotFound = errors.New("event not found")
	ErrInvalidInput  = errors.New("invalid input")
)

// ValidationError names the offending field of a rejected request.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Store is the interface for store operations needed by the calendar service.
type Store interface {
	CreateEvent(ctx context.Context, create *store.Event) (*store.Event, error)
	ListEvents(ctx context.Context, find *store.FindEvent) ([]*store.Event, error)
	GetEvent(ctx context.Context, find *store.FindEvent) (*store.Event, error)
	UpdateEvent(ctx context.Context, update *store.UpdateEvent) error
	DeleteEvent(ctx context.Context, delete *store.DeleteEvent) error

	CreateTask(ctx context.Context, create *store.Task) (*store.Task, error)
	ListTasks(ctx context.Context, find *store.FindTask) ([]*store.Task, error)
}

// Options configures the service.
type Options struct {
	// Location is used for date-only values and events without a timezone.
	Location     *time.Location
	Recurrence   recurrence.Config
	Availability availability.Config
	// Remote opens the linked remote calendar of a user. Nil disables the remote busy source.
	Remote RemoteConnector
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

type service struct {
	store        Store
	loc          *time.Location
	expander     *recurrence.Engine
	availability *availability.Engine
	sources      []BusySource
	now          func() time.Time
}

// NewService creates a new calendar service.
func NewService(st Store, opts Options) (Service, error) {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if len(opts.Availability.Schedule.Days) == 0 {
		opts.Availability.Schedule = availability.DefaultWorkSchedule()
	}
	if opts.Availability.Schedule.Location == nil {
		opts.Availability.Schedule.Location = opts.Location
	}

	engine, err := availability.NewEngine(opts.Availability)
	if err != nil {
		return nil, fmt.Errorf("failed to create availability engine: %w", err)
	}

	s := &service{
		store:        st,
		loc:          opts.Location,
		expander:     recurrence.NewEngine(opts.Recurrence),
		availability: engine,
		now:          opts.Now,
	}
	s.sources = []BusySource{&eventSource{svc: s}, &taskSource{store: st}}
	if opts.Remote != nil {
		s.sources = append(s.sources, &remoteSource{remote: opts.Remote, loc: s.loc})
	}
	return s, nil
}

func (s *service) Location() *time.Location {
	return s.loc
}

// ListEvents loads recurring definitions without a time filter and single events
// overlapping the window, expands them and merges the occurrences by start.
func (s *service) ListEvents(ctx context.Context, userID int32, start, end time.Time) (*EventList, error) {
	if end.Before(start) {
		return nil, recurrence.ErrInvalidRange
	}

	normal := store.Normal
	recurring := true
	endTs := end.Unix() + 1
	series, err := s.store.ListEvents(ctx, &store.FindEvent{
		CreatorID:   &userID,
		RowStatus:   &normal,
		IsRecurring: &recurring,
		EndTs:       &endTs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list recurring events: %w", err)
	}

	single := false
	// Zero-length events starting exactly at start still match end_ts > StartTs.
	startTs := start.Unix() - 1
	singles, err := s.store.ListEvents(ctx, &store.FindEvent{
		CreatorID:   &userID,
		RowStatus:   &normal,
		IsRecurring: &single,
		StartTs:     &startTs,
		EndTs:       &endTs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	result := &EventList{Instances: []*recurrence.Instance{}}
	for _, event := range append(series, singles...) {
		def := s.toDefinition(event)
		// Occurrences that began before the window but are still running overlap it.
		expansion, err := s.expander.Expand(def, start.Add(-def.Duration()), end)
		if err != nil {
			return nil, fmt.Errorf("failed to expand event %d: %w", event.ID, err)
		}
		if expansion.Truncated {
			result.Truncated = true
		}
		for _, instance := range expansion.Instances {
			if overlapsWindow(instance, start, end) {
				result.Instances = append(result.Instances, instance)
			}
		}
	}

	sort.SliceStable(result.Instances, func(i, j int) bool {
		a, b := result.Instances[i], result.Instances[j]
		if !a.StartDate.Equal(b.StartDate) {
			return a.StartDate.Before(b.StartDate)
		}
		return a.ID < b.ID
	})

	if result.Truncated {
		slog.Warn("event listing truncated",
			"user_id", userID,
			"count", len(result.Instances))
	}
	return result, nil
}

// overlapsWindow reports whether an occurrence touches [start, end).
// Zero-length occurrences count when they start inside the window.
func overlapsWindow(instance *recurrence.Instance, start, end time.Time) bool {
	if !instance.EndDate.After(instance.StartDate) {
		return !instance.StartDate.Before(start) && instance.StartDate.Before(end)
	}
	return availability.Overlaps(instance.StartDate, instance.EndDate, start, end)
}

// toDefinition converts a stored row. An unknown pattern string degrades to a
// single event so one bad row cannot break listing.
func (s *service) toDefinition(event *store.Event) *recurrence.Definition {
	loc := s.eventLocation(event.Timezone)

	pattern, err := recurrence.ParsePattern(event.RecurrencePattern)
	if err != nil {
		slog.Warn("treating event with unknown recurrence pattern as single",
			"event_id", event.ID,
			"pattern", event.RecurrencePattern)
		pattern = recurrence.None
	}

	def := &recurrence.Definition{
		ID:          event.ID,
		UID:         event.UID,
		Title:       event.Title,
		Description: event.Description,
		Location:    event.Location,
		Color:       event.Color,
		Type:        string(event.Type),
		StartDate:   event.StartTime().In(loc),
		EndDate:     event.EndTime().In(loc),
		AllDay:      event.AllDay,
		IsRecurring: event.IsRecurring && pattern.Repeats(),
		Pattern:     pattern,
	}
	if until := event.RecurrenceEndTime(); until != nil {
		t := until.In(loc)
		def.RecurrenceEndDate = &t
	}
	return def
}

func (s *service) eventLocation(name string) *time.Location {
	if name == "" {
		return s.loc
	}
	loc, err := timezone.ParseTimezone(name)
	if err != nil {
		slog.Debug("unknown event timezone, using default", "timezone", name)
		return s.loc
	}
	return loc
}

func (s *service) GetEvent(ctx context.Context, userID int32, id int32) (*store.Event, error) {
	event, err := s.store.GetEvent(ctx, &store.FindEvent{ID: &id, CreatorID: &userID})
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	if event == nil {
		return nil, ErrEventNotFound
	}
	return event, nil
}

// CreateEvent validates and stores a new definition.
func (s *service) CreateEvent(ctx context.Context, userID int32, create *CreateEventRequest) (*store.Event, error) {
	if create == nil {
		return nil, invalid("request", "missing")
	}

	event := &store.Event{
		UID:               util.GenUUID(),
		CreatorID:         userID,
		Title:             strings.TrimSpace(create.Title),
		Description:       create.Description,
		Location:          create.Location,
		Color:             create.Color,
		Type:              create.Type,
		StartTs:           create.Start.Unix(),
		EndTs:             create.End.Unix(),
		AllDay:            create.AllDay,
		Timezone:          create.Timezone,
		IsRecurring:       create.IsRecurring,
		RecurrencePattern: create.RecurrencePattern,
	}
	if create.RecurrenceEnd != nil {
		ts := create.RecurrenceEnd.Unix()
		event.RecurrenceEndTs = &ts
	}
	if err := s.normalizeEvent(event); err != nil {
		return nil, err
	}

	created, err := s.store.CreateEvent(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}
	slog.Debug("event created",
		"user_id", userID,
		"event_id", created.ID,
		"recurring", created.IsRecurring)
	return created, nil
}

// normalizeEvent fills defaults and enforces the definition rules in place.
func (s *service) normalizeEvent(event *store.Event) error {
	event.Title = strings.TrimSpace(event.Title)
	if event.Title == "" {
		return invalid("title", "required")
	}
	if event.EndTs < event.StartTs {
		return invalid("end", "before start")
	}
	if event.Type == "" {
		event.Type = store.EventTypePersonal
	}
	if !event.Type.IsValid() {
		return invalid("type", "unknown type %q", event.Type)
	}
	if event.Timezone == "" {
		event.Timezone = s.loc.String()
	}
	loc, err := timezone.ParseTimezone(event.Timezone)
	if err != nil {
		return invalid("timezone", "unknown timezone %q", event.Timezone)
	}

	pattern, err := recurrence.ParsePattern(event.RecurrencePattern)
	if err != nil {
		return &ValidationError{Field: "recurrence_pattern", Message: err.Error()}
	}
	event.RecurrencePattern = pattern.String()
	if event.IsRecurring && !pattern.Repeats() {
		return invalid("recurrence_pattern", "required for recurring events")
	}
	if !event.IsRecurring {
		event.RecurrencePattern = recurrence.None.String()
		event.RecurrenceEndTs = nil
	}
	if event.IsRecurring && event.RecurrenceEndTs != nil {
		start := time.Unix(event.StartTs, 0).In(loc)
		until := time.Unix(*event.RecurrenceEndTs, 0).In(loc)
		if !timezone.SameOrBeforeDay(start, until) {
			return invalid("recurrence_end", "before start date")
		}
	}
	return nil
}

// UpdateEvent merges update into the stored definition and validates the result
// before writing it.
func (s *service) UpdateEvent(ctx context.Context, userID int32, id int32, update *UpdateEventRequest) (*store.Event, error) {
	if update == nil {
		return nil, invalid("request", "missing")
	}
	existing, err := s.GetEvent(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	merged := *existing
	if update.Title != nil {
		merged.Title = *update.Title
	}
	if update.Description != nil {
		merged.Description = *update.Description
	}
	if update.Location != nil {
		merged.Location = *update.Location
	}
	if update.Color != nil {
		merged.Color = *update.Color
	}
	if update.Type != nil {
		merged.Type = *update.Type
	}
	if update.Start != nil {
		merged.StartTs = update.Start.Unix()
	}
	if update.End != nil {
		merged.EndTs = update.End.Unix()
	}
	if update.AllDay != nil {
		merged.AllDay = *update.AllDay
	}
	if update.Timezone != nil {
		merged.Timezone = *update.Timezone
	}
	if update.IsRecurring != nil {
		merged.IsRecurring = *update.IsRecurring
	}
	if update.RecurrencePattern != nil {
		merged.RecurrencePattern = *update.RecurrencePattern
	}
	if update.ClearRecurrenceEnd {
		merged.RecurrenceEndTs = nil
	} else if update.RecurrenceEnd != nil {
		ts := update.RecurrenceEnd.Unix()
		merged.RecurrenceEndTs = &ts
	}
	if err := s.normalizeEvent(&merged); err != nil {
		return nil, err
	}

	// updated_ts versions the row for sync, so it must grow on every edit.
	now := max(s.now().Unix(), existing.UpdatedTs+1)
	unsynced := false
	storeUpdate := &store.UpdateEvent{
		ID:                id,
		UpdatedTs:         &now,
		Title:             &merged.Title,
		Description:       &merged.Description,
		Location:          &merged.Location,
		Color:             &merged.Color,
		Type:              &merged.Type,
		StartTs:           &merged.StartTs,
		EndTs:             &merged.EndTs,
		AllDay:            &merged.AllDay,
		Timezone:          &merged.Timezone,
		IsRecurring:       &merged.IsRecurring,
		RecurrencePattern: &merged.RecurrencePattern,
		RecurrenceEndTs:   merged.RecurrenceEndTs,
		// A changed event has to be pushed again.
		IsSynced: &unsynced,
	}
	if merged.RecurrenceEndTs == nil {
		storeUpdate.ClearRecurrenceEnd = true
	}
	if err := s.store.UpdateEvent(ctx, storeUpdate); err != nil {
		return nil, fmt.Errorf("failed to update event: %w", err)
	}
	return s.GetEvent(ctx, userID, id)
}

func (s *service) DeleteEvent(ctx context.Context, userID int32, id int32) error {
	if _, err := s.GetEvent(ctx, userID, id); err != nil {
		return err
	}
	if err := s.store.DeleteEvent(ctx, &store.DeleteEvent{ID: id}); err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	return nil
}

// CheckConflicts returns the occurrences overlapping [start, end). Touching
// boundaries are not conflicts.
func (s *service) CheckConflicts(ctx context.Context, userID int32, start, end time.Time, excludeIDs []int32) ([]*recurrence.Instance, error) {
	if !end.After(start) {
		return nil, invalid("end", "must be after start")
	}
	list, err := s.ListEvents(ctx, userID, start, end)
	if err != nil {
		return nil, err
	}

	excluded := make(map[int32]bool, len(excludeIDs))
	for _, id := range excludeIDs {
		excluded[id] = true
	}

	conflicts := make([]*recurrence.Instance, 0)
	for _, instance := range list.Instances {
		if excluded[instance.ID] {
			continue
		}
		if availability.Overlaps(instance.StartDate, instance.EndDate, start, end) {
			conflicts = append(conflicts, instance)
		}
	}
	return conflicts, nil
}

func (s *service) ListUnsyncedEvents(ctx context.Context, userID int32) ([]*store.Event, error) {
	normal := store.Normal
	synced := false
	list, err := s.store.ListEvents(ctx, &store.FindEvent{
		CreatorID: &userID,
		RowStatus: &normal,
		IsSynced:  &synced,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list unsynced events: %w", err)
	}
	return list, nil
}

func (s *service) MarkEventSynced(ctx context.Context, userID int32, id int32, googleEventID string, pushedUpdatedTs int64) error {
	if googleEventID == "" {
		return invalid("google_event_id", "required")
	}
	if _, err := s.GetEvent(ctx, userID, id); err != nil {
		return err
	}
	synced := true
	err := s.store.UpdateEvent(ctx, &store.UpdateEvent{
		ID:                id,
		GoogleEventID:     &googleEventID,
		IsSynced:          &synced,
		ExpectedUpdatedTs: &pushedUpdatedTs,
	})
	if errors.Is(err, store.ErrEventChanged) {
		// Keep the remote id so the next push updates instead of inserting a copy.
		if err := s.store.UpdateEvent(ctx, &store.UpdateEvent{ID: id, GoogleEventID: &googleEventID}); err != nil {
			return fmt.Errorf("failed to record remote event id: %w", err)
		}
		return fmt.Errorf("event %d: %w", id, store.ErrEventChanged)
	}
	if err != nil {
		return fmt.Errorf("failed to mark event synced: %w", err)
	}
	return nil
}

func (s *service) CreateTask(ctx context.Context, userID int32, create *CreateTaskRequest) (*store.Task, error) {
	if create == nil {
		return nil, invalid("request", "missing")
	}
	task := &store.Task{
		CreatorID:      userID,
		Title:          strings.TrimSpace(create.Title),
		Description:    create.Description,
		Status:         create.Status,
		Priority:       create.Priority,
		EstimatedHours: create.EstimatedHours,
	}
	if task.Title == "" {
		return nil, invalid("title", "required")
	}
	if task.Status == "" {
		task.Status = store.TaskTodo
	}
	if !task.Status.IsValid() {
		return nil, invalid("status", "unknown status %q", task.Status)
	}
	if task.Priority == "" {
		task.Priority = store.PriorityMedium
	}
	if !task.Priority.IsValid() {
		return nil, invalid("priority", "unknown priority %q", task.Priority)
	}
	if create.EstimatedHours != nil && *create.EstimatedHours <= 0 {
		return nil, invalid("estimated_hours", "must be positive")
	}
	if create.Start != nil {
		ts := create.Start.Unix()
		task.StartTs = &ts
	}
	if create.Due != nil {
		ts := create.Due.Unix()
		task.DueTs = &ts
	}
	if task.StartTs != nil && task.DueTs != nil && *task.DueTs < *task.StartTs {
		return nil, invalid("due", "before start")
	}

	created, err := s.store.CreateTask(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	return created, nil
}

func (s *service) ListTasks(ctx context.Context, userID int32) ([]*store.Task, error) {
	normal := store.Normal
	list, err := s.store.ListTasks(ctx, &store.FindTask{CreatorID: &userID, RowStatus: &normal})
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return list, nil
}
