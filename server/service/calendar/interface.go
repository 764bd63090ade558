package calendar

import (
	"context"
	"io"
	"time"

	"github.com/hrygo/chronoplan/server/scheduler/availability"
	"github.com/hrygo/chronoplan/server/scheduler/recurrence"
	"github.com/hrygo/chronoplan/store"
)

// Service defines the calendar business logic used by the API, the CLI and
// the sync runner.
type Service interface {
	// ListEvents returns the occurrences overlapping [start, end), with
	// recurring definitions expanded.
	ListEvents(ctx context.Context, userID int32, start, end time.Time) (*EventList, error)

	// GetEvent returns one stored definition owned by userID.
	GetEvent(ctx context.Context, userID int32, id int32) (*store.Event, error)

	// CreateEvent validates and stores a new definition.
	CreateEvent(ctx context.Context, userID int32, create *CreateEventRequest) (*store.Event, error)

	// UpdateEvent applies a partial update and re-validates the merged definition.
	UpdateEvent(ctx context.Context, userID int32, id int32, update *UpdateEventRequest) (*store.Event, error)

	// DeleteEvent deletes a definition and with it every occurrence.
	DeleteEvent(ctx context.Context, userID int32, id int32) error

	// CheckConflicts returns occurrences overlapping [start, end), ignoring excludeIDs.
	CheckConflicts(ctx context.Context, userID int32, start, end time.Time, excludeIDs []int32) ([]*recurrence.Instance, error)

	// ListUnsyncedEvents returns definitions not yet pushed to the linked remote calendar.
	ListUnsyncedEvents(ctx context.Context, userID int32) ([]*store.Event, error)

	// MarkEventSynced records the remote id of a pushed definition. pushedUpdatedTs is the
	// updated_ts of the pushed copy; if the event changed since, only the remote id is
	// kept and store.ErrEventChanged is returned so the next run pushes it again.
	MarkEventSynced(ctx context.Context, userID int32, id int32, googleEventID string, pushedUpdatedTs int64) error

	// CreateTask stores a task. Tasks with a start and a due date occupy time.
	CreateTask(ctx context.Context, userID int32, create *CreateTaskRequest) (*store.Task, error)

	// ListTasks returns the user's tasks.
	ListTasks(ctx context.Context, userID int32) ([]*store.Task, error)

	// GatherBusy collects busy intervals from every source concurrently.
	GatherBusy(ctx context.Context, userID int32, start, end time.Time) *BusyReport

	// FindAvailableSlots returns the free work-time slots of the user.
	FindAvailableSlots(ctx context.Context, userID int32, req *SlotRequest) (*SlotResponse, error)

	// ImportEvents stores events resolving duplicates with strategy.
	ImportEvents(ctx context.Context, userID int32, events []*ImportEvent, strategy ConflictStrategy) (*ImportSummary, error)

	// ImportICS parses an iCalendar payload and imports its events.
	ImportICS(ctx context.Context, userID int32, body []byte, strategy ConflictStrategy) (*ImportSummary, error)

	// ExportICS writes every definition of the user as an iCalendar payload.
	ExportICS(ctx context.Context, userID int32, w io.Writer) error

	// Location is the zone used for date-only values and the work schedule.
	Location() *time.Location
}

// EventList is the result of ListEvents.
type EventList struct {
	Instances []*recurrence.Instance
	// Truncated is set when at least one series hit the expansion cap.
	Truncated bool
}

// CreateEventRequest represents the request to create an event.
type CreateEventRequest struct {
	Title             string
	Description       string
	Location          string
	Color             string
	Type              store.EventType
	Start             time.Time
	End               time.Time
	AllDay            bool
	Timezone          string
	IsRecurring       bool
	RecurrencePattern string
	RecurrenceEnd     *time.Time
}

// UpdateEventRequest represents the request to update an event.
type UpdateEventRequest struct {
	Title             *string
	Description       *string
	Location          *string
	Color             *string
	Type              *store.EventType
	Start             *time.Time
	End               *time.Time
	AllDay            *bool
	Timezone          *string
	IsRecurring       *bool
	RecurrencePattern *string
	RecurrenceEnd     *time.Time
	// ClearRecurrenceEnd removes the series end date.
	ClearRecurrenceEnd bool
}

// CreateTaskRequest represents the request to create a task.
type CreateTaskRequest struct {
	Title          string
	Description    string
	Status         store.TaskStatus
	Priority       store.TaskPriority
	Start          *time.Time
	Due            *time.Time
	EstimatedHours *float64
}

// SlotRequest represents a free-slot search.
type SlotRequest struct {
	// Start and End bound the search. Zero values use the configured horizon from now.
	Start time.Time
	End   time.Time
	// MinDuration is the shortest slot returned.
	MinDuration time.Duration
	// BestEffort searches with the busy data that could be gathered when a source fails.
	BestEffort bool
}

// SlotResponse is the result of FindAvailableSlots.
type SlotResponse struct {
	Slots []availability.Slot
	Start time.Time
	End   time.Time
	// Partial is set when BestEffort was requested and a source failed.
	Partial       bool
	FailedSources []string
}
