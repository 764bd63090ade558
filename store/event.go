package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// ErrEventChanged is returned by a versioned update when the row was modified after it was read.
var ErrEventChanged = errors.New("event changed since it was read")

// EventType classifies calendar events.
type EventType string

const (
	EventTypePersonal     EventType = "personal"
	EventTypeProfessional EventType = "professional"
	EventTypeMeeting      EventType = "meeting"
	EventTypeReminder     EventType = "reminder"
)

// IsValid reports whether t is a known event type.
func (t EventType) IsValid() bool {
	switch t {
	case EventTypePersonal, EventTypeProfessional, EventTypeMeeting, EventTypeReminder:
		return true
	}
	return false
}

// Event is the stored definition of a calendar event. Recurring events are
// stored once and expanded on read.
type Event struct {
	ID        int32
	UID       string
	CreatorID int32
	RowStatus RowStatus
	CreatedTs int64
	UpdatedTs int64

	Title       string
	Description string
	Location    string
	Color       string
	Type        EventType
	StartTs     int64
	EndTs       int64
	AllDay      bool
	Timezone    string

	IsRecurring       bool
	RecurrencePattern string
	RecurrenceEndTs   *int64

	// GoogleEventID is set once the event has been pushed to the linked remote calendar.
	GoogleEventID *string
	IsSynced      bool
}

// FindEvent is the find condition for events.
type FindEvent struct {
	ID        *int32
	UID       *string
	CreatorID *int32
	RowStatus *RowStatus
	Title     *string

	// Overlap window. An event matches when it starts before EndTs and ends after StartTs.
	StartTs *int64
	EndTs   *int64

	IsRecurring *bool
	IsSynced    *bool

	Limit  *int
	Offset *int
}

// UpdateEvent is the update request for events.
type UpdateEvent struct {
	ID                int32
	UpdatedTs         *int64
	RowStatus         *RowStatus
	Title             *string
	Description       *string
	Location          *string
	Color             *string
	Type              *EventType
	StartTs           *int64
	EndTs             *int64
	AllDay            *bool
	Timezone          *string
	IsRecurring       *bool
	RecurrencePattern *string
	RecurrenceEndTs   *int64
	// ClearRecurrenceEnd removes the series end date.
	ClearRecurrenceEnd bool
	GoogleEventID      *string
	IsSynced           *bool

	// ExpectedUpdatedTs applies the update only while updated_ts still holds this
	// value; otherwise nothing is written and ErrEventChanged is returned.
	ExpectedUpdatedTs *int64
}

// DeleteEvent is the delete request for events.
type DeleteEvent struct {
	ID int32
}

// CreateEvent creates a new event.
func (s *Store) CreateEvent(ctx context.Context, create *Event) (*Event, error) {
	return s.driver.CreateEvent(ctx, create)
}

// ListEvents lists events with filter.
func (s *Store) ListEvents(ctx context.Context, find *FindEvent) ([]*Event, error) {
	return s.driver.ListEvents(ctx, find)
}

// GetEvent gets the first event matching find, or nil.
func (s *Store) GetEvent(ctx context.Context, find *FindEvent) (*Event, error) {
	list, err := s.driver.ListEvents(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

// UpdateEvent updates an event.
func (s *Store) UpdateEvent(ctx context.Context, update *UpdateEvent) error {
	return s.driver.UpdateEvent(ctx, update)
}

// DeleteEvent deletes an event.
func (s *Store) DeleteEvent(ctx context.Context, delete *DeleteEvent) error {
	return s.driver.DeleteEvent(ctx, delete)
}

// StartTime returns the event start as time.Time.
func (e *Event) StartTime() time.Time {
	return time.Unix(e.StartTs, 0)
}

// EndTime returns the event end as time.Time.
func (e *Event) EndTime() time.Time {
	return time.Unix(e.EndTs, 0)
}

// RecurrenceEndTime returns the series end date, if any.
func (e *Event) RecurrenceEndTime() *time.Time {
	if e.RecurrenceEndTs == nil {
		return nil
	}
	t := time.Unix(*e.RecurrenceEndTs, 0)
	return &t
}
