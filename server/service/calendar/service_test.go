package calendar

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/chronoplan/internal/util"
	"github.com/hrygo/chronoplan/plugin/gcal"
	"github.com/hrygo/chronoplan/plugin/ics"
	"github.com/hrygo/chronoplan/server/scheduler/availability"
	"github.com/hrygo/chronoplan/server/scheduler/recurrence"
	"github.com/hrygo/chronoplan/store"
)

// MockStoreForCalendar is a mock implementation of the Store interface for testing.
type MockStoreForCalendar struct {
	events []*store.Event
	tasks  []*store.Task
	nextID int32
	err    error
}

func (m *MockStoreForCalendar) CreateEvent(ctx context.Context, create *store.Event) (*store.Event, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.nextID++
	event := *create
	event.ID = 100 + m.nextID
	event.RowStatus = store.Normal
	m.events = append(m.events, &event)
	return &event, nil
}

func (m *MockStoreForCalendar) ListEvents(ctx context.Context, find *store.FindEvent) ([]*store.Event, error) {
	if m.err != nil {
		return nil, m.err
	}
	result := make([]*store.Event, 0)
	for _, event := range m.events {
		if find.ID != nil && event.ID != *find.ID {
			continue
		}
		if find.CreatorID != nil && event.CreatorID != *find.CreatorID {
			continue
		}
		if find.RowStatus != nil && event.RowStatus != *find.RowStatus {
			continue
		}
		if find.Title != nil && event.Title != *find.Title {
			continue
		}
		if find.IsRecurring != nil && event.IsRecurring != *find.IsRecurring {
			continue
		}
		if find.IsSynced != nil && event.IsSynced != *find.IsSynced {
			continue
		}
		// Same overlap rule as the SQL drivers.
		if find.EndTs != nil && event.StartTs >= *find.EndTs {
			continue
		}
		if find.StartTs != nil && event.EndTs <= *find.StartTs {
			continue
		}
		result = append(result, event)
	}
	return result, nil
}

func (m *MockStoreForCalendar) GetEvent(ctx context.Context, find *store.FindEvent) (*store.Event, error) {
	list, err := m.ListEvents(ctx, find)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	copied := *list[0]
	return &copied, nil
}

func (m *MockStoreForCalendar) UpdateEvent(ctx context.Context, update *store.UpdateEvent) error {
	for _, e := range m.events {
		if e.ID != update.ID {
			continue
		}
		if update.ExpectedUpdatedTs != nil && *update.ExpectedUpdatedTs != e.UpdatedTs {
			return store.ErrEventChanged
		}
		if update.UpdatedTs != nil {
			e.UpdatedTs = *update.UpdatedTs
		}
		if update.Title != nil {
			e.Title = *update.Title
		}
		if update.Description != nil {
			e.Description = *update.Description
		}
		if update.Location != nil {
			e.Location = *update.Location
		}
		if update.Type != nil {
			e.Type = *update.Type
		}
		if update.StartTs != nil {
			e.StartTs = *update.StartTs
		}
		if update.EndTs != nil {
			e.EndTs = *update.EndTs
		}
		if update.AllDay != nil {
			e.AllDay = *update.AllDay
		}
		if update.Timezone != nil {
			e.Timezone = *update.Timezone
		}
		if update.IsRecurring != nil {
			e.IsRecurring = *update.IsRecurring
		}
		if update.RecurrencePattern != nil {
			e.RecurrencePattern = *update.RecurrencePattern
		}
		if update.ClearRecurrenceEnd {
			e.RecurrenceEndTs = nil
		} else if update.RecurrenceEndTs != nil {
			v := *update.RecurrenceEndTs
			e.RecurrenceEndTs = &v
		}
		if update.GoogleEventID != nil {
			v := *update.GoogleEventID
			e.GoogleEventID = &v
		}
		if update.IsSynced != nil {
			e.IsSynced = *update.IsSynced
		}
		return nil
	}
	return nil
}

func (m *MockStoreForCalendar) DeleteEvent(ctx context.Context, delete *store.DeleteEvent) error {
	for i, e := range m.events {
		if e.ID == delete.ID {
			m.events = append(m.events[:i], m.events[i+1:]...)
			break
		}
	}
	return nil
}

func (m *MockStoreForCalendar) CreateTask(ctx context.Context, create *store.Task) (*store.Task, error) {
	m.nextID++
	task := *create
	task.ID = 100 + m.nextID
	task.RowStatus = store.Normal
	m.tasks = append(m.tasks, &task)
	return &task, nil
}

func (m *MockStoreForCalendar) ListTasks(ctx context.Context, find *store.FindTask) ([]*store.Task, error) {
	result := make([]*store.Task, 0)
	for _, task := range m.tasks {
		if find.CreatorID != nil && task.CreatorID != *find.CreatorID {
			continue
		}
		if find.RowStatus != nil && task.RowStatus != *find.RowStatus {
			continue
		}
		if find.Scheduled && (task.StartTs == nil || task.DueTs == nil) {
			continue
		}
		if find.EndTs != nil && (task.StartTs == nil || *task.StartTs >= *find.EndTs) {
			continue
		}
		if find.StartTs != nil && (task.DueTs == nil || *task.DueTs <= *find.StartTs) {
			continue
		}
		result = append(result, task)
	}
	return result, nil
}

type failingSource struct{}

func (failingSource) Name() string { return "broken" }

func (failingSource) ListBusy(ctx context.Context, userID int32, start, end time.Time) ([]availability.BusyInterval, error) {
	return nil, errors.New("connection refused")
}

type fakeRemote struct {
	events []*gcal.Event
	linked bool
}

func (f *fakeRemote) Connect(ctx context.Context, userID int32) (RemoteCalendar, error) {
	if !f.linked {
		return nil, nil
	}
	return f, nil
}

func (f *fakeRemote) ListEvents(ctx context.Context, timeMin, timeMax time.Time) ([]*gcal.Event, error) {
	return f.events, nil
}

func (f *fakeRemote) InsertEvent(ctx context.Context, event *gcal.Event) (*gcal.Event, error) {
	return event, nil
}

func (f *fakeRemote) UpdateEvent(ctx context.Context, id string, event *gcal.Event) (*gcal.Event, error) {
	return event, nil
}

const testUser = int32(1)

var testNow = time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)

func utc(month time.Month, day, hour, minute int) time.Time {
	return time.Date(2024, month, day, hour, minute, 0, 0, time.UTC)
}

func tsPtr(t time.Time) *int64 {
	ts := t.Unix()
	return &ts
}

func newTestService(t *testing.T, mockStore *MockStoreForCalendar, mutate ...func(*Options)) *service {
	t.Helper()
	opts := Options{
		Location: time.UTC,
		Now:      func() time.Time { return testNow },
	}
	for _, m := range mutate {
		m(&opts)
	}
	svc, err := NewService(mockStore, opts)
	require.NoError(t, err)
	return svc.(*service)
}

func weeklyStandup() *store.Event {
	return &store.Event{
		ID:                1,
		UID:               "standup",
		CreatorID:         testUser,
		RowStatus:         store.Normal,
		Title:             "Standup",
		Type:              store.EventTypeMeeting,
		StartTs:           utc(3, 4, 10, 0).Unix(),
		EndTs:             utc(3, 4, 11, 0).Unix(),
		Timezone:          "UTC",
		IsRecurring:       true,
		RecurrencePattern: "weekly",
		RecurrenceEndTs:   tsPtr(utc(3, 25, 0, 0)),
	}
}

func TestListEvents_WeeklySeries(t *testing.T) {
	ctx := context.Background()
	mockStore := &MockStoreForCalendar{events: []*store.Event{weeklyStandup()}}
	svc := newTestService(t, mockStore)

	list, err := svc.ListEvents(ctx, testUser, utc(3, 1, 0, 0), utc(4, 1, 0, 0))
	require.NoError(t, err)
	require.Len(t, list.Instances, 4)
	assert.False(t, list.Truncated)

	for i, day := range []int{4, 11, 18, 25} {
		instance := list.Instances[i]
		assert.Equal(t, utc(3, day, 10, 0), instance.StartDate.UTC())
		assert.Equal(t, time.Hour, instance.EndDate.Sub(instance.StartDate))
		assert.True(t, instance.IsRecurring)
		require.NotNil(t, instance.RecurrenceParentID)
		assert.Equal(t, int32(1), *instance.RecurrenceParentID)
	}
}

func TestListEvents_MergesAndOrders(t *testing.T) {
	ctx := context.Background()
	mockStore := &MockStoreForCalendar{events: []*store.Event{
		{
			ID: 1, CreatorID: testUser, RowStatus: store.Normal, Title: "Lunch",
			StartTs: utc(3, 4, 12, 0).Unix(), EndTs: utc(3, 4, 13, 0).Unix(),
			IsRecurring: true, RecurrencePattern: "daily",
		},
		{
			ID: 2, CreatorID: testUser, RowStatus: store.Normal, Title: "Dentist",
			StartTs: utc(3, 5, 9, 0).Unix(), EndTs: utc(3, 5, 10, 0).Unix(),
			RecurrencePattern: "none",
		},
		{
			ID: 3, CreatorID: testUser, RowStatus: store.Normal, Title: "Late deploy",
			StartTs: utc(3, 3, 23, 0).Unix(), EndTs: utc(3, 4, 1, 0).Unix(),
			RecurrencePattern: "none",
		},
		{
			ID: 4, CreatorID: 2, RowStatus: store.Normal, Title: "Someone else",
			StartTs: utc(3, 5, 9, 0).Unix(), EndTs: utc(3, 5, 10, 0).Unix(),
		},
		{
			ID: 5, CreatorID: testUser, RowStatus: store.Normal, Title: "Next week",
			StartTs: utc(3, 11, 9, 0).Unix(), EndTs: utc(3, 11, 10, 0).Unix(),
		},
	}}
	svc := newTestService(t, mockStore)

	list, err := svc.ListEvents(ctx, testUser, utc(3, 4, 0, 0), utc(3, 6, 0, 0))
	require.NoError(t, err)

	var titles []string
	for _, instance := range list.Instances {
		titles = append(titles, instance.Title)
	}
	assert.Equal(t, []string{"Late deploy", "Lunch", "Dentist", "Lunch"}, titles)
	assert.False(t, list.Instances[0].IsRecurring)
}

func TestListEvents_UnknownPatternIsSingle(t *testing.T) {
	ctx := context.Background()
	mockStore := &MockStoreForCalendar{events: []*store.Event{{
		ID: 1, CreatorID: testUser, RowStatus: store.Normal, Title: "Legacy",
		StartTs: utc(3, 4, 9, 0).Unix(), EndTs: utc(3, 4, 10, 0).Unix(),
		IsRecurring: true, RecurrencePattern: "fortnightly",
	}}}
	svc := newTestService(t, mockStore)

	list, err := svc.ListEvents(ctx, testUser, utc(3, 1, 0, 0), utc(4, 1, 0, 0))
	require.NoError(t, err)
	require.Len(t, list.Instances, 1)
	assert.False(t, list.Instances[0].IsRecurring)
}

func TestListEvents_Truncated(t *testing.T) {
	ctx := context.Background()
	mockStore := &MockStoreForCalendar{events: []*store.Event{{
		ID: 1, CreatorID: testUser, RowStatus: store.Normal, Title: "Pills",
		StartTs: utc(3, 1, 8, 0).Unix(), EndTs: utc(3, 1, 8, 5).Unix(),
		IsRecurring: true, RecurrencePattern: "daily",
	}}}
	svc := newTestService(t, mockStore, func(o *Options) {
		o.Recurrence = recurrence.Config{MaxInstances: 5}
	})

	list, err := svc.ListEvents(ctx, testUser, utc(3, 1, 0, 0), utc(4, 1, 0, 0))
	require.NoError(t, err)
	assert.True(t, list.Truncated)
	assert.Len(t, list.Instances, 5)
}

func TestListEvents_InvalidRange(t *testing.T) {
	svc := newTestService(t, &MockStoreForCalendar{})
	_, err := svc.ListEvents(context.Background(), testUser, utc(3, 2, 0, 0), utc(3, 1, 0, 0))
	assert.ErrorIs(t, err, recurrence.ErrInvalidRange)
}

func TestCreateEvent(t *testing.T) {
	ctx := context.Background()
	mockStore := &MockStoreForCalendar{}
	svc := newTestService(t, mockStore)

	end := utc(3, 1, 0, 0)
	created, err := svc.CreateEvent(ctx, testUser, &CreateEventRequest{
		Title:         "  Review  ",
		Start:         utc(3, 4, 14, 0),
		End:           utc(3, 4, 15, 0),
		RecurrenceEnd: &end,
	})
	require.NoError(t, err)
	assert.Equal(t, "Review", created.Title)
	assert.Equal(t, store.EventTypePersonal, created.Type)
	assert.Equal(t, "UTC", created.Timezone)
	assert.Equal(t, "none", created.RecurrencePattern)
	assert.Nil(t, created.RecurrenceEndTs)
	assert.True(t, util.IsUUID(created.UID))
	assert.Equal(t, testUser, created.CreatorID)
}

func TestCreateEvent_Validation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, &MockStoreForCalendar{})
	before := utc(3, 3, 0, 0)
	sameDay := utc(3, 4, 0, 0)

	tests := []struct {
		name  string
		req   CreateEventRequest
		field string
	}{
		{"missing title", CreateEventRequest{Title: " ", Start: utc(3, 4, 9, 0), End: utc(3, 4, 10, 0)}, "title"},
		{"end before start", CreateEventRequest{Title: "x", Start: utc(3, 4, 10, 0), End: utc(3, 4, 9, 0)}, "end"},
		{"unknown pattern", CreateEventRequest{Title: "x", Start: utc(3, 4, 9, 0), End: utc(3, 4, 10, 0), IsRecurring: true, RecurrencePattern: "hourly"}, "recurrence_pattern"},
		{"recurring without pattern", CreateEventRequest{Title: "x", Start: utc(3, 4, 9, 0), End: utc(3, 4, 10, 0), IsRecurring: true}, "recurrence_pattern"},
		{"series ends before start", CreateEventRequest{Title: "x", Start: utc(3, 4, 9, 0), End: utc(3, 4, 10, 0), IsRecurring: true, RecurrencePattern: "daily", RecurrenceEnd: &before}, "recurrence_end"},
		{"unknown type", CreateEventRequest{Title: "x", Type: "party", Start: utc(3, 4, 9, 0), End: utc(3, 4, 10, 0)}, "type"},
		{"unknown timezone", CreateEventRequest{Title: "x", Timezone: "Mars/Olympus", Start: utc(3, 4, 9, 0), End: utc(3, 4, 10, 0)}, "timezone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateEvent(ctx, testUser, &tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidInput)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
		})
	}

	// A series may end on the day it starts.
	_, err := svc.CreateEvent(ctx, testUser, &CreateEventRequest{
		Title: "x", Start: utc(3, 4, 9, 0), End: utc(3, 4, 10, 0),
		IsRecurring: true, RecurrencePattern: "daily", RecurrenceEnd: &sameDay,
	})
	assert.NoError(t, err)
}

func TestUpdateEvent(t *testing.T) {
	ctx := context.Background()
	existing := weeklyStandup()
	googleID := "google-1"
	existing.GoogleEventID = &googleID
	existing.IsSynced = true
	mockStore := &MockStoreForCalendar{events: []*store.Event{existing}}
	svc := newTestService(t, mockStore)

	title := "Daily standup"
	pattern := "daily"
	updated, err := svc.UpdateEvent(ctx, testUser, 1, &UpdateEventRequest{
		Title:              &title,
		RecurrencePattern:  &pattern,
		ClearRecurrenceEnd: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "Daily standup", updated.Title)
	assert.Equal(t, "daily", updated.RecurrencePattern)
	assert.Nil(t, updated.RecurrenceEndTs)
	assert.False(t, updated.IsSynced)

	bad := "monthlyish"
	_, err = svc.UpdateEvent(ctx, testUser, 1, &UpdateEventRequest{RecurrencePattern: &bad})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.UpdateEvent(ctx, testUser, 99, &UpdateEventRequest{Title: &title})
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestDeleteEvent(t *testing.T) {
	ctx := context.Background()
	mockStore := &MockStoreForCalendar{events: []*store.Event{weeklyStandup()}}
	svc := newTestService(t, mockStore)

	require.NoError(t, svc.DeleteEvent(ctx, testUser, 1))
	assert.Empty(t, mockStore.events)
	assert.ErrorIs(t, svc.DeleteEvent(ctx, testUser, 1), ErrEventNotFound)
	assert.ErrorIs(t, svc.DeleteEvent(ctx, 2, 1), ErrEventNotFound)
}

func TestCheckConflicts(t *testing.T) {
	ctx := context.Background()
	mockStore := &MockStoreForCalendar{events: []*store.Event{weeklyStandup()}}
	svc := newTestService(t, mockStore)

	conflicts, err := svc.CheckConflicts(ctx, testUser, utc(3, 11, 10, 30), utc(3, 11, 11, 30), nil)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, utc(3, 11, 10, 0), conflicts[0].StartDate.UTC())

	conflicts, err = svc.CheckConflicts(ctx, testUser, utc(3, 11, 11, 0), utc(3, 11, 12, 0), nil)
	require.NoError(t, err)
	assert.Empty(t, conflicts, "touching intervals do not conflict")

	conflicts, err = svc.CheckConflicts(ctx, testUser, utc(3, 11, 10, 30), utc(3, 11, 11, 30), []int32{1})
	require.NoError(t, err)
	assert.Empty(t, conflicts)

	_, err = svc.CheckConflicts(ctx, testUser, utc(3, 11, 10, 0), utc(3, 11, 10, 0), nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSyncBookkeeping(t *testing.T) {
	ctx := context.Background()
	mockStore := &MockStoreForCalendar{events: []*store.Event{weeklyStandup()}}
	svc := newTestService(t, mockStore)

	unsynced, err := svc.ListUnsyncedEvents(ctx, testUser)
	require.NoError(t, err)
	require.Len(t, unsynced, 1)

	require.NoError(t, svc.MarkEventSynced(ctx, testUser, 1, "google-9", unsynced[0].UpdatedTs))
	unsynced, err = svc.ListUnsyncedEvents(ctx, testUser)
	require.NoError(t, err)
	assert.Empty(t, unsynced)
	require.NotNil(t, mockStore.events[0].GoogleEventID)
	assert.Equal(t, "google-9", *mockStore.events[0].GoogleEventID)

	assert.ErrorIs(t, svc.MarkEventSynced(ctx, testUser, 1, "", 0), ErrInvalidInput)
}

func TestMarkEventSynced_EditedSincePush(t *testing.T) {
	ctx := context.Background()
	mockStore := &MockStoreForCalendar{events: []*store.Event{weeklyStandup()}}
	svc := newTestService(t, mockStore)

	pushed := mockStore.events[0].UpdatedTs
	title := "Standup (moved)"
	_, err := svc.UpdateEvent(ctx, testUser, 1, &UpdateEventRequest{Title: &title})
	require.NoError(t, err)
	assert.Greater(t, mockStore.events[0].UpdatedTs, pushed)

	err = svc.MarkEventSynced(ctx, testUser, 1, "google-9", pushed)
	assert.ErrorIs(t, err, store.ErrEventChanged)
	assert.False(t, mockStore.events[0].IsSynced)
	require.NotNil(t, mockStore.events[0].GoogleEventID)
	assert.Equal(t, "google-9", *mockStore.events[0].GoogleEventID)

	unsynced, err := svc.ListUnsyncedEvents(ctx, testUser)
	require.NoError(t, err)
	assert.Len(t, unsynced, 1)

	require.NoError(t, svc.MarkEventSynced(ctx, testUser, 1, "google-9", mockStore.events[0].UpdatedTs))
	assert.True(t, mockStore.events[0].IsSynced)
}

func TestCreateTask(t *testing.T) {
	ctx := context.Background()
	mockStore := &MockStoreForCalendar{}
	svc := newTestService(t, mockStore)

	start, due := utc(3, 5, 14, 0), utc(3, 5, 15, 0)
	task, err := svc.CreateTask(ctx, testUser, &CreateTaskRequest{Title: "Write report", Start: &start, Due: &due})
	require.NoError(t, err)
	assert.Equal(t, store.TaskTodo, task.Status)
	assert.Equal(t, store.PriorityMedium, task.Priority)

	_, err = svc.CreateTask(ctx, testUser, &CreateTaskRequest{Title: "Backwards", Start: &due, Due: &start})
	assert.ErrorIs(t, err, ErrInvalidInput)

	zero := 0.0
	_, err = svc.CreateTask(ctx, testUser, &CreateTaskRequest{Title: "Nothing", EstimatedHours: &zero})
	assert.ErrorIs(t, err, ErrInvalidInput)

	tasks, err := svc.ListTasks(ctx, testUser)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func busyDayStore() *MockStoreForCalendar {
	return &MockStoreForCalendar{
		events: []*store.Event{{
			ID: 1, CreatorID: testUser, RowStatus: store.Normal, Title: "Client call",
			StartTs: utc(3, 5, 10, 0).Unix(), EndTs: utc(3, 5, 11, 0).Unix(),
		}},
		tasks: []*store.Task{
			{
				ID: 2, CreatorID: testUser, RowStatus: store.Normal, Title: "Write report",
				Status: store.TaskInProgress, StartTs: tsPtr(utc(3, 5, 14, 0)), DueTs: tsPtr(utc(3, 5, 15, 0)),
			},
			{
				ID: 3, CreatorID: testUser, RowStatus: store.Normal, Title: "Finished",
				Status: store.TaskDone, StartTs: tsPtr(utc(3, 5, 16, 0)), DueTs: tsPtr(utc(3, 5, 17, 0)),
			},
			{
				ID: 4, CreatorID: testUser, RowStatus: store.Normal, Title: "Unscheduled",
				Status: store.TaskTodo,
			},
		},
	}
}

func TestFindAvailableSlots(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, busyDayStore())

	resp, err := svc.FindAvailableSlots(ctx, testUser, &SlotRequest{
		Start:       utc(3, 5, 0, 0),
		End:         utc(3, 5, 23, 59),
		MinDuration: time.Hour,
	})
	require.NoError(t, err)
	assert.False(t, resp.Partial)
	require.Len(t, resp.Slots, 3)

	expected := [][2]time.Time{
		{utc(3, 5, 9, 0), utc(3, 5, 10, 0)},
		{utc(3, 5, 11, 0), utc(3, 5, 14, 0)},
		{utc(3, 5, 15, 0), utc(3, 5, 18, 0)},
	}
	for i, want := range expected {
		assert.True(t, resp.Slots[i].Start.Equal(want[0]), "slot %d start %s", i, resp.Slots[i].Start)
		assert.True(t, resp.Slots[i].End.Equal(want[1]), "slot %d end %s", i, resp.Slots[i].End)
	}
}

func TestFindAvailableSlots_DefaultHorizon(t *testing.T) {
	svc := newTestService(t, &MockStoreForCalendar{})

	resp, err := svc.FindAvailableSlots(context.Background(), testUser, &SlotRequest{MinDuration: time.Hour})
	require.NoError(t, err)
	assert.Equal(t, testNow, resp.Start)
	assert.Equal(t, testNow.AddDate(0, 0, availability.DefaultHorizonDays), resp.End)
	// Ten work days, each one free slot.
	assert.Len(t, resp.Slots, 10)
}

func TestFindAvailableSlots_Errors(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, &MockStoreForCalendar{})

	_, err := svc.FindAvailableSlots(ctx, testUser, &SlotRequest{Start: utc(3, 5, 0, 0), End: utc(3, 6, 0, 0)})
	assert.ErrorIs(t, err, availability.ErrInvalidDuration)

	_, err = svc.FindAvailableSlots(ctx, testUser, &SlotRequest{Start: utc(3, 6, 0, 0), End: utc(3, 5, 0, 0), MinDuration: time.Hour})
	assert.ErrorIs(t, err, availability.ErrInvalidRange)

	_, err = svc.FindAvailableSlots(ctx, testUser, &SlotRequest{
		Start:       utc(3, 5, 0, 0),
		End:         time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC),
		MinDuration: time.Hour,
	})
	assert.ErrorIs(t, err, availability.ErrRangeTooWide)
}

func TestFindAvailableSlots_SourceFailure(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, busyDayStore())
	svc.sources = append(svc.sources, failingSource{})

	req := &SlotRequest{Start: utc(3, 5, 0, 0), End: utc(3, 5, 23, 59), MinDuration: time.Hour}
	_, err := svc.FindAvailableSlots(ctx, testUser, req)
	assert.ErrorIs(t, err, ErrBusyDataUnavailable)
	var busyErr *BusyDataError
	require.ErrorAs(t, err, &busyErr)
	assert.Equal(t, []string{"broken"}, busyErr.FailedSources)

	req.BestEffort = true
	resp, err := svc.FindAvailableSlots(ctx, testUser, req)
	require.NoError(t, err)
	assert.True(t, resp.Partial)
	assert.Equal(t, []string{"broken"}, resp.FailedSources)
	assert.Len(t, resp.Slots, 3)
}

func TestGatherBusy(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{
		linked: true,
		events: []*gcal.Event{
			{ID: "a", Summary: "Flight", Start: gcal.EventTime{DateTime: "2024-03-05T12:00:00Z"}, End: gcal.EventTime{DateTime: "2024-03-05T13:00:00Z"}},
			{ID: "b", Summary: "Free", Transparency: "transparent", Start: gcal.EventTime{DateTime: "2024-03-05T16:00:00Z"}, End: gcal.EventTime{DateTime: "2024-03-05T17:00:00Z"}},
			{ID: "c", Summary: "Broken", Start: gcal.EventTime{DateTime: "2024-03-05T16:00:00Z"}},
		},
	}
	svc := newTestService(t, busyDayStore(), func(o *Options) { o.Remote = remote })

	report := svc.GatherBusy(ctx, testUser, utc(3, 5, 0, 0), utc(3, 6, 0, 0))
	assert.False(t, report.Partial())
	require.Len(t, report.Results(), 3)
	for _, result := range report.Results() {
		assert.True(t, result.Result.IsOk(), result.Name)
	}

	intervals, err := report.Intervals().Get()
	require.NoError(t, err)
	require.Len(t, intervals, 3)
	assert.Equal(t, availability.SourceEvent, intervals[0].Source)
	assert.Equal(t, availability.SourceGoogle, intervals[1].Source)
	assert.Equal(t, "Flight", intervals[1].Title)
	assert.Equal(t, availability.SourceTask, intervals[2].Source)

	remote.linked = false
	report = svc.GatherBusy(ctx, testUser, utc(3, 5, 0, 0), utc(3, 6, 0, 0))
	intervals, err = report.Intervals().Get()
	require.NoError(t, err)
	assert.Len(t, intervals, 2)
}

func TestImportEvents_Strategies(t *testing.T) {
	ctx := context.Background()

	imported := func() []*ImportEvent {
		return []*ImportEvent{
			{Title: "Standup", Location: "Room 2", Start: utc(3, 4, 10, 30), End: utc(3, 4, 11, 0)},
			{Title: "Standup", Start: utc(3, 4, 14, 0), End: utc(3, 4, 15, 0)},
			{Title: "", Start: utc(3, 4, 9, 0), End: utc(3, 4, 10, 0)},
		}
	}

	tests := []struct {
		strategy ConflictStrategy
		imported int
		skipped  int
		events   int
	}{
		{StrategySkip, 1, 1, 2},
		{StrategyOverwrite, 2, 0, 2},
		{StrategyCreateNew, 2, 0, 3},
	}

	for _, tt := range tests {
		t.Run(string(tt.strategy), func(t *testing.T) {
			mockStore := &MockStoreForCalendar{events: []*store.Event{weeklyStandup()}}
			svc := newTestService(t, mockStore)

			summary, err := svc.ImportEvents(ctx, testUser, imported(), tt.strategy)
			require.NoError(t, err)
			assert.Equal(t, 3, summary.Total)
			assert.Equal(t, tt.imported, summary.Imported)
			assert.Equal(t, tt.skipped, summary.Skipped)
			assert.Equal(t, 1, summary.Errors)
			assert.Len(t, mockStore.events, tt.events)
			assert.NotEmpty(t, summary.Results[2].Error)

			if tt.strategy == StrategyOverwrite {
				assert.Equal(t, "Room 2", mockStore.events[0].Location)
				assert.Equal(t, utc(3, 4, 10, 30).Unix(), mockStore.events[0].StartTs)
				assert.False(t, mockStore.events[0].IsRecurring)
			}
		})
	}

	svc := newTestService(t, &MockStoreForCalendar{})
	_, err := svc.ImportEvents(ctx, testUser, nil, "merge")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestParseConflictStrategy(t *testing.T) {
	strategy, err := ParseConflictStrategy("")
	require.NoError(t, err)
	assert.Equal(t, StrategySkip, strategy)

	strategy, err = ParseConflictStrategy("Create_New")
	require.NoError(t, err)
	assert.Equal(t, StrategyCreateNew, strategy)

	_, err = ParseConflictStrategy("merge")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestImportICS(t *testing.T) {
	ctx := context.Background()
	mockStore := &MockStoreForCalendar{}
	svc := newTestService(t, mockStore)

	body := strings.Join([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//test//EN",
		"BEGIN:VEVENT",
		"UID:retro",
		"DTSTAMP:20240301T000000Z",
		"SUMMARY:Retro",
		"DTSTART:20240304T093000Z",
		"DTEND:20240304T103000Z",
		"RRULE:FREQ=WEEKLY;COUNT=3",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:ping",
		"DTSTAMP:20240301T000000Z",
		"SUMMARY:Ping",
		"DTSTART:20240304T120000Z",
		"DTEND:20240304T121500Z",
		"RRULE:FREQ=HOURLY",
		"END:VEVENT",
		"END:VCALENDAR",
		"",
	}, "\r\n")

	summary, err := svc.ImportICS(ctx, testUser, []byte(body), StrategySkip)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Imported)
	require.Len(t, mockStore.events, 2)

	retro := mockStore.events[0]
	assert.True(t, retro.IsRecurring)
	assert.Equal(t, "weekly", retro.RecurrencePattern)
	require.NotNil(t, retro.RecurrenceEndTs)
	assert.Equal(t, utc(3, 18, 9, 30).Unix(), *retro.RecurrenceEndTs)

	ping := mockStore.events[1]
	assert.False(t, ping.IsRecurring)
	assert.Equal(t, "none", ping.RecurrencePattern)

	list, err := svc.ListEvents(ctx, testUser, utc(3, 1, 0, 0), utc(4, 1, 0, 0))
	require.NoError(t, err)
	assert.Len(t, list.Instances, 4)

	_, err = svc.ImportICS(ctx, testUser, nil, StrategySkip)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestExportICS(t *testing.T) {
	ctx := context.Background()
	single := &store.Event{
		ID: 2, UID: "offsite", CreatorID: testUser, RowStatus: store.Normal, Title: "Offsite",
		StartTs: utc(3, 8, 0, 0).Unix(), EndTs: utc(3, 9, 0, 0).Unix(), AllDay: true,
	}
	mockStore := &MockStoreForCalendar{events: []*store.Event{weeklyStandup(), single}}
	svc := newTestService(t, mockStore)

	var buf bytes.Buffer
	require.NoError(t, svc.ExportICS(ctx, testUser, &buf))

	events, err := ics.Parse(buf.Bytes(), time.UTC)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, "standup", events[0].UID)
	assert.Contains(t, events[0].RRule, "FREQ=WEEKLY")
	assert.Contains(t, events[0].RRule, "UNTIL=20240325T235959Z")
	assert.True(t, events[0].Start.Equal(utc(3, 4, 10, 0)))

	assert.True(t, events[1].AllDay)
	assert.Empty(t, events[1].RRule)
}
