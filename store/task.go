package store

import (
	"context"
	"time"
)

// TaskStatus is the progress state of a task.
type TaskStatus string

const (
	TaskTodo       TaskStatus = "todo"
	TaskInProgress TaskStatus = "in_progress"
	TaskDone       TaskStatus = "done"
)

// TaskPriority ranks tasks.
type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
	PriorityUrgent TaskPriority = "urgent"
)

// Task is a unit of work. A task with both StartTs and DueTs occupies calendar time.
type Task struct {
	ID        int32
	CreatorID int32
	RowStatus RowStatus
	CreatedTs int64
	UpdatedTs int64

	Title          string
	Description    string
	Status         TaskStatus
	Priority       TaskPriority
	StartTs        *int64
	DueTs          *int64
	EstimatedHours *float64
}

// FindTask is the find condition for tasks.
type FindTask struct {
	ID        *int32
	CreatorID *int32
	RowStatus *RowStatus
	Status    *TaskStatus

	// Scheduled limits the result to tasks with both a start and a due date.
	Scheduled bool
	// Overlap window on [StartTs, DueTs].
	StartTs *int64
	EndTs   *int64

	Limit *int
}

// UpdateTask is the update request for tasks.
type UpdateTask struct {
	ID             int32
	UpdatedTs      *int64
	RowStatus      *RowStatus
	Title          *string
	Description    *string
	Status         *TaskStatus
	Priority       *TaskPriority
	StartTs        *int64
	DueTs          *int64
	EstimatedHours *float64
}

// DeleteTask is the delete request for tasks.
type DeleteTask struct {
	ID int32
}

// CreateTask creates a new task.
func (s *Store) CreateTask(ctx context.Context, create *Task) (*Task, error) {
	return s.driver.CreateTask(ctx, create)
}

// ListTasks lists tasks with filter.
func (s *Store) ListTasks(ctx context.Context, find *FindTask) ([]*Task, error) {
	return s.driver.ListTasks(ctx, find)
}

// GetTask gets the first task matching find, or nil.
func (s *Store) GetTask(ctx context.Context, find *FindTask) (*Task, error) {
	list, err := s.driver.ListTasks(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

// UpdateTask updates a task.
func (s *Store) UpdateTask(ctx context.Context, update *UpdateTask) error {
	return s.driver.UpdateTask(ctx, update)
}

// DeleteTask deletes a task.
func (s *Store) DeleteTask(ctx context.Context, delete *DeleteTask) error {
	return s.driver.DeleteTask(ctx, delete)
}

// Span returns the scheduled span of the task, when it has one.
func (t *Task) Span() (time.Time, time.Time, bool) {
	if t.StartTs == nil || t.DueTs == nil {
		return time.Time{}, time.Time{}, false
	}
	return time.Unix(*t.StartTs, 0), time.Unix(*t.DueTs, 0), true
}
