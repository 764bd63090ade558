package v1

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	apierrors "github.com/hrygo/chronoplan/server/internal/errors"
	"github.com/hrygo/chronoplan/server/service/calendar"
	"github.com/hrygo/chronoplan/store"
)

// Task is the JSON form of a stored task.
type Task struct {
	ID             int32      `json:"id"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	Status         string     `json:"status"`
	Priority       string     `json:"priority"`
	Start          *time.Time `json:"start,omitempty"`
	Due            *time.Time `json:"due,omitempty"`
	EstimatedHours *float64   `json:"estimated_hours,omitempty"`
}

func convertTaskFromStore(task *store.Task, loc *time.Location) *Task {
	result := &Task{
		ID:             task.ID,
		Title:          task.Title,
		Description:    task.Description,
		Status:         string(task.Status),
		Priority:       string(task.Priority),
		EstimatedHours: task.EstimatedHours,
	}
	if task.StartTs != nil {
		t := time.Unix(*task.StartTs, 0).In(loc)
		result.Start = &t
	}
	if task.DueTs != nil {
		t := time.Unix(*task.DueTs, 0).In(loc)
		result.Due = &t
	}
	return result
}

// ListTasksResponse is returned by GET /api/v1/tasks.
type ListTasksResponse struct {
	Tasks []*Task `json:"tasks"`
}

// ListTasks returns the user's tasks.
// GET /api/v1/tasks
func (s *APIV1Service) ListTasks(c echo.Context) error {
	tasks, err := s.Calendar.ListTasks(c.Request().Context(), currentUser(c))
	if err != nil {
		return respondError(c, err)
	}
	resp := ListTasksResponse{Tasks: make([]*Task, 0, len(tasks))}
	for _, task := range tasks {
		resp.Tasks = append(resp.Tasks, convertTaskFromStore(task, s.Calendar.Location()))
	}
	return c.JSON(http.StatusOK, resp)
}

// CreateTaskRequest is the body of POST /api/v1/tasks.
type CreateTaskRequest struct {
	Title          string     `json:"title" validate:"required,max=255"`
	Description    string     `json:"description"`
	Status         string     `json:"status" validate:"omitempty,oneof=todo in_progress done"`
	Priority       string     `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	Start          *time.Time `json:"start"`
	Due            *time.Time `json:"due"`
	EstimatedHours *float64   `json:"estimated_hours" validate:"omitempty,gt=0,lte=24"`
}

// CreateTask stores a task. Tasks with a start and a due date block calendar time.
// POST /api/v1/tasks
func (s *APIV1Service) CreateTask(c echo.Context) error {
	var req CreateTaskRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, apierrors.InvalidArgument("malformed request body"))
	}
	if err := c.Validate(&req); err != nil {
		return respondError(c, err)
	}
	task, err := s.Calendar.CreateTask(c.Request().Context(), currentUser(c), &calendar.CreateTaskRequest{
		Title:          req.Title,
		Description:    req.Description,
		Status:         store.TaskStatus(req.Status),
		Priority:       store.TaskPriority(req.Priority),
		Start:          req.Start,
		Due:            req.Due,
		EstimatedHours: req.EstimatedHours,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, convertTaskFromStore(task, s.Calendar.Location()))
}
