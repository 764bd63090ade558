package v1

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	apierrors "github.com/hrygo/chronoplan/server/internal/errors"
	"github.com/hrygo/chronoplan/server/scheduler/availability"
	"github.com/hrygo/chronoplan/server/scheduler/suggestion"
	"github.com/hrygo/chronoplan/server/service/calendar"
	"github.com/hrygo/chronoplan/store"
)

// AvailabilityResponse is returned by GET /api/v1/availability.
type AvailabilityResponse struct {
	Slots         []availability.Slot `json:"slots"`
	Start         time.Time           `json:"start"`
	End           time.Time           `json:"end"`
	Partial       bool                `json:"partial"`
	FailedSources []string            `json:"failed_sources,omitempty"`
}

// GetAvailability returns the free work-time slots of the user. Without start
// and end the configured horizon from now is searched. Unless best_effort is
// set, a failing busy source answers 503 BUSY_DATA_UNAVAILABLE.
// GET /api/v1/availability?start=&end=&min_hours=1&best_effort=false
func (s *APIV1Service) GetAvailability(c echo.Context) error {
	loc := s.Calendar.Location()
	start, err := queryTime(c, "start", loc)
	if err != nil {
		return respondError(c, err)
	}
	end, err := queryTime(c, "end", loc)
	if err != nil {
		return respondError(c, err)
	}
	if start.IsZero() != end.IsZero() {
		return respondError(c, apierrors.InvalidArgument("start and end must be given together"))
	}

	minDuration := time.Hour
	if v := c.QueryParam("min_hours"); v != "" {
		minHours, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return respondError(c, apierrors.InvalidArgument("min_hours must be a number").WithContext("field", "min_hours"))
		}
		if minDuration, err = availability.HoursToDuration(minHours); err != nil {
			return respondError(c, apierrors.InvalidArgument(err.Error()).WithContext("field", "min_hours"))
		}
	}
	bestEffort := false
	if v := c.QueryParam("best_effort"); v != "" {
		bestEffort, err = strconv.ParseBool(v)
		if err != nil {
			return respondError(c, apierrors.InvalidArgument("best_effort must be a boolean").WithContext("field", "best_effort"))
		}
	}

	resp, err := s.Calendar.FindAvailableSlots(c.Request().Context(), currentUser(c), &calendar.SlotRequest{
		Start:       start,
		End:         end,
		MinDuration: minDuration,
		BestEffort:  bestEffort,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, AvailabilityResponse{
		Slots:         resp.Slots,
		Start:         resp.Start,
		End:           resp.End,
		Partial:       resp.Partial,
		FailedSources: resp.FailedSources,
	})
}

// SuggestionRequest is the body of POST /api/v1/suggestions.
type SuggestionRequest struct {
	Title          string  `json:"title" validate:"required,max=255"`
	Description    string  `json:"description"`
	Priority       string  `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	Type           string  `json:"type"`
	EstimatedHours float64 `json:"estimated_hours" validate:"gte=0,lte=24"`
}

// CreateSuggestions ranks the free slots of the next horizon for a task.
// POST /api/v1/suggestions
func (s *APIV1Service) CreateSuggestions(c echo.Context) error {
	if s.Planner == nil {
		return respondError(c, apierrors.ServiceUnavailable("suggestions are not configured"))
	}
	var req SuggestionRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, apierrors.InvalidArgument("malformed request body"))
	}
	if err := c.Validate(&req); err != nil {
		return respondError(c, err)
	}

	result, err := s.Planner.Suggest(c.Request().Context(), currentUser(c), suggestion.TaskContext{
		Title:          req.Title,
		Description:    req.Description,
		Priority:       store.TaskPriority(req.Priority),
		Type:           req.Type,
		EstimatedHours: req.EstimatedHours,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}
