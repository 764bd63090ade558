package v1

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	apierrors "github.com/hrygo/chronoplan/server/internal/errors"
	"github.com/hrygo/chronoplan/server/scheduler/recurrence"
	"github.com/hrygo/chronoplan/server/service/calendar"
	"github.com/hrygo/chronoplan/server/timezone"
	"github.com/hrygo/chronoplan/store"
)

// maxImportBytes bounds the size of an import body.
const maxImportBytes = 5 << 20

// Event is the JSON form of a stored definition.
type Event struct {
	ID                int32     `json:"id"`
	UID               string    `json:"uid"`
	Title             string    `json:"title"`
	Description       string    `json:"description,omitempty"`
	Location          string    `json:"location,omitempty"`
	Color             string    `json:"color,omitempty"`
	Type              string    `json:"type"`
	Start             time.Time `json:"start"`
	End               time.Time `json:"end"`
	AllDay            bool      `json:"all_day"`
	Timezone          string    `json:"timezone"`
	IsRecurring       bool      `json:"is_recurring"`
	RecurrencePattern string    `json:"recurrence_pattern"`
	RecurrenceEnd     string    `json:"recurrence_end,omitempty"`
	GoogleEventID     string    `json:"google_event_id,omitempty"`
	IsSynced          bool      `json:"is_synced"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func convertEventFromStore(event *store.Event, fallback *time.Location) *Event {
	loc := timezone.Resolve(event.Timezone, fallback)
	result := &Event{
		ID:                event.ID,
		UID:               event.UID,
		Title:             event.Title,
		Description:       event.Description,
		Location:          event.Location,
		Color:             event.Color,
		Type:              string(event.Type),
		Start:             event.StartTime().In(loc),
		End:               event.EndTime().In(loc),
		AllDay:            event.AllDay,
		Timezone:          event.Timezone,
		IsRecurring:       event.IsRecurring,
		RecurrencePattern: event.RecurrencePattern,
		IsSynced:          event.IsSynced,
		CreatedAt:         time.Unix(event.CreatedTs, 0).UTC(),
		UpdatedAt:         time.Unix(event.UpdatedTs, 0).UTC(),
	}
	if until := event.RecurrenceEndTime(); until != nil {
		result.RecurrenceEnd = until.In(loc).Format(dateLayout)
	}
	if event.GoogleEventID != nil {
		result.GoogleEventID = *event.GoogleEventID
	}
	return result
}

// Occurrence is the JSON form of an expanded instance.
type Occurrence struct {
	ID                 int32     `json:"id"`
	UID                string    `json:"uid"`
	InstanceKey        string    `json:"instance_key"`
	Title              string    `json:"title"`
	Description        string    `json:"description,omitempty"`
	Location           string    `json:"location,omitempty"`
	Color              string    `json:"color,omitempty"`
	Type               string    `json:"type"`
	Start              time.Time `json:"start"`
	End                time.Time `json:"end"`
	AllDay             bool      `json:"all_day"`
	IsRecurring        bool      `json:"is_recurring"`
	RecurrencePattern  string    `json:"recurrence_pattern"`
	RecurrenceParentID *int32    `json:"recurrence_parent_id,omitempty"`
}

func convertOccurrences(instances []*recurrence.Instance) []*Occurrence {
	result := make([]*Occurrence, 0, len(instances))
	for _, instance := range instances {
		result = append(result, &Occurrence{
			ID:                 instance.ID,
			UID:                instance.UID,
			InstanceKey:        instance.InstanceKey,
			Title:              instance.Title,
			Description:        instance.Description,
			Location:           instance.Location,
			Color:              instance.Color,
			Type:               instance.Type,
			Start:              instance.StartDate,
			End:                instance.EndDate,
			AllDay:             instance.AllDay,
			IsRecurring:        instance.IsRecurring,
			RecurrencePattern:  instance.Pattern.String(),
			RecurrenceParentID: instance.RecurrenceParentID,
		})
	}
	return result
}

// ListEventsResponse is returned by GET /api/v1/events.
type ListEventsResponse struct {
	Events    []*Occurrence `json:"events"`
	Truncated bool          `json:"truncated"`
}

// ListEvents returns the occurrences overlapping the requested window.
// GET /api/v1/events?start=&end=
func (s *APIV1Service) ListEvents(c echo.Context) error {
	start, end, err := requiredRange(c, s.Calendar.Location())
	if err != nil {
		return respondError(c, err)
	}
	list, err := s.Calendar.ListEvents(c.Request().Context(), currentUser(c), start, end)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, ListEventsResponse{
		Events:    convertOccurrences(list.Instances),
		Truncated: list.Truncated,
	})
}

// GetEvent returns one stored definition.
// GET /api/v1/events/:id
func (s *APIV1Service) GetEvent(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return respondError(c, err)
	}
	event, err := s.Calendar.GetEvent(c.Request().Context(), currentUser(c), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, convertEventFromStore(event, s.Calendar.Location()))
}

// CreateEventRequest is the body of POST /api/v1/events.
type CreateEventRequest struct {
	Title             string    `json:"title" validate:"required,max=255"`
	Description       string    `json:"description"`
	Location          string    `json:"location" validate:"max=255"`
	Color             string    `json:"color" validate:"max=32"`
	Type              string    `json:"type" validate:"omitempty,oneof=personal professional meeting reminder"`
	Start             time.Time `json:"start" validate:"required"`
	End               time.Time `json:"end" validate:"required"`
	AllDay            bool      `json:"all_day"`
	Timezone          string    `json:"timezone" validate:"omitempty,timezone"`
	IsRecurring       bool      `json:"is_recurring"`
	RecurrencePattern string    `json:"recurrence_pattern"`
	// RecurrenceEnd is a date (YYYY-MM-DD) or an RFC 3339 time.
	RecurrenceEnd string `json:"recurrence_end"`
}

// CreateEvent stores a new definition.
// POST /api/v1/events
func (s *APIV1Service) CreateEvent(c echo.Context) error {
	var req CreateEventRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, apierrors.InvalidArgument("malformed request body"))
	}
	if err := c.Validate(&req); err != nil {
		return respondError(c, err)
	}

	create := &calendar.CreateEventRequest{
		Title:             req.Title,
		Description:       req.Description,
		Location:          req.Location,
		Color:             req.Color,
		Type:              store.EventType(req.Type),
		Start:             req.Start,
		End:               req.End,
		AllDay:            req.AllDay,
		Timezone:          req.Timezone,
		IsRecurring:       req.IsRecurring,
		RecurrencePattern: req.RecurrencePattern,
	}
	if req.RecurrenceEnd != "" {
		until, err := parseTime(req.RecurrenceEnd, timezone.Resolve(req.Timezone, s.Calendar.Location()))
		if err != nil {
			return respondError(c, apierrors.InvalidArgument(err.Error()).WithContext("field", "recurrence_end"))
		}
		create.RecurrenceEnd = &until
	}

	event, err := s.Calendar.CreateEvent(c.Request().Context(), currentUser(c), create)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, convertEventFromStore(event, s.Calendar.Location()))
}

// UpdateEventRequest is the body of PATCH /api/v1/events/:id. Absent fields are kept.
type UpdateEventRequest struct {
	Title             *string    `json:"title"`
	Description       *string    `json:"description"`
	Location          *string    `json:"location"`
	Color             *string    `json:"color"`
	Type              *string    `json:"type"`
	Start             *time.Time `json:"start"`
	End               *time.Time `json:"end"`
	AllDay            *bool      `json:"all_day"`
	Timezone          *string    `json:"timezone"`
	IsRecurring       *bool      `json:"is_recurring"`
	RecurrencePattern *string    `json:"recurrence_pattern"`
	// RecurrenceEnd set to "" removes the series end.
	RecurrenceEnd *string `json:"recurrence_end"`
}

// UpdateEvent applies a partial update to a definition.
// PATCH /api/v1/events/:id
func (s *APIV1Service) UpdateEvent(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return respondError(c, err)
	}
	var req UpdateEventRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, apierrors.InvalidArgument("malformed request body"))
	}
	if req.Timezone != nil && *req.Timezone != "" && !timezone.IsValidTimezone(*req.Timezone) {
		return respondError(c, apierrors.InvalidArgument("timezone must be an IANA time zone").WithContext("field", "timezone"))
	}

	update := &calendar.UpdateEventRequest{
		Title:             req.Title,
		Description:       req.Description,
		Location:          req.Location,
		Color:             req.Color,
		Start:             req.Start,
		End:               req.End,
		AllDay:            req.AllDay,
		Timezone:          req.Timezone,
		IsRecurring:       req.IsRecurring,
		RecurrencePattern: req.RecurrencePattern,
	}
	if req.Type != nil {
		eventType := store.EventType(*req.Type)
		update.Type = &eventType
	}
	if req.RecurrenceEnd != nil {
		if *req.RecurrenceEnd == "" {
			update.ClearRecurrenceEnd = true
		} else {
			// A date-only end belongs to the event's own zone unless the update moves it.
			var tz string
			if req.Timezone != nil {
				tz = *req.Timezone
			} else {
				existing, err := s.Calendar.GetEvent(c.Request().Context(), currentUser(c), id)
				if err != nil {
					return respondError(c, err)
				}
				tz = existing.Timezone
			}
			until, err := parseTime(*req.RecurrenceEnd, timezone.Resolve(tz, s.Calendar.Location()))
			if err != nil {
				return respondError(c, apierrors.InvalidArgument(err.Error()).WithContext("field", "recurrence_end"))
			}
			update.RecurrenceEnd = &until
		}
	}

	event, err := s.Calendar.UpdateEvent(c.Request().Context(), currentUser(c), id, update)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, convertEventFromStore(event, s.Calendar.Location()))
}

// DeleteEvent deletes a definition and all of its occurrences.
// DELETE /api/v1/events/:id
func (s *APIV1Service) DeleteEvent(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return respondError(c, err)
	}
	if err := s.Calendar.DeleteEvent(c.Request().Context(), currentUser(c), id); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ConflictsResponse is returned by GET /api/v1/events/conflicts.
type ConflictsResponse struct {
	Conflicts []*Occurrence `json:"conflicts"`
}

// CheckConflicts lists the occurrences overlapping a proposed time range.
// GET /api/v1/events/conflicts?start=&end=&exclude=1,2
func (s *APIV1Service) CheckConflicts(c echo.Context) error {
	start, end, err := requiredRange(c, s.Calendar.Location())
	if err != nil {
		return respondError(c, err)
	}
	exclude, err := parseIDs(c.QueryParam("exclude"))
	if err != nil {
		return respondError(c, err)
	}
	conflicts, err := s.Calendar.CheckConflicts(c.Request().Context(), currentUser(c), start, end, exclude)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, ConflictsResponse{Conflicts: convertOccurrences(conflicts)})
}

// ImportEventJSON is one event of a JSON import.
type ImportEventJSON struct {
	Title             string    `json:"title"`
	Description       string    `json:"description"`
	Location          string    `json:"location"`
	Type              string    `json:"type"`
	Start             time.Time `json:"start"`
	End               time.Time `json:"end"`
	AllDay            bool      `json:"all_day"`
	IsRecurring       bool      `json:"is_recurring"`
	RecurrencePattern string    `json:"recurrence_pattern"`
	RecurrenceEnd     string    `json:"recurrence_end"`
}

// ImportRequest is the JSON body of POST /api/v1/events/import.
type ImportRequest struct {
	Events []*ImportEventJSON `json:"events"`
}

// ImportResultJSON is the outcome of one imported event.
type ImportResultJSON struct {
	Title   string `json:"title"`
	EventID int32  `json:"event_id,omitempty"`
	Skipped bool   `json:"skipped,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ImportResponse is returned by POST /api/v1/events/import.
type ImportResponse struct {
	Total    int                 `json:"total"`
	Imported int                 `json:"imported"`
	Skipped  int                 `json:"skipped"`
	Errors   int                 `json:"errors"`
	Results  []*ImportResultJSON `json:"results"`
}

// ImportEvents imports an iCalendar body, or a JSON event list when the
// request is sent as application/json.
// POST /api/v1/events/import?strategy=skip|overwrite|create_new
func (s *APIV1Service) ImportEvents(c echo.Context) error {
	strategy, err := calendar.ParseConflictStrategy(c.QueryParam("strategy"))
	if err != nil {
		return respondError(c, err)
	}
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxImportBytes+1))
	if err != nil {
		return respondError(c, apierrors.InvalidArgument("failed to read request body"))
	}
	if len(body) > maxImportBytes {
		return respondError(c, apierrors.InvalidArgument("import body too large"))
	}

	ctx := c.Request().Context()
	var summary *calendar.ImportSummary
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		events, err := s.decodeImport(body)
		if err != nil {
			return respondError(c, err)
		}
		summary, err = s.Calendar.ImportEvents(ctx, currentUser(c), events, strategy)
		if err != nil {
			return respondError(c, err)
		}
	} else {
		summary, err = s.Calendar.ImportICS(ctx, currentUser(c), body, strategy)
		if err != nil {
			return respondError(c, err)
		}
	}

	resp := ImportResponse{
		Total:    summary.Total,
		Imported: summary.Imported,
		Skipped:  summary.Skipped,
		Errors:   summary.Errors,
		Results:  make([]*ImportResultJSON, 0, len(summary.Results)),
	}
	for _, r := range summary.Results {
		resp.Results = append(resp.Results, &ImportResultJSON{
			Title:   r.Title,
			EventID: r.EventID,
			Skipped: r.Skipped,
			Error:   r.Error,
		})
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *APIV1Service) decodeImport(body []byte) ([]*calendar.ImportEvent, error) {
	var req ImportRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, apierrors.InvalidArgument("malformed request body")
	}
	events := make([]*calendar.ImportEvent, 0, len(req.Events))
	for i, e := range req.Events {
		if e == nil {
			continue
		}
		event := &calendar.ImportEvent{
			Title:             e.Title,
			Description:       e.Description,
			Location:          e.Location,
			Type:              store.EventType(e.Type),
			Start:             e.Start,
			End:               e.End,
			AllDay:            e.AllDay,
			IsRecurring:       e.IsRecurring,
			RecurrencePattern: e.RecurrencePattern,
		}
		if e.RecurrenceEnd != "" {
			until, err := parseTime(e.RecurrenceEnd, s.Calendar.Location())
			if err != nil {
				return nil, apierrors.InvalidArgument(err.Error()).WithContext("index", i)
			}
			event.RecurrenceEnd = &until
		}
		events = append(events, event)
	}
	return events, nil
}

// ExportEvents writes every definition of the user as an iCalendar file.
// GET /api/v1/events/export
func (s *APIV1Service) ExportEvents(c echo.Context) error {
	var buf bytes.Buffer
	if err := s.Calendar.ExportICS(c.Request().Context(), currentUser(c), &buf); err != nil {
		return respondError(c, err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="chronoplan.ics"`)
	return c.Blob(http.StatusOK, "text/calendar; charset=utf-8", buf.Bytes())
}
