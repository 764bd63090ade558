package v1

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	apierrors "github.com/hrygo/chronoplan/server/internal/errors"
	"github.com/hrygo/chronoplan/server/internal/observability"
	"github.com/hrygo/chronoplan/server/scheduler/availability"
	"github.com/hrygo/chronoplan/server/scheduler/recurrence"
	"github.com/hrygo/chronoplan/server/scheduler/suggestion"
	"github.com/hrygo/chronoplan/server/service/calendar"
)

const dateLayout = "2006-01-02"

// toAPIError maps service errors to API error codes.
func toAPIError(err error) *apierrors.APIError {
	var (
		apiErr     *apierrors.APIError
		validation *calendar.ValidationError
		busy       *calendar.BusyDataError
		fields     validator.ValidationErrors
	)
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.As(err, &fields) && len(fields) > 0:
		return validationError(fields)
	case errors.As(err, &validation):
		return apierrors.InvalidArgument(validation.Message).WithContext("field", validation.Field)
	case errors.As(err, &busy):
		return apierrors.BusyDataUnavailable(err).WithContext("failed_sources", busy.FailedSources)
	case errors.Is(err, calendar.ErrBusyDataUnavailable):
		return apierrors.BusyDataUnavailable(err)
	case errors.Is(err, calendar.ErrEventNotFound):
		return apierrors.NotFound(err.Error())
	case errors.Is(err, calendar.ErrInvalidInput),
		errors.Is(err, recurrence.ErrInvalidRange),
		errors.Is(err, recurrence.ErrInvalidPattern),
		errors.Is(err, availability.ErrInvalidRange),
		errors.Is(err, availability.ErrInvalidDuration),
		errors.Is(err, availability.ErrRangeTooWide),
		errors.Is(err, suggestion.ErrMissingTitle):
		return apierrors.InvalidArgument(err.Error())
	case errors.Is(err, context.Canceled):
		return apierrors.ContextCanceled(err)
	case errors.Is(err, context.DeadlineExceeded):
		return apierrors.Timeout("request timed out")
	default:
		return apierrors.Internal(err)
	}
}

// respondError writes err as a JSON error body. Internal errors are logged with
// their cause, which is never sent to the client.
func respondError(c echo.Context, err error) error {
	apiErr := toAPIError(err)
	if apiErr.Status() >= 500 {
		if reqCtx, ok := observability.FromContext(c.Request().Context()); ok {
			reqCtx.Error("request error", err, slog.String(observability.LogFieldErrorCode, string(apiErr.Code)))
		} else {
			slog.Error("request error", "error_code", apiErr.Code, "error", err)
		}
	}
	return c.JSON(apiErr.Status(), apiErr.Body())
}

// parseTime accepts RFC 3339 timestamps and dates, which start at midnight in loc.
func parseTime(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(dateLayout, value, loc); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("expected RFC 3339 time or YYYY-MM-DD date, got %q", value)
}

// queryTime parses an optional query parameter; the zero time means absent.
func queryTime(c echo.Context, name string, loc *time.Location) (time.Time, error) {
	value := c.QueryParam(name)
	if value == "" {
		return time.Time{}, nil
	}
	t, err := parseTime(value, loc)
	if err != nil {
		return time.Time{}, apierrors.InvalidArgument(err.Error()).WithContext("field", name)
	}
	return t, nil
}

// requiredRange parses the start and end query parameters, both required.
func requiredRange(c echo.Context, loc *time.Location) (time.Time, time.Time, error) {
	start, err := queryTime(c, "start", loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := queryTime(c, "end", loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if start.IsZero() || end.IsZero() {
		return time.Time{}, time.Time{}, apierrors.InvalidArgument("start and end are required")
	}
	return start, end, nil
}

func pathID(c echo.Context) (int32, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 32)
	if err != nil || id <= 0 {
		return 0, apierrors.InvalidArgument(fmt.Sprintf("invalid id %q", c.Param("id"))).WithContext("field", "id")
	}
	return int32(id), nil
}

// parseIDs parses a comma separated id list.
func parseIDs(value string) ([]int32, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	var ids []int32
	for _, part := range strings.Split(value, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 32)
		if err != nil {
			return nil, apierrors.InvalidArgument(fmt.Sprintf("invalid id %q", part)).WithContext("field", "exclude")
		}
		ids = append(ids, int32(id))
	}
	return ids, nil
}
