package v1

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"

	"github.com/hrygo/chronoplan/internal/profile"
	apierrors "github.com/hrygo/chronoplan/server/internal/errors"
	"github.com/hrygo/chronoplan/server/internal/observability"
	"github.com/hrygo/chronoplan/server/middleware"
	"github.com/hrygo/chronoplan/server/scheduler/suggestion"
	"github.com/hrygo/chronoplan/server/service/calendar"
	"github.com/hrygo/chronoplan/server/stats"
)

// HeaderUserID carries the authenticated user. Authentication happens in front of this API.
const HeaderUserID = "X-User-ID"

const userIDContextKey = "user_id"

// Suggestions call an LLM, so they get a tighter limit than the rest of the API.
const (
	suggestionRate  = 1
	suggestionBurst = 5
)

type APIV1Service struct {
	Profile  *profile.Profile
	Calendar calendar.Service
	Planner  *suggestion.Planner
	Stats    *stats.Collector
	Metrics  *observability.Metrics

	limiter *middleware.RateLimiter
}

func NewAPIV1Service(profile *profile.Profile, cal calendar.Service, planner *suggestion.Planner, collector *stats.Collector) *APIV1Service {
	return &APIV1Service{
		Profile:  profile,
		Calendar: cal,
		Planner:  planner,
		Stats:    collector,
		Metrics:  observability.NewMetrics(1000),
		limiter:  middleware.NewRateLimiter(suggestionRate, suggestionBurst),
	}
}

// Register mounts the API routes on the given Echo instance.
func (s *APIV1Service) Register(echoServer *echo.Echo) {
	if echoServer.Validator == nil {
		echoServer.Validator = newRequestValidator()
	}
	echoServer.GET("/healthz", s.Healthz)

	api := echoServer.Group("/api/v1")
	api.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOriginFunc: func(_ string) (bool, error) {
			return true, nil
		},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"*"},
	}))
	api.Use(observability.RequestLogger(slog.Default(), s.Metrics, headerUserID))
	api.Use(requireUser)

	api.GET("/events", s.ListEvents)
	api.POST("/events", s.CreateEvent)
	api.GET("/events/conflicts", s.CheckConflicts)
	api.POST("/events/import", s.ImportEvents)
	api.GET("/events/export", s.ExportEvents)
	api.GET("/events/:id", s.GetEvent)
	api.PATCH("/events/:id", s.UpdateEvent)
	api.DELETE("/events/:id", s.DeleteEvent)

	api.GET("/tasks", s.ListTasks)
	api.POST("/tasks", s.CreateTask)

	api.GET("/availability", s.GetAvailability)
	api.POST("/suggestions", s.CreateSuggestions, s.limiter.Middleware(middleware.UserOrIP))

	api.GET("/stats", s.GetStats)
	api.GET("/system/metrics/overview", s.GetMetricsOverview)
}

// headerUserID parses the user header, zero when absent or malformed.
func headerUserID(c echo.Context) int32 {
	id, err := strconv.ParseInt(c.Request().Header.Get(HeaderUserID), 10, 32)
	if err != nil || id <= 0 {
		return 0
	}
	return int32(id)
}

func requireUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := headerUserID(c)
		if id == 0 {
			apiErr := apierrors.Unauthorized("missing or invalid " + HeaderUserID + " header")
			return c.JSON(apiErr.Status(), apiErr.Body())
		}
		c.Set(userIDContextKey, id)
		return next(c)
	}
}

func currentUser(c echo.Context) int32 {
	id, _ := c.Get(userIDContextKey).(int32)
	return id
}
