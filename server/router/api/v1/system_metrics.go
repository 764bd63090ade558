package v1

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	apierrors "github.com/hrygo/chronoplan/server/internal/errors"
)

// MetricsOverviewResponse represents the overview response of system metrics
type MetricsOverviewResponse struct {
	TotalRequests int64   `json:"total_requests"`
	SuccessRate   float64 `json:"success_rate"`
	AvgLatencyMs  int64   `json:"avg_latency_ms"`
	P50LatencyMs  int64   `json:"p50_latency_ms"`
	P95LatencyMs  int64   `json:"p95_latency_ms"`
	ErrorCount    int64   `json:"error_count"`
	Since         string  `json:"since"`
}

// GetMetricsOverview returns the request metrics collected since the process started.
// GET /api/v1/system/metrics/overview
func (s *APIV1Service) GetMetricsOverview(c echo.Context) error {
	snap := s.Metrics.Snapshot()
	return c.JSON(http.StatusOK, MetricsOverviewResponse{
		TotalRequests: snap.RequestTotal,
		SuccessRate:   snap.SuccessRate(),
		AvgLatencyMs:  snap.AverageDuration(),
		P50LatencyMs:  snap.P50.Milliseconds(),
		P95LatencyMs:  snap.P95.Milliseconds(),
		ErrorCount:    snap.RequestFailed,
		Since:         processStart.Format(time.RFC3339),
	})
}

var processStart = time.Now()

// HealthResponse is returned by GET /healthz.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version,omitempty"`
	Timezone string `json:"timezone"`
}

// Healthz reports that the server is up.
// GET /healthz
func (s *APIV1Service) Healthz(c echo.Context) error {
	resp := HealthResponse{Status: "ok", Timezone: s.Calendar.Location().String()}
	if s.Profile != nil {
		resp.Version = s.Profile.Version
	}
	return c.JSON(http.StatusOK, resp)
}

// GetStats returns calendar statistics of the user.
// GET /api/v1/stats
func (s *APIV1Service) GetStats(c echo.Context) error {
	if s.Stats == nil {
		return respondError(c, apierrors.ServiceUnavailable("statistics are not configured"))
	}
	stats, err := s.Stats.Collect(c.Request().Context(), currentUser(c))
	if err != nil {
		slog.Warn("failed to collect stats", "user_id", currentUser(c), "error", err)
		return respondError(c, fmt.Errorf("failed to collect stats: %w", err))
	}
	return c.JSON(http.StatusOK, stats)
}
