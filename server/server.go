package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/hrygo/chronoplan/internal/profile"
	"github.com/hrygo/chronoplan/plugin/ai"
	"github.com/hrygo/chronoplan/plugin/gcal"
	apiv1 "github.com/hrygo/chronoplan/server/router/api/v1"
	"github.com/hrygo/chronoplan/server/runner/gcalsync"
	"github.com/hrygo/chronoplan/server/scheduler/availability"
	"github.com/hrygo/chronoplan/server/scheduler/recurrence"
	"github.com/hrygo/chronoplan/server/scheduler/suggestion"
	"github.com/hrygo/chronoplan/server/service/calendar"
	"github.com/hrygo/chronoplan/server/stats"
	"github.com/hrygo/chronoplan/store"
)

type Server struct {
	Profile *profile.Profile
	Store   *store.Store

	echoServer *echo.Echo
	syncRunner *gcalsync.Runner

	runnerCancelFuncs []context.CancelFunc
}

func NewServer(ctx context.Context, profile *profile.Profile, store *store.Store) (*Server, error) {
	s := &Server{
		Profile: profile,
		Store:   store,
	}

	echoServer := echo.New()
	echoServer.Debug = true
	echoServer.HideBanner = true
	echoServer.HidePort = true
	echoServer.Use(middleware.Recover())
	s.echoServer = echoServer

	loc, err := profile.Location()
	if err != nil {
		return nil, err
	}
	workDays, err := profile.ParseWorkDays()
	if err != nil {
		return nil, err
	}

	var remote calendar.RemoteConnector
	if profile.IsGoogleEnabled() {
		oauthConfig := gcal.NewConfig(profile.GoogleClientID, profile.GoogleClientSecret, "")
		remote = calendar.NewGoogleConnector(store, oauthConfig)
	}

	calendarService, err := calendar.NewService(store, calendar.Options{
		Location:   loc,
		Recurrence: recurrence.Config{MaxInstances: profile.MaxRecurrenceInstances},
		Availability: availability.Config{
			Schedule: availability.WorkSchedule{
				Days:      workDays,
				StartHour: profile.WorkStartHour,
				EndHour:   profile.WorkEndHour,
				Location:  loc,
			},
			HorizonDays: profile.HorizonDays,
		},
		Remote: remote,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create calendar service")
	}

	var llm ai.LLMService
	aiConfig := ai.NewConfigFromProfile(profile)
	if aiConfig.Enabled {
		if err := aiConfig.Validate(); err != nil {
			slog.Warn("AI is misconfigured, suggestions use the fallback ranking", "error", err)
		} else if llm, err = ai.NewLLMService(&aiConfig.LLM); err != nil {
			slog.Warn("failed to create LLM service, suggestions use the fallback ranking", "error", err)
			llm = nil
		}
	}
	planner := suggestion.NewPlanner(calendarService, suggestion.NewRanker(llm))

	apiV1Service := apiv1.NewAPIV1Service(profile, calendarService, planner, stats.NewCollector(store, loc))
	apiV1Service.Register(echoServer)

	if remote != nil {
		s.syncRunner = gcalsync.NewRunner(store, calendarService, remote, profile.GoogleSyncInterval)
	}

	slog.Info("server configured",
		"driver", profile.Driver,
		"timezone", loc.String(),
		"google_sync", s.syncRunner != nil,
		"ai", llm != nil)
	return s, nil
}

func (s *Server) Start(ctx context.Context) error {
	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return errors.Wrap(err, "failed to listen")
	}

	s.StartBackgroundRunners(ctx)

	go func() {
		s.echoServer.Listener = listener
		if err := s.echoServer.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to start echo server", "error", err)
		}
	}()
	slog.Info("server started", "address", address)
	return nil
}

func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	slog.Info("server shutting down")

	for _, cancelFunc := range s.runnerCancelFuncs {
		if cancelFunc != nil {
			cancelFunc()
		}
	}

	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}

	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close database", "error", err)
	}

	slog.Info("chronoplan stopped properly")
}

func (s *Server) StartBackgroundRunners(ctx context.Context) {
	if s.syncRunner == nil {
		return
	}
	runnerCtx, cancel := context.WithCancel(ctx)
	s.runnerCancelFuncs = append(s.runnerCancelFuncs, cancel)

	go s.syncRunner.Run(runnerCtx)
	slog.Info("google calendar sync started", "interval", s.Profile.GoogleSyncInterval)
}

// GetEcho returns the echo server, used by tests to serve requests in-process.
func (s *Server) GetEcho() *echo.Echo {
	return s.echoServer
}
