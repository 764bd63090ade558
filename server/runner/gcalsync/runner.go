// Package gcalsync pushes locally changed events to the linked Google calendars.
package gcalsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/semaphore"

	"github.com/hrygo/chronoplan/plugin/gcal"
	"github.com/hrygo/chronoplan/server/middleware"
	"github.com/hrygo/chronoplan/server/scheduler/recurrence"
	"github.com/hrygo/chronoplan/server/scheduler/rrule"
	"github.com/hrygo/chronoplan/server/service/calendar"
	"github.com/hrygo/chronoplan/server/timezone"
	"github.com/hrygo/chronoplan/store"
)

const (
	defaultInterval = 15 * time.Minute
	dateLayout      = "2006-01-02"

	// maxConcurrentUsers bounds parallel pushes to the remote API.
	maxConcurrentUsers = 4
	// Per-user write quota towards the remote calendar.
	pushesPerSecond = 5
	pushBurst       = 10
)

// LinkLister lists linked calendars.
type LinkLister interface {
	ListCalendarLinks(ctx context.Context, find *store.FindCalendarLink) ([]*store.CalendarLink, error)
}

// Events is the part of the calendar service the runner needs.
type Events interface {
	ListUnsyncedEvents(ctx context.Context, userID int32) ([]*store.Event, error)
	MarkEventSynced(ctx context.Context, userID int32, id int32, googleEventID string, pushedUpdatedTs int64) error
	Location() *time.Location
}

// Runner periodically pushes unsynced events of every linked user.
type Runner struct {
	links    LinkLister
	events   Events
	remote   calendar.RemoteConnector
	interval time.Duration
	throttle *middleware.RateLimiter
}

// NewRunner creates a sync runner. A non-positive interval uses 15 minutes.
func NewRunner(links LinkLister, events Events, remote calendar.RemoteConnector, interval time.Duration) *Runner {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Runner{
		links:    links,
		events:   events,
		remote:   remote,
		interval: interval,
		throttle: middleware.NewRateLimiter(pushesPerSecond, pushBurst),
	}
}

// Run syncs once, then on every interval until ctx is done.
func (r *Runner) Run(ctx context.Context) {
	r.RunOnce(ctx)

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", r.interval), func() { r.RunOnce(ctx) }); err != nil {
		slog.Error("failed to schedule calendar sync", "interval", r.interval.String(), "error", err)
		return
	}
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	slog.Info("calendar sync runner stopped")
}

// RunOnce pushes the unsynced events of every linked user.
func (r *Runner) RunOnce(ctx context.Context) {
	provider := gcal.Provider
	links, err := r.links.ListCalendarLinks(ctx, &store.FindCalendarLink{Provider: &provider})
	if err != nil {
		slog.Error("failed to list calendar links", "error", err)
		return
	}

	sem := semaphore.NewWeighted(maxConcurrentUsers)
	var wg sync.WaitGroup
	for _, link := range links {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(userID int32) {
			defer wg.Done()
			defer sem.Release(1)
			pushed, err := r.syncUser(ctx, userID)
			if err != nil {
				slog.Error("calendar sync failed",
					"user_id", userID,
					"error", err)
				return
			}
			if pushed > 0 {
				slog.Info("calendar sync finished",
					"user_id", userID,
					"pushed", pushed)
			}
		}(link.UserID)
	}
	wg.Wait()
}

func (r *Runner) syncUser(ctx context.Context, userID int32) (int, error) {
	events, err := r.events.ListUnsyncedEvents(ctx, userID)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	remote, err := r.remote.Connect(ctx, userID)
	if err != nil {
		return 0, err
	}
	if remote == nil {
		return 0, nil
	}

	pushed := 0
	key := strconv.Itoa(int(userID))
	for _, event := range events {
		if err := r.throttle.Wait(ctx, key); err != nil {
			return pushed, err
		}
		googleID, err := r.push(ctx, remote, event)
		if err != nil {
			slog.Warn("failed to push event",
				"user_id", userID,
				"event_id", event.ID,
				"error", err)
			continue
		}
		if err := r.events.MarkEventSynced(ctx, userID, event.ID, googleID, event.UpdatedTs); err != nil {
			if errors.Is(err, store.ErrEventChanged) {
				slog.Info("event changed during push, retrying next run",
					"user_id", userID,
					"event_id", event.ID)
				continue
			}
			return pushed, err
		}
		pushed++
	}
	return pushed, nil
}

func (r *Runner) push(ctx context.Context, remote calendar.RemoteCalendar, event *store.Event) (string, error) {
	body, err := toGoogleEvent(event, r.events.Location())
	if err != nil {
		return "", err
	}

	if event.GoogleEventID != nil && *event.GoogleEventID != "" {
		updated, err := remote.UpdateEvent(ctx, *event.GoogleEventID, body)
		if err != nil {
			return "", err
		}
		return updated.ID, nil
	}

	created, err := remote.InsertEvent(ctx, body)
	if err != nil {
		return "", err
	}
	return created.ID, nil
}

func toGoogleEvent(event *store.Event, fallback *time.Location) (*gcal.Event, error) {
	loc := timezone.Resolve(event.Timezone, fallback)
	start, end := event.StartTime().In(loc), event.EndTime().In(loc)

	body := &gcal.Event{
		Summary:     event.Title,
		Description: event.Description,
		Location:    event.Location,
	}
	if event.AllDay {
		body.Start = gcal.EventTime{Date: start.Format(dateLayout)}
		body.End = gcal.EventTime{Date: end.Format(dateLayout)}
	} else {
		zone := loc.String()
		if loc == time.Local {
			zone = ""
		}
		body.Start = gcal.EventTime{DateTime: start.Format(time.RFC3339), TimeZone: zone}
		body.End = gcal.EventTime{DateTime: end.Format(time.RFC3339), TimeZone: zone}
	}

	pattern, err := recurrence.ParsePattern(event.RecurrencePattern)
	if err != nil {
		return nil, err
	}
	if event.IsRecurring && pattern.Repeats() {
		var until *time.Time
		if t := event.RecurrenceEndTime(); t != nil {
			end := timezone.LastSecondOfDay(*t, loc)
			until = &end
		}
		value, err := rrule.Format(pattern, until)
		if err != nil {
			return nil, err
		}
		body.Recurrence = []string{"RRULE:" + value}
	}
	return body, nil
}
