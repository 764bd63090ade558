package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"

	"github.com/hrygo/chronoplan/plugin/gcal"
	"github.com/hrygo/chronoplan/store"
)

// RemoteCalendar is a linked calendar of another provider.
type RemoteCalendar interface {
	ListEvents(ctx context.Context, timeMin, timeMax time.Time) ([]*gcal.Event, error)
	InsertEvent(ctx context.Context, event *gcal.Event) (*gcal.Event, error)
	UpdateEvent(ctx context.Context, id string, event *gcal.Event) (*gcal.Event, error)
}

// RemoteConnector opens the remote calendar of a user. It returns a nil
// calendar and no error when the user has not linked one.
type RemoteConnector interface {
	Connect(ctx context.Context, userID int32) (RemoteCalendar, error)
}

// LinkStore is the interface for the calendar link storage used by the Google connector.
type LinkStore interface {
	GetCalendarLink(ctx context.Context, userID int32, provider string) (*store.CalendarLink, error)
	UpsertCalendarLink(ctx context.Context, upsert *store.CalendarLink) (*store.CalendarLink, error)
}

type googleConnector struct {
	links  LinkStore
	config *oauth2.Config
	opts   []gcal.Option
}

// NewGoogleConnector connects users to Google Calendar with the tokens kept in links.
func NewGoogleConnector(links LinkStore, config *oauth2.Config, opts ...gcal.Option) RemoteConnector {
	return &googleConnector{links: links, config: config, opts: opts}
}

func (g *googleConnector) Connect(ctx context.Context, userID int32) (RemoteCalendar, error) {
	link, err := g.links.GetCalendarLink(ctx, userID, gcal.Provider)
	if err != nil {
		return nil, fmt.Errorf("failed to get calendar link: %w", err)
	}
	if link == nil {
		return nil, nil
	}

	token := &oauth2.Token{
		AccessToken:  link.AccessToken,
		RefreshToken: link.RefreshToken,
		TokenType:    "Bearer",
	}
	if link.ExpiryTs > 0 {
		token.Expiry = time.Unix(link.ExpiryTs, 0)
	}
	opts := append([]gcal.Option{gcal.WithCalendarID(link.CalendarID)}, g.opts...)
	return &googleCalendar{
		client: gcal.NewClient(ctx, g.config, token, opts...),
		links:  g.links,
		link:   link,
	}, nil
}

// googleCalendar persists refreshed tokens after each call.
type googleCalendar struct {
	client *gcal.Client
	links  LinkStore
	link   *store.CalendarLink
}

func (c *googleCalendar) ListEvents(ctx context.Context, timeMin, timeMax time.Time) ([]*gcal.Event, error) {
	events, err := c.client.ListEvents(ctx, timeMin, timeMax)
	c.saveToken(ctx)
	return events, err
}

func (c *googleCalendar) InsertEvent(ctx context.Context, event *gcal.Event) (*gcal.Event, error) {
	created, err := c.client.InsertEvent(ctx, event)
	c.saveToken(ctx)
	return created, err
}

func (c *googleCalendar) UpdateEvent(ctx context.Context, id string, event *gcal.Event) (*gcal.Event, error) {
	updated, err := c.client.UpdateEvent(ctx, id, event)
	c.saveToken(ctx)
	return updated, err
}

func (c *googleCalendar) saveToken(ctx context.Context) {
	token, err := c.client.Token()
	if err != nil || token.AccessToken == c.link.AccessToken {
		return
	}

	next := *c.link
	next.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		next.RefreshToken = token.RefreshToken
	}
	if !token.Expiry.IsZero() {
		next.ExpiryTs = token.Expiry.Unix()
	}
	if _, err := c.links.UpsertCalendarLink(ctx, &next); err != nil {
		slog.Warn("failed to persist refreshed token",
			"user_id", c.link.UserID,
			"error", err)
		return
	}
	c.link = &next
}
