// Package gcal is a small Google Calendar v3 REST client authorized with OAuth 2.0.
package gcal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
)

const (
	// Provider is the calendar_link provider name.
	Provider = "google"

	defaultBaseURL    = "https://www.googleapis.com/calendar/v3"
	defaultCalendarID = "primary"
	dateLayout        = "2006-01-02"
	maxPageSize       = 250
	maxErrorBody      = 4096
)

// Scopes requested when linking an account.
var Scopes = []string{
	"https://www.googleapis.com/auth/calendar",
	"https://www.googleapis.com/auth/calendar.events",
}

// Endpoint is Google's OAuth 2.0 endpoint.
var Endpoint = oauth2.Endpoint{
	AuthURL:   "https://accounts.google.com/o/oauth2/auth",
	TokenURL:  "https://oauth2.googleapis.com/token",
	AuthStyle: oauth2.AuthStyleInParams,
}

// NewConfig returns the OAuth 2.0 client configuration.
func NewConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       Scopes,
		Endpoint:     Endpoint,
	}
}

// APIError is a non-2xx response from the Calendar API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("google calendar api: status %d: %s", e.StatusCode, e.Body)
}

// EventTime is either a dateTime (timed events) or a date (all-day events).
type EventTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

// Time resolves the value; dates are placed at midnight in loc.
func (t EventTime) Time(loc *time.Location) (time.Time, error) {
	if t.DateTime != "" {
		return time.Parse(time.RFC3339, t.DateTime)
	}
	if t.Date != "" {
		return time.ParseInLocation(dateLayout, t.Date, loc)
	}
	return time.Time{}, fmt.Errorf("event time has neither dateTime nor date")
}

// Event is the subset of the Calendar event resource used here.
type Event struct {
	ID           string    `json:"id,omitempty"`
	Status       string    `json:"status,omitempty"`
	Summary      string    `json:"summary,omitempty"`
	Description  string    `json:"description,omitempty"`
	Location     string    `json:"location,omitempty"`
	Start        EventTime `json:"start"`
	End          EventTime `json:"end"`
	Transparency string    `json:"transparency,omitempty"`
	Recurrence   []string  `json:"recurrence,omitempty"`
}

// Busy reports whether the event blocks time.
func (e *Event) Busy() bool {
	return e.Status != "cancelled" && e.Transparency != "transparent"
}

type eventList struct {
	Items         []*Event `json:"items"`
	NextPageToken string   `json:"nextPageToken"`
}

// Client talks to one calendar of one account.
type Client struct {
	httpClient  *http.Client
	tokenSource oauth2.TokenSource
	baseURL     string
	calendarID  string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = baseURL }
}

// WithCalendarID selects a calendar other than "primary".
func WithCalendarID(id string) Option {
	return func(c *Client) {
		if id != "" {
			c.calendarID = id
		}
	}
}

// NewClient returns a client that refreshes token through cfg when it expires.
func NewClient(ctx context.Context, cfg *oauth2.Config, token *oauth2.Token, opts ...Option) *Client {
	ts := oauth2.ReuseTokenSource(token, cfg.TokenSource(ctx, token))
	c := &Client{
		httpClient:  oauth2.NewClient(ctx, ts),
		tokenSource: ts,
		baseURL:     defaultBaseURL,
		calendarID:  defaultCalendarID,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token returns the current, possibly refreshed, token so callers can persist it.
func (c *Client) Token() (*oauth2.Token, error) {
	return c.tokenSource.Token()
}

// ListEvents returns single (expanded) events overlapping [timeMin, timeMax), following pagination.
func (c *Client) ListEvents(ctx context.Context, timeMin, timeMax time.Time) ([]*Event, error) {
	var events []*Event
	pageToken := ""
	for {
		q := url.Values{}
		q.Set("timeMin", timeMin.UTC().Format(time.RFC3339))
		q.Set("timeMax", timeMax.UTC().Format(time.RFC3339))
		q.Set("singleEvents", "true")
		q.Set("orderBy", "startTime")
		q.Set("maxResults", fmt.Sprint(maxPageSize))
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}

		var page eventList
		if err := c.do(ctx, http.MethodGet, c.eventsURL()+"?"+q.Encode(), nil, &page); err != nil {
			return nil, fmt.Errorf("failed to list events: %w", err)
		}
		events = append(events, page.Items...)
		if page.NextPageToken == "" {
			return events, nil
		}
		pageToken = page.NextPageToken
	}
}

// InsertEvent creates event and returns the stored resource.
func (c *Client) InsertEvent(ctx context.Context, event *Event) (*Event, error) {
	var created Event
	if err := c.do(ctx, http.MethodPost, c.eventsURL(), event, &created); err != nil {
		return nil, fmt.Errorf("failed to insert event: %w", err)
	}
	return &created, nil
}

// UpdateEvent patches the event with the given id.
func (c *Client) UpdateEvent(ctx context.Context, id string, event *Event) (*Event, error) {
	var updated Event
	endpoint := c.eventsURL() + "/" + url.PathEscape(id)
	if err := c.do(ctx, http.MethodPatch, endpoint, event, &updated); err != nil {
		return nil, fmt.Errorf("failed to update event %s: %w", id, err)
	}
	return &updated, nil
}

func (c *Client) eventsURL() string {
	return fmt.Sprintf("%s/calendars/%s/events", c.baseURL, url.PathEscape(c.calendarID))
}

func (c *Client) do(ctx context.Context, method, endpoint string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
