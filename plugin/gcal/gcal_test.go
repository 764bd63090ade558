package gcal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type fakeGoogle struct {
	*httptest.Server
	refreshes int
	inserted  []*Event
	patched   map[string]*Event
}

func newFakeGoogle(t *testing.T) *fakeGoogle {
	t.Helper()
	f := &fakeGoogle{patched: map[string]*Event{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "refresh-1", r.PostForm.Get("refresh_token"))
		f.refreshes++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"fresh","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/calendars/primary/events", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodGet:
			assert.Equal(t, "true", r.URL.Query().Get("singleEvents"))
			if r.URL.Query().Get("pageToken") == "" {
				_, _ = w.Write([]byte(`{"items":[{"id":"a","summary":"Focus","start":{"dateTime":"2024-03-05T10:00:00Z"},"end":{"dateTime":"2024-03-05T11:00:00Z"}}],"nextPageToken":"p2"}`))
				return
			}
			_, _ = w.Write([]byte(`{"items":[{"id":"b","status":"cancelled","start":{"date":"2024-03-06"},"end":{"date":"2024-03-07"}}]}`))
		case http.MethodPost:
			var event Event
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&event))
			f.inserted = append(f.inserted, &event)
			event.ID = "google-1"
			_ = json.NewEncoder(w).Encode(event)
		}
	})
	mux.HandleFunc("/calendars/primary/events/google-1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		var event Event
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&event))
		f.patched["google-1"] = &event
		event.ID = "google-1"
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(event)
	})
	mux.HandleFunc("/calendars/forbidden/events", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"message":"no access"}}`))
	})
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeGoogle) client(ctx context.Context, opts ...Option) *Client {
	cfg := NewConfig("client", "secret", "")
	cfg.Endpoint.TokenURL = f.URL + "/token"
	expired := &oauth2.Token{AccessToken: "stale", RefreshToken: "refresh-1", Expiry: time.Now().Add(-time.Hour)}
	return NewClient(ctx, cfg, expired, append([]Option{WithBaseURL(f.URL)}, opts...)...)
}

func TestListEvents_RefreshesAndPaginates(t *testing.T) {
	f := newFakeGoogle(t)
	ctx := context.Background()
	c := f.client(ctx)

	events, err := c.ListEvents(ctx, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, 1, f.refreshes)

	assert.Equal(t, "Focus", events[0].Summary)
	assert.True(t, events[0].Busy())
	start, err := events[0].Start.Time(time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC), start.UTC())

	assert.False(t, events[1].Busy())
	day, err := events[1].Start.Time(time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC), day)

	token, err := c.Token()
	require.NoError(t, err)
	assert.Equal(t, "fresh", token.AccessToken)
}

func TestInsertEvent(t *testing.T) {
	f := newFakeGoogle(t)
	ctx := context.Background()
	c := f.client(ctx)

	created, err := c.InsertEvent(ctx, &Event{
		Summary:    "Planning",
		Start:      EventTime{DateTime: "2024-03-05T09:00:00Z"},
		End:        EventTime{DateTime: "2024-03-05T10:00:00Z"},
		Recurrence: []string{"RRULE:FREQ=WEEKLY"},
	})
	require.NoError(t, err)
	assert.Equal(t, "google-1", created.ID)
	require.Len(t, f.inserted, 1)
	assert.Equal(t, []string{"RRULE:FREQ=WEEKLY"}, f.inserted[0].Recurrence)
}

func TestUpdateEvent(t *testing.T) {
	f := newFakeGoogle(t)
	ctx := context.Background()
	c := f.client(ctx)

	updated, err := c.UpdateEvent(ctx, "google-1", &Event{
		Summary: "Planning (moved)",
		Start:   EventTime{DateTime: "2024-03-05T11:00:00Z"},
		End:     EventTime{DateTime: "2024-03-05T12:00:00Z"},
	})
	require.NoError(t, err)
	assert.Equal(t, "google-1", updated.ID)
	require.Contains(t, f.patched, "google-1")
	assert.Equal(t, "Planning (moved)", f.patched["google-1"].Summary)
}

func TestAPIError(t *testing.T) {
	f := newFakeGoogle(t)
	ctx := context.Background()
	c := f.client(ctx, WithCalendarID("forbidden"))

	_, err := c.ListEvents(ctx, time.Now(), time.Now().Add(time.Hour))
	require.Error(t, err)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "no access")
}

func TestEventTime_Empty(t *testing.T) {
	_, err := EventTime{}.Time(time.UTC)
	assert.Error(t, err)
}
