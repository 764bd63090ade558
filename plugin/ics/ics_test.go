package ics

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func icsBody(lines ...string) []byte {
	all := append([]string{"BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:-//test//EN"}, lines...)
	all = append(all, "END:VCALENDAR", "")
	return []byte(strings.Join(all, "\r\n"))
}

func TestParse(t *testing.T) {
	body := icsBody(
		"BEGIN:VEVENT",
		"UID:standup-1",
		"DTSTAMP:20240301T000000Z",
		"SUMMARY:Standup",
		"DESCRIPTION:Daily sync",
		"LOCATION:Room 4",
		"DTSTART:20240304T093000Z",
		"DTEND:20240304T094500Z",
		"RRULE:FREQ=WEEKLY;UNTIL=20240325T000000Z",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:offsite-1",
		"DTSTAMP:20240301T000000Z",
		"SUMMARY:Offsite",
		"DTSTART;VALUE=DATE:20240308",
		"DTEND;VALUE=DATE:20240310",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:ny-1",
		"DTSTAMP:20240301T000000Z",
		"SUMMARY:NY call",
		"DTSTART;TZID=America/New_York:20240305T090000",
		"DTEND;TZID=America/New_York:20240305T100000",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:broken-1",
		"DTSTAMP:20240301T000000Z",
		"SUMMARY:No start",
		"END:VEVENT",
	)

	events, err := Parse(body, time.UTC)
	require.NoError(t, err)
	require.Len(t, events, 3)

	standup := events[0]
	assert.Equal(t, "standup-1", standup.UID)
	assert.Equal(t, "Standup", standup.Title)
	assert.Equal(t, "Daily sync", standup.Description)
	assert.Equal(t, "Room 4", standup.Location)
	assert.False(t, standup.AllDay)
	assert.True(t, standup.Start.Equal(time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)))
	assert.Equal(t, 15*time.Minute, standup.End.Sub(standup.Start))
	assert.Equal(t, "FREQ=WEEKLY;UNTIL=20240325T000000Z", standup.RRule)

	offsite := events[1]
	assert.True(t, offsite.AllDay)
	assert.Equal(t, time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC), offsite.Start)
	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), offsite.End)
	assert.Empty(t, offsite.RRule)

	ny := events[2]
	assert.True(t, ny.Start.Equal(time.Date(2024, 3, 5, 14, 0, 0, 0, time.UTC)))
	assert.Equal(t, time.Hour, ny.End.Sub(ny.Start))
}

func TestParse_AllDayWithoutEnd(t *testing.T) {
	body := icsBody(
		"BEGIN:VEVENT",
		"UID:holiday",
		"DTSTAMP:20240301T000000Z",
		"SUMMARY:Holiday",
		"DTSTART;VALUE=DATE:20240401",
		"END:VEVENT",
	)
	events, err := Parse(body, time.UTC)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 24*time.Hour, events[0].End.Sub(events[0].Start))
}

func TestParse_Empty(t *testing.T) {
	_, err := Parse(nil, time.UTC)
	assert.ErrorIs(t, err, ErrEmptyCalendar)

	_, err = Parse([]byte("   \n"), time.UTC)
	assert.ErrorIs(t, err, ErrEmptyCalendar)
}

func TestWriteThenParse(t *testing.T) {
	stamp := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	in := []*Event{
		{
			UID:      "review-1",
			Title:    "Review",
			Location: "Desk",
			Start:    time.Date(2024, 3, 6, 13, 0, 0, 0, time.UTC),
			End:      time.Date(2024, 3, 6, 14, 30, 0, 0, time.UTC),
			RRule:    "FREQ=MONTHLY",
		},
		{
			UID:    "trip-1",
			Title:  "Trip",
			Start:  time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC),
			End:    time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC),
			AllDay: true,
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, in, stamp))
	assert.Contains(t, buf.String(), "BEGIN:VCALENDAR")
	assert.Contains(t, buf.String(), ProductID)

	out, err := Parse(buf.Bytes(), time.UTC)
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, "review-1", out[0].UID)
	assert.Equal(t, "Review", out[0].Title)
	assert.Equal(t, "Desk", out[0].Location)
	assert.True(t, out[0].Start.Equal(in[0].Start))
	assert.True(t, out[0].End.Equal(in[0].End))
	assert.Equal(t, "FREQ=MONTHLY", out[0].RRule)

	assert.True(t, out[1].AllDay)
	assert.Equal(t, in[1].Start, out[1].Start)
	assert.Equal(t, in[1].End, out[1].End)
}
