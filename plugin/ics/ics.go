// Package ics reads and writes iCalendar (RFC 5545) payloads.
package ics

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
)

const (
	dateLayout = "20060102"
	// ProductID identifies exported calendars.
	ProductID = "-//chronoplan//calendar export//EN"
)

// ErrEmptyCalendar is returned when the payload is empty.
var ErrEmptyCalendar = errors.New("empty ICS body")

// Event is the normalized form of a VEVENT.
type Event struct {
	UID         string
	Title       string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	AllDay      bool
	// RRule is the raw RRULE value, empty for single events.
	RRule string
}

// Parse reads every VEVENT in body. All-day dates are placed in loc.
// Events without a usable DTSTART are logged and skipped.
func Parse(body []byte, loc *time.Location) ([]*Event, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, ErrEmptyCalendar
	}
	if loc == nil {
		loc = time.Local
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse calendar: %w", err)
	}

	events := make([]*Event, 0)
	for _, ve := range cal.Events() {
		event, err := parseVEvent(ve, loc)
		if err != nil {
			slog.Warn("skipping vevent", "uid", ve.Id(), "error", err)
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

func parseVEvent(ve *ical.VEvent, loc *time.Location) (*Event, error) {
	out := &Event{UID: ve.Id()}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Title = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.Location = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RRule = p.Value
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil || dtStart.Value == "" {
		return nil, errors.New("missing DTSTART")
	}
	out.AllDay = isDateOnly(dtStart)

	if out.AllDay {
		start, err := time.ParseInLocation(dateLayout, dtStart.Value, loc)
		if err != nil {
			return nil, fmt.Errorf("invalid DTSTART %q: %w", dtStart.Value, err)
		}
		out.Start = start
		// DTEND of an all-day event is exclusive; a missing one means one day.
		out.End = start.AddDate(0, 0, 1)
		if dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEnd != nil && dtEnd.Value != "" {
			if end, err := time.ParseInLocation(dateLayout, dtEnd.Value, loc); err == nil && end.After(start) {
				out.End = end
			}
		}
		return out, nil
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return nil, fmt.Errorf("invalid DTSTART %q: %w", dtStart.Value, err)
	}
	out.Start = start
	out.End = start
	if end, err := ve.GetEndAt(); err == nil && !end.Before(start) {
		out.End = end
	}
	return out, nil
}

func isDateOnly(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters[string(ical.ParameterValue)]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

// Write serializes events as a VCALENDAR to w.
func Write(w io.Writer, events []*Event, stamp time.Time) error {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(ProductID)

	for _, e := range events {
		ve := cal.AddEvent(e.UID)
		ve.SetDtStampTime(stamp)
		ve.SetSummary(e.Title)
		if e.Description != "" {
			ve.SetDescription(e.Description)
		}
		if e.Location != "" {
			ve.SetLocation(e.Location)
		}
		if e.AllDay {
			ve.SetAllDayStartAt(e.Start)
			ve.SetAllDayEndAt(e.End)
		} else {
			ve.SetStartAt(e.Start)
			ve.SetEndAt(e.End)
		}
		if e.RRule != "" {
			ve.AddRrule(e.RRule)
		}
	}

	if _, err := io.WriteString(w, cal.Serialize()); err != nil {
		return fmt.Errorf("failed to write calendar: %w", err)
	}
	return nil
}
