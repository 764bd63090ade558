package calendar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/hrygo/chronoplan/plugin/ics"
	"github.com/hrygo/chronoplan/server/scheduler/rrule"
	"github.com/hrygo/chronoplan/server/timezone"
	"github.com/hrygo/chronoplan/store"
)

// duplicateWindow is how far apart two same-titled events may start and still be duplicates.
const duplicateWindow = time.Hour

// ConflictStrategy decides what happens when an imported event duplicates a stored one.
type ConflictStrategy string

const (
	// StrategySkip keeps the stored event and drops the imported one.
	StrategySkip ConflictStrategy = "skip"
	// StrategyOverwrite replaces the stored event's fields with the imported ones.
	StrategyOverwrite ConflictStrategy = "overwrite"
	// StrategyCreateNew stores the imported event next to the existing one.
	StrategyCreateNew ConflictStrategy = "create_new"
)

// ParseConflictStrategy parses s; empty means StrategySkip.
func ParseConflictStrategy(s string) (ConflictStrategy, error) {
	switch strategy := ConflictStrategy(strings.ToLower(strings.TrimSpace(s))); strategy {
	case "":
		return StrategySkip, nil
	case StrategySkip, StrategyOverwrite, StrategyCreateNew:
		return strategy, nil
	default:
		return "", invalid("strategy", "unknown conflict strategy %q", s)
	}
}

// ImportEvent is one event to import.
type ImportEvent struct {
	Title             string
	Description       string
	Start             time.Time
	End               time.Time
	Location          string
	AllDay            bool
	Type              store.EventType
	IsRecurring       bool
	RecurrencePattern string
	RecurrenceEnd     *time.Time
}

// ImportResult is the outcome of importing one event.
type ImportResult struct {
	Title   string
	EventID int32
	Skipped bool
	Error   string
}

// ImportSummary is the outcome of a batch import.
type ImportSummary struct {
	Total    int
	Imported int
	Skipped  int
	Errors   int
	Results  []*ImportResult
}

// ImportEvents imports events one by one. A failing event is recorded in the
// summary and does not stop the batch.
func (s *service) ImportEvents(ctx context.Context, userID int32, events []*ImportEvent, strategy ConflictStrategy) (*ImportSummary, error) {
	if strategy == "" {
		strategy = StrategySkip
	}
	if _, err := ParseConflictStrategy(string(strategy)); err != nil {
		return nil, err
	}

	summary := &ImportSummary{Total: len(events), Results: make([]*ImportResult, 0, len(events))}
	for _, event := range events {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result := s.importEvent(ctx, userID, event, strategy)
		summary.Results = append(summary.Results, result)
		switch {
		case result.Error != "":
			summary.Errors++
		case result.Skipped:
			summary.Skipped++
		default:
			summary.Imported++
		}
	}

	slog.Info("events imported",
		"user_id", userID,
		"strategy", strategy,
		"total", summary.Total,
		"imported", summary.Imported,
		"skipped", summary.Skipped,
		"errors", summary.Errors)
	return summary, nil
}

func (s *service) importEvent(ctx context.Context, userID int32, event *ImportEvent, strategy ConflictStrategy) *ImportResult {
	if event == nil {
		return &ImportResult{Error: "missing event"}
	}
	result := &ImportResult{Title: event.Title}

	duplicate, err := s.findDuplicate(ctx, userID, event)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	if duplicate != nil {
		switch strategy {
		case StrategySkip:
			result.EventID = duplicate.ID
			result.Skipped = true
			return result
		case StrategyOverwrite:
			updated, err := s.UpdateEvent(ctx, userID, duplicate.ID, overwriteRequest(event))
			if err != nil {
				result.Error = err.Error()
				return result
			}
			result.EventID = updated.ID
			return result
		}
	}

	created, err := s.CreateEvent(ctx, userID, &CreateEventRequest{
		Title:             event.Title,
		Description:       event.Description,
		Location:          event.Location,
		Type:              event.Type,
		Start:             event.Start,
		End:               event.End,
		AllDay:            event.AllDay,
		IsRecurring:       event.IsRecurring,
		RecurrencePattern: event.RecurrencePattern,
		RecurrenceEnd:     event.RecurrenceEnd,
	})
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.EventID = created.ID
	return result
}

func overwriteRequest(event *ImportEvent) *UpdateEventRequest {
	eventType := event.Type
	if eventType == "" {
		eventType = store.EventTypePersonal
	}
	pattern := event.RecurrencePattern
	update := &UpdateEventRequest{
		Description:       &event.Description,
		Location:          &event.Location,
		Type:              &eventType,
		Start:             &event.Start,
		End:               &event.End,
		AllDay:            &event.AllDay,
		IsRecurring:       &event.IsRecurring,
		RecurrencePattern: &pattern,
		RecurrenceEnd:     event.RecurrenceEnd,
	}
	if event.RecurrenceEnd == nil {
		update.ClearRecurrenceEnd = true
	}
	return update
}

// findDuplicate returns a stored event with the same title starting within an hour of event.
func (s *service) findDuplicate(ctx context.Context, userID int32, event *ImportEvent) (*store.Event, error) {
	title := strings.TrimSpace(event.Title)
	if title == "" {
		return nil, nil
	}
	normal := store.Normal
	candidates, err := s.store.ListEvents(ctx, &store.FindEvent{
		CreatorID: &userID,
		RowStatus: &normal,
		Title:     &title,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to check duplicates: %w", err)
	}
	for _, candidate := range candidates {
		diff := candidate.StartTime().Sub(event.Start)
		if diff >= -duplicateWindow && diff <= duplicateWindow {
			return candidate, nil
		}
	}
	return nil, nil
}

// ImportICS parses body and imports its events. Rules that a pattern cannot
// express exactly are imported with their frequency only.
func (s *service) ImportICS(ctx context.Context, userID int32, body []byte, strategy ConflictStrategy) (*ImportSummary, error) {
	parsed, err := ics.Parse(body, s.loc)
	if err != nil {
		if errors.Is(err, ics.ErrEmptyCalendar) {
			return nil, invalid("body", "empty calendar")
		}
		return nil, &ValidationError{Field: "body", Message: err.Error()}
	}

	events := make([]*ImportEvent, 0, len(parsed))
	for _, p := range parsed {
		event := &ImportEvent{
			Title:       p.Title,
			Description: p.Description,
			Location:    p.Location,
			Start:       p.Start,
			End:         p.End,
			AllDay:      p.AllDay,
		}
		if p.RRule != "" {
			rule, err := rrule.Parse(p.RRule)
			if err != nil {
				slog.Warn("importing event with unsupported rule as single",
					"uid", p.UID,
					"rrule", p.RRule,
					"error", err)
			} else {
				if rule.Lossy {
					slog.Warn("recurrence rule simplified on import",
						"uid", p.UID,
						"rrule", p.RRule,
						"pattern", rule.Pattern.String())
				}
				event.IsRecurring = true
				event.RecurrencePattern = rule.Pattern.String()
				event.RecurrenceEnd = rule.End(p.Start)
			}
		}
		events = append(events, event)
	}

	return s.ImportEvents(ctx, userID, events, strategy)
}

// ExportICS writes every active definition of the user as one VCALENDAR.
func (s *service) ExportICS(ctx context.Context, userID int32, w io.Writer) error {
	normal := store.Normal
	list, err := s.store.ListEvents(ctx, &store.FindEvent{CreatorID: &userID, RowStatus: &normal})
	if err != nil {
		return fmt.Errorf("failed to list events: %w", err)
	}

	events := make([]*ics.Event, 0, len(list))
	for _, stored := range list {
		def := s.toDefinition(stored)
		event := &ics.Event{
			UID:         stored.UID,
			Title:       def.Title,
			Description: def.Description,
			Location:    def.Location,
			Start:       def.StartDate,
			End:         def.EndDate,
			AllDay:      def.AllDay,
		}
		if def.Repeats() {
			var until *time.Time
			if def.RecurrenceEndDate != nil {
				end := timezone.LastSecondOfDay(*def.RecurrenceEndDate, def.StartDate.Location())
				until = &end
			}
			value, err := rrule.Format(def.Pattern, until)
			if err != nil {
				return fmt.Errorf("failed to format rule of event %d: %w", stored.ID, err)
			}
			event.RRule = value
		}
		events = append(events, event)
	}

	return ics.Write(w, events, s.now())
}
