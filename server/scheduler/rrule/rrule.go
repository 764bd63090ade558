// Package rrule converts between iCalendar RFC 5545 recurrence rules and
// recurrence patterns.
package rrule

import (
	"errors"
	"fmt"
	"strings"
	"time"

	rrulego "github.com/teambition/rrule-go"

	"github.com/hrygo/chronoplan/server/scheduler/recurrence"
)

// ErrUnsupportedRule is returned for frequencies finer than a day.
var ErrUnsupportedRule = errors.New("unsupported recurrence rule")

// searchSpan bounds the expansion used to resolve COUNT rules.
const searchSpan = 100

// Rule is an RRULE reduced to what a recurrence pattern can express.
type Rule struct {
	Pattern recurrence.Pattern
	// Until is the last day of the series, if bounded by UNTIL.
	Until *time.Time
	// Count bounds the series by number of occurrences.
	Count int
	// Lossy is set when the rule carried parts a pattern cannot keep
	// (INTERVAL > 1, BYxxx lists).
	Lossy bool
}

// Parse parses an RRULE value, with or without the "RRULE:" prefix.
func Parse(value string) (*Rule, error) {
	value = strings.TrimSpace(value)
	value = strings.TrimPrefix(value, "RRULE:")
	if value == "" {
		return nil, fmt.Errorf("%w: empty rule", ErrUnsupportedRule)
	}

	opt, err := rrulego.StrToROption(value)
	if err != nil {
		return nil, fmt.Errorf("failed to parse rrule %q: %w", value, err)
	}

	rule := &Rule{Count: opt.Count}
	switch opt.Freq {
	case rrulego.DAILY:
		rule.Pattern = recurrence.Daily
	case rrulego.WEEKLY:
		rule.Pattern = recurrence.Weekly
	case rrulego.MONTHLY:
		rule.Pattern = recurrence.Monthly
	case rrulego.YEARLY:
		rule.Pattern = recurrence.Yearly
	default:
		return nil, fmt.Errorf("%w: FREQ=%s", ErrUnsupportedRule, opt.Freq)
	}
	if !opt.Until.IsZero() {
		until := opt.Until
		rule.Until = &until
	}
	rule.Lossy = opt.Interval > 1 ||
		len(opt.Byweekday) > 0 || len(opt.Bymonthday) > 0 || len(opt.Bymonth) > 0 ||
		len(opt.Bysetpos) > 0 || len(opt.Byyearday) > 0 || len(opt.Byweekno) > 0 ||
		len(opt.Byhour) > 0 || len(opt.Byminute) > 0 || len(opt.Bysecond) > 0
	return rule, nil
}

// End resolves the series end date for a series starting at start.
// A COUNT rule ends on its last occurrence. Nil means the series is open.
func (r *Rule) End(start time.Time) *time.Time {
	if r.Until != nil {
		until := r.Until.In(start.Location())
		return &until
	}
	if r.Count <= 0 {
		return nil
	}

	engine := recurrence.NewEngine(recurrence.Config{MaxInstances: r.Count})
	def := &recurrence.Definition{
		StartDate:   start,
		EndDate:     start,
		IsRecurring: true,
		Pattern:     r.Pattern,
	}
	expansion, err := engine.Expand(def, start, start.AddDate(searchSpan, 0, 0))
	if err != nil || len(expansion.Instances) == 0 {
		return nil
	}
	last := expansion.Instances[len(expansion.Instances)-1].StartDate
	return &last
}

// Format renders pattern and an optional series end as an RRULE value.
func Format(pattern recurrence.Pattern, until *time.Time) (string, error) {
	opt := rrulego.ROption{}
	switch pattern {
	case recurrence.Daily:
		opt.Freq = rrulego.DAILY
	case recurrence.Weekly:
		opt.Freq = rrulego.WEEKLY
	case recurrence.Monthly:
		opt.Freq = rrulego.MONTHLY
	case recurrence.Yearly:
		opt.Freq = rrulego.YEARLY
	default:
		return "", fmt.Errorf("%w: pattern %q does not repeat", ErrUnsupportedRule, pattern)
	}
	if until != nil {
		opt.Until = until.UTC()
	}
	return opt.RRuleString(), nil
}
