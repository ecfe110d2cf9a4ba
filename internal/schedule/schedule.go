// Package schedule computes concrete future occurrences for weekly and
// biweekly recurring lectures. Everything here is pure: results are a
// function of the inputs only, so callers may invoke it from any goroutine.
package schedule

import (
	"errors"
	"fmt"
	"time"

	"remindme/internal/clock"
)

// Recurrence kinds. The engine intentionally supports exactly these two
// cadences; it is not a general RRULE evaluator.
const (
	KindWeekly   = "weekly"
	KindBiweekly = "biweekly"
)

var ErrRecurrence = errors.New("invalid recurrence")

// Recurrence describes a weekly or biweekly series anchored to a start date.
// EndDate, when set, bounds the series inclusively by calendar date.
type Recurrence struct {
	Kind          string     `json:"type"`
	IntervalWeeks int        `json:"interval"`
	StartDate     time.Time  `json:"start_date"`
	EndDate       *time.Time `json:"end_date,omitempty"`
}

// Validate checks the kind/interval pairing and date ordering.
func (r *Recurrence) Validate() error {
	switch r.Kind {
	case KindWeekly:
		if r.IntervalWeeks != 1 {
			return fmt.Errorf("%w: weekly interval must be 1, got %d", ErrRecurrence, r.IntervalWeeks)
		}
	case KindBiweekly:
		if r.IntervalWeeks != 2 {
			return fmt.Errorf("%w: biweekly interval must be 2, got %d", ErrRecurrence, r.IntervalWeeks)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrRecurrence, r.Kind)
	}
	if r.StartDate.IsZero() {
		return fmt.Errorf("%w: start date is required", ErrRecurrence)
	}
	if r.EndDate != nil && dateBefore(*r.EndDate, r.StartDate) {
		return fmt.Errorf("%w: end date %s before start date %s",
			ErrRecurrence, r.EndDate.Format("2006-01-02"), r.StartDate.Format("2006-01-02"))
	}
	return nil
}

// Occurrence pairs a concrete lecture start with the instant its reminder
// should fire. Derived on demand, never persisted.
type Occurrence struct {
	Start   time.Time
	Trigger time.Time
}

// At derives an occurrence from a start instant and a lead-time offset.
func At(start time.Time, leadMinutes int) Occurrence {
	return Occurrence{
		Start:   start,
		Trigger: start.Add(-time.Duration(leadMinutes) * time.Minute),
	}
}

// DefaultHorizonCount caps how many discrete occurrences are pre-scheduled
// in one expansion when the caller does not say otherwise.
const DefaultHorizonCount = 4

// Horizon bounds an expansion by count and/or final occurrence instant.
// A zero MaxCount means DefaultHorizonCount; a zero MaxDate means unbounded.
type Horizon struct {
	MaxCount int
	MaxDate  time.Time
}

// NextOccurrence returns the first instant at or after now that falls on the
// given weekday at the given wall-clock time and whose reminder trigger
// (occurrence minus leadMinutes) is still strictly in the future. When
// today's slot is already inside the lead window the occurrence moves a full
// week out, so the returned occurrence is always schedulable.
//
// The returned instant is the occurrence itself, not the trigger; callers
// re-derive the trigger by subtracting the lead time.
func NextOccurrence(day clock.DayOfWeek, t clock.TimeOfDay, leadMinutes int, now time.Time) time.Time {
	deltaDays := (int(day) - int(clock.CurrentDay(now)) + 7) % 7
	candidate := t.On(now.AddDate(0, 0, deltaDays))
	trigger := candidate.Add(-time.Duration(leadMinutes) * time.Minute)
	if !trigger.After(now) {
		candidate = candidate.AddDate(0, 0, 7)
	}
	return candidate
}

// Expand produces the ordered future occurrence instants of a recurring
// series within the horizon. The walk is phase-locked to the series start
// date: the anchor is StartDate aligned forward to the lecture weekday, and
// every subsequent occurrence is exactly 7*IntervalWeeks days later. An
// occurrence is emitted only if its trigger is strictly after now and its
// calendar date is within [StartDate, EndDate].
func Expand(rec Recurrence, day clock.DayOfWeek, t clock.TimeOfDay, leadMinutes int, h Horizon, now time.Time) []time.Time {
	if err := rec.Validate(); err != nil {
		return nil
	}

	step := rec.IntervalWeeks * 7
	maxCount := h.MaxCount
	if maxCount <= 0 {
		maxCount = DefaultHorizonCount
	}

	// Anchor at the series start, aligned forward to the lecture weekday.
	// The start date's calendar day is interpreted in now's location so that
	// comparisons against now are meaningful.
	sd := rec.StartDate
	anchor := time.Date(sd.Year(), sd.Month(), sd.Day(), t.Hour, t.Minute, 0, 0, now.Location())
	for clock.CurrentDay(anchor) != day {
		anchor = anchor.AddDate(0, 0, 1)
	}

	lead := time.Duration(leadMinutes) * time.Minute

	// Skip occurrences whose trigger has already passed, keeping the
	// start-date parity intact.
	for !anchor.Add(-lead).After(now) {
		anchor = anchor.AddDate(0, 0, step)
		if rec.EndDate != nil && dateBefore(*rec.EndDate, anchor) {
			return nil
		}
	}

	var out []time.Time
	for len(out) < maxCount {
		if rec.EndDate != nil && dateBefore(*rec.EndDate, anchor) {
			break
		}
		if !h.MaxDate.IsZero() && anchor.After(h.MaxDate) {
			break
		}
		out = append(out, anchor)
		anchor = anchor.AddDate(0, 0, step)
	}
	return out
}

// dateBefore reports whether a's calendar date is strictly before b's,
// ignoring the time of day.
func dateBefore(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	if ay != by {
		return ay < by
	}
	if am != bm {
		return am < bm
	}
	return ad < bd
}
