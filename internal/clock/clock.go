// Package clock provides the wall-clock primitives shared by the scheduling
// engine: "HH:MM" times of day, Monday-first weekday indexing, and the
// conversion to the notification dispatcher's Sunday-first numbering.
package clock

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// ErrTimeFormat is returned for time strings that do not match HH:MM.
var ErrTimeFormat = errors.New("invalid time format, expected HH:MM")

// ErrDayName is returned for unknown weekday names.
var ErrDayName = errors.New("unknown day of week")

var timePattern = regexp.MustCompile(`^([01]?[0-9]|2[0-3]):[0-5][0-9]$`)

// TimeOfDay is an immutable wall-clock time without date or zone.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTime parses a "HH:MM" string. A single-digit hour ("9:30") is
// accepted; formatting always zero-pads.
func ParseTime(s string) (TimeOfDay, error) {
	if !timePattern.MatchString(s) {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrTimeFormat, s)
	}
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrTimeFormat, s)
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

// String formats the time zero-padded, so ParseTime round-trips for
// canonical two-digit input.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// MinutesOfDay returns the minute offset from midnight, used for same-day
// ordering and "is the lecture running now" checks.
func (t TimeOfDay) MinutesOfDay() int {
	return t.Hour*60 + t.Minute
}

// On combines the time of day with the calendar date of the given instant,
// in that instant's location.
func (t TimeOfDay) On(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), t.Hour, t.Minute, 0, 0, date.Location())
}

// DayOfWeek uses a Monday-first index (Monday=0 .. Sunday=6) for modular
// week arithmetic. This is distinct from both time.Weekday (Sunday=0) and
// the dispatcher's Sunday=1..Saturday=7 numbering.
type DayOfWeek int

const (
	Monday DayOfWeek = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

var dayNames = [7]string{
	"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday",
}

func (d DayOfWeek) String() string {
	if d < Monday || d > Sunday {
		return fmt.Sprintf("DayOfWeek(%d)", int(d))
	}
	return dayNames[d]
}

// ParseDay resolves a weekday name ("Monday".."Sunday") to its index.
func ParseDay(s string) (DayOfWeek, error) {
	for i, name := range dayNames {
		if name == s {
			return DayOfWeek(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrDayName, s)
}

// MarshalJSON encodes the day as its name, matching the stored record format.
func (d DayOfWeek) MarshalJSON() ([]byte, error) {
	if d < Monday || d > Sunday {
		return nil, fmt.Errorf("%w: index %d", ErrDayName, int(d))
	}
	return []byte(`"` + dayNames[d] + `"`), nil
}

func (d *DayOfWeek) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("%w: %s", ErrDayName, string(data))
	}
	parsed, err := ParseDay(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// CurrentDay returns the Monday-first weekday of the given instant,
// converting from time.Weekday's Sunday-first numbering.
func CurrentDay(now time.Time) DayOfWeek {
	return DayOfWeek((int(now.Weekday()) + 6) % 7)
}

// DispatcherWeekday converts a Monday-first index to the dispatcher's
// Sunday=1..Saturday=7 convention. This is the single place where the two
// numberings meet.
func DispatcherWeekday(d DayOfWeek) int {
	return (int(d)+1)%7 + 1
}

// IsNow reports whether the half-open interval [start, end) of minutes of
// the current day contains now's wall-clock time.
func IsNow(start, end TimeOfDay, now time.Time) bool {
	cur := now.Hour()*60 + now.Minute()
	return cur >= start.MinutesOfDay() && cur < end.MinutesOfDay()
}

// Countdown renders a short "in Xh Ym" label for a start time later today,
// or "" once the start has passed.
func Countdown(start TimeOfDay, now time.Time) string {
	diff := start.MinutesOfDay() - (now.Hour()*60 + now.Minute())
	if diff <= 0 {
		return ""
	}
	if diff < 60 {
		return fmt.Sprintf("in %d min", diff)
	}
	h := diff / 60
	m := diff % 60
	if m == 0 {
		return fmt.Sprintf("in %dh", h)
	}
	return fmt.Sprintf("in %dh %dm", h, m)
}
