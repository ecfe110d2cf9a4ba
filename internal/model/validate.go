package model

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"remindme/internal/clock"
)

// Input limits, matching the add/edit form rules.
const (
	MaxCourseNameLength = 100
	MaxLocationLength   = 200
	MaxLectureMinutes   = 12 * 60
)

var ErrValidation = errors.New("validation failed")

// harmfulPattern rejects markup-ish characters in free-text fields.
var harmfulPattern = regexp.MustCompile(`[<>{}\[\]\\]`)

// Validate checks the lecture's user-entered fields and recurrence
// descriptor. Time strings are validated strictly; a malformed time is
// surfaced here rather than silently coerced later.
func (l *Lecture) Validate() error {
	var errs []error

	name := strings.TrimSpace(l.CourseName)
	switch {
	case name == "":
		errs = append(errs, fmt.Errorf("%w: course name is required", ErrValidation))
	case len(name) > MaxCourseNameLength:
		errs = append(errs, fmt.Errorf("%w: course name must be at most %d characters", ErrValidation, MaxCourseNameLength))
	case harmfulPattern.MatchString(name):
		errs = append(errs, fmt.Errorf("%w: course name contains invalid characters", ErrValidation))
	}

	if l.DayOfWeek < clock.Monday || l.DayOfWeek > clock.Sunday {
		errs = append(errs, fmt.Errorf("%w: day of week out of range", ErrValidation))
	}

	start, startErr := clock.ParseTime(l.StartTime)
	if startErr != nil {
		errs = append(errs, startErr)
	}
	end, endErr := clock.ParseTime(l.EndTime)
	if endErr != nil {
		errs = append(errs, endErr)
	}
	if startErr == nil && endErr == nil {
		duration := end.MinutesOfDay() - start.MinutesOfDay()
		if duration <= 0 {
			errs = append(errs, fmt.Errorf("%w: end time must be after start time", ErrValidation))
		} else if duration > MaxLectureMinutes {
			errs = append(errs, fmt.Errorf("%w: class duration cannot exceed 12 hours", ErrValidation))
		}
	}

	loc := strings.TrimSpace(l.Location)
	if len(loc) > MaxLocationLength {
		errs = append(errs, fmt.Errorf("%w: location must be at most %d characters", ErrValidation, MaxLocationLength))
	} else if harmfulPattern.MatchString(loc) {
		errs = append(errs, fmt.Errorf("%w: location contains invalid characters", ErrValidation))
	}

	if l.Recurrence != nil {
		if err := l.Recurrence.Validate(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Validate checks the exam's user-entered fields.
func (e *Exam) Validate() error {
	var errs []error
	if strings.TrimSpace(e.CourseName) == "" {
		errs = append(errs, fmt.Errorf("%w: course name is required", ErrValidation))
	}
	if e.Date.IsZero() {
		errs = append(errs, fmt.Errorf("%w: exam date is required", ErrValidation))
	}
	return errors.Join(errs...)
}

// Validate checks the assignment's user-entered fields.
func (a *Assignment) Validate() error {
	var errs []error
	if strings.TrimSpace(a.Title) == "" {
		errs = append(errs, fmt.Errorf("%w: title is required", ErrValidation))
	}
	if a.DueDate.IsZero() {
		errs = append(errs, fmt.Errorf("%w: due date is required", ErrValidation))
	}
	switch a.Priority {
	case "low", "medium", "high":
	case "":
		a.Priority = "medium"
	default:
		errs = append(errs, fmt.Errorf("%w: priority must be low, medium or high", ErrValidation))
	}
	return errors.Join(errs...)
}
