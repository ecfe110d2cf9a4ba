// Package model holds the persisted record types: lectures, exams,
// assignments, user settings and push subscriptions. Records are plain data;
// the store owns persistence and the coordinator only borrows snapshots long
// enough to refresh their notification handles.
package model

import (
	"time"

	"remindme/internal/clock"
	"remindme/internal/schedule"
)

// Lecture is a recurring class slot. StartTime/EndTime are canonical "HH:MM"
// strings. Handle fields are opaque dispatcher identifiers assigned after
// scheduling; they must be cancelled before the record is deleted or
// rescheduled, otherwise reminders leak or duplicate.
type Lecture struct {
	ID         string               `json:"id"`
	CourseName string               `json:"course_name"`
	Lecturer   string               `json:"lecturer,omitempty"`
	DayOfWeek  clock.DayOfWeek      `json:"day_of_week"`
	StartTime  string               `json:"start_time"`
	EndTime    string               `json:"end_time"`
	Location   string               `json:"location,omitempty"`
	Color      string               `json:"color,omitempty"`
	Recurrence *schedule.Recurrence `json:"recurrence,omitempty"`

	// NotificationHandle is the repeating weekly lead-time reminder.
	NotificationHandle string `json:"notification_handle,omitempty"`
	// SecondaryHandle is the repeating 2-hour reminder.
	SecondaryHandle string `json:"secondary_handle,omitempty"`
	// AlarmHandles are the discrete biweekly alarms within the horizon.
	AlarmHandles []string `json:"alarm_handles,omitempty"`
}

// Handles returns every recorded dispatcher handle on the lecture.
func (l *Lecture) Handles() []string {
	out := make([]string, 0, len(l.AlarmHandles)+2)
	if l.NotificationHandle != "" {
		out = append(out, l.NotificationHandle)
	}
	if l.SecondaryHandle != "" {
		out = append(out, l.SecondaryHandle)
	}
	out = append(out, l.AlarmHandles...)
	return out
}

// ClearHandles drops all recorded handles, after cancellation.
func (l *Lecture) ClearHandles() {
	l.NotificationHandle = ""
	l.SecondaryHandle = ""
	l.AlarmHandles = nil
}

// Exam is a one-shot dated event with a single reminder.
type Exam struct {
	ID             string    `json:"id"`
	CourseName     string    `json:"course_name"`
	Date           time.Time `json:"date"`
	Location       string    `json:"location,omitempty"`
	Notes          string    `json:"notes,omitempty"`
	Color          string    `json:"color,omitempty"`
	ReminderHandle string    `json:"reminder_handle,omitempty"`
}

// Assignment is a dated task linked to a lecture.
type Assignment struct {
	ID             string    `json:"id"`
	LectureID      string    `json:"lecture_id"`
	Title          string    `json:"title"`
	Description    string    `json:"description,omitempty"`
	DueDate        time.Time `json:"due_date"`
	IsCompleted    bool      `json:"is_completed"`
	Priority       string    `json:"priority"`
	ReminderHandle string    `json:"reminder_handle,omitempty"`
}

// UpcomingAssignments returns the incomplete assignments due after now,
// soonest first, capped at limit.
func UpcomingAssignments(assignments []Assignment, limit int, now time.Time) []Assignment {
	out := make([]Assignment, 0, limit)
	for _, a := range assignments {
		if a.IsCompleted || !a.DueDate.After(now) {
			continue
		}
		out = append(out, a)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].DueDate.Before(out[j-1].DueDate); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Settings are the user-tunable reminder knobs.
type Settings struct {
	// NotificationOffsetMinutes is the lead time of the primary reminder.
	NotificationOffsetMinutes int `json:"notification_offset_minutes"`
}

// DefaultSettings mirrors the app defaults (15 minute lead).
func DefaultSettings() Settings {
	return Settings{NotificationOffsetMinutes: 15}
}

// Subscription is a registered web-push endpoint reminders are delivered to.
type Subscription struct {
	ID        string            `json:"id"`
	Endpoint  string            `json:"endpoint"`
	Keys      map[string]string `json:"keys"`
	CreatedAt time.Time         `json:"created_at"`
	Active    bool              `json:"active"`
}
