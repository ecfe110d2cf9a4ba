// Package ics renders the stored schedule as an iCalendar feed so external
// calendar apps can mirror it. Each lecture becomes a recurring VEVENT whose
// DTSTART is its next occurrence instant (never the reminder trigger) with a
// weekly or biweekly RRULE; exams become single VEVENTs.
package ics

import (
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"remindme/internal/clock"
	appLog "remindme/internal/log"
	"remindme/internal/model"
	"remindme/internal/schedule"
)

const calendarName = "RemindMe Lectures"

var rruleWeekdays = [7]rrule.Weekday{
	rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA, rrule.SU,
}

// Feed serializes the lectures and exams into an ICS document. Lectures with
// malformed times are skipped with a log line rather than failing the whole
// feed.
func Feed(lectures []model.Lecture, exams []model.Exam, offsetMinutes int, now time.Time) (string, error) {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//remindme//schedule//EN")
	cal.SetName(calendarName)

	for _, lec := range lectures {
		if err := addLecture(cal, lec, offsetMinutes, now); err != nil {
			appLog.Warn("ics feed: lecture skipped", "lecture", lec.ID, "err", err)
		}
	}

	for _, exam := range exams {
		if exam.Date.Before(now) {
			continue
		}
		addExam(cal, exam)
	}

	return cal.Serialize(), nil
}

func addLecture(cal *ical.Calendar, lec model.Lecture, offsetMinutes int, now time.Time) error {
	start, err := clock.ParseTime(lec.StartTime)
	if err != nil {
		return err
	}
	end, err := clock.ParseTime(lec.EndTime)
	if err != nil {
		return err
	}

	// The mirrored event starts at the occurrence instant; the lead offset
	// only matters for picking a date whose reminder is still schedulable.
	startAt := schedule.NextOccurrence(lec.DayOfWeek, start, offsetMinutes, now)
	endAt := end.On(startAt)
	if !endAt.After(startAt) {
		// Lecture runs past midnight.
		endAt = endAt.AddDate(0, 0, 1)
	}

	rr, err := lectureRule(lec)
	if err != nil {
		return err
	}

	ev := cal.AddEvent("lecture-" + lec.ID + "@remindme")
	ev.SetDtStampTime(now)
	ev.SetStartAt(startAt)
	ev.SetEndAt(endAt)
	ev.SetSummary(lec.CourseName)
	ev.SetDescription("Created by RemindMe")
	if lec.Location != "" {
		ev.SetLocation(lec.Location)
	}
	ev.SetProperty(ical.ComponentPropertyRrule, rr)
	return nil
}

// lectureRule builds the RRULE value for a lecture: FREQ=WEEKLY with the
// recurrence's interval and an UNTIL clamp at the end of the series.
func lectureRule(lec model.Lecture) (string, error) {
	opt := rrule.ROption{
		Freq:      rrule.WEEKLY,
		Interval:  1,
		Byweekday: []rrule.Weekday{rruleWeekdays[lec.DayOfWeek]},
	}
	if rec := lec.Recurrence; rec != nil {
		if rec.Kind == schedule.KindBiweekly {
			opt.Interval = 2
		}
		if rec.EndDate != nil {
			ed := *rec.EndDate
			opt.Until = time.Date(ed.Year(), ed.Month(), ed.Day(), 23, 59, 59, 0, time.UTC)
		}
	}
	r, err := rrule.NewRRule(opt)
	if err != nil {
		return "", fmt.Errorf("build rrule: %w", err)
	}
	return r.OrigOptions.RRuleString(), nil
}

func addExam(cal *ical.Calendar, exam model.Exam) {
	ev := cal.AddEvent("exam-" + exam.ID + "@remindme")
	ev.SetDtStampTime(exam.Date)
	ev.SetStartAt(exam.Date)
	ev.SetEndAt(exam.Date.Add(time.Hour))
	ev.SetSummary("Exam: " + exam.CourseName)
	if exam.Location != "" {
		ev.SetLocation(exam.Location)
	}
	if exam.Notes != "" {
		ev.SetDescription(exam.Notes)
	}
}
