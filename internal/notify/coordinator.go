package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"remindme/internal/clock"
	appLog "remindme/internal/log"
	"remindme/internal/model"
	"remindme/internal/schedule"
)

// SecondaryOffsetMinutes is the lead time of the fixed early reminder.
const SecondaryOffsetMinutes = 120

// Coordinator drives the per-record reminder lifecycle. Dispatcher failures
// are logged and degrade to absent handles; they never abort scheduling of
// sibling reminders. All cancellation is best-effort.
type Coordinator struct {
	dispatcher      Dispatcher
	secondaryOffset int
	horizonCount    int

	nowFn func() time.Time
}

// NewCoordinator wires a coordinator to the given dispatcher. horizonCount
// caps how many discrete biweekly alarms are pre-scheduled; zero means the
// expander default.
func NewCoordinator(d Dispatcher, horizonCount int) *Coordinator {
	return &Coordinator{
		dispatcher:      d,
		secondaryOffset: SecondaryOffsetMinutes,
		horizonCount:    horizonCount,
		nowFn:           time.Now,
	}
}

// SetClock overrides the time source, for tests and for pinning a timezone.
func (c *Coordinator) SetClock(fn func() time.Time) {
	c.nowFn = fn
}

// ScheduleLecture schedules the lecture's reminders and records the
// resulting handles on the record: the repeating weekly lead-time reminder,
// the repeating 2-hour reminder, and (for biweekly series only) one discrete
// alarm per occurrence within the horizon. The three groups are independent
// and are issued concurrently.
//
// Only a malformed start time is returned as an error; dispatcher rejections
// leave the corresponding handle empty.
func (c *Coordinator) ScheduleLecture(ctx context.Context, lec *model.Lecture, offsetMinutes int) error {
	start, err := clock.ParseTime(lec.StartTime)
	if err != nil {
		return err
	}
	now := c.nowFn()

	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		lec.NotificationHandle = c.scheduleWeekly(ctx, lec, start, offsetMinutes, now,
			leadContent(lec, offsetMinutes))
	}()

	go func() {
		defer wg.Done()
		lec.SecondaryHandle = c.scheduleWeekly(ctx, lec, start, c.secondaryOffset, now,
			secondaryContent(lec))
	}()

	go func() {
		defer wg.Done()
		lec.AlarmHandles = c.scheduleDiscreteAlarms(ctx, lec, start, offsetMinutes, now)
	}()

	wg.Wait()
	return nil
}

// scheduleWeekly registers one repeating weekly reminder firing leadMinutes
// before the lecture slot. The dispatcher weekday is derived from the
// trigger instant, not the lecture day: a lead time crossing midnight moves
// the reminder to the previous weekday.
func (c *Coordinator) scheduleWeekly(ctx context.Context, lec *model.Lecture, start clock.TimeOfDay, leadMinutes int, now time.Time, content Content) string {
	occ := schedule.NextOccurrence(lec.DayOfWeek, start, leadMinutes, now)
	trigger := occ.Add(-time.Duration(leadMinutes) * time.Minute)
	weekday := clock.DispatcherWeekday(clock.CurrentDay(trigger))

	handle, err := c.dispatcher.ScheduleRepeatingWeekly(ctx, content, weekday, trigger.Hour(), trigger.Minute())
	if err != nil {
		appLog.Error("weekly reminder scheduling failed", err,
			"lecture", lec.ID, "course", lec.CourseName, "lead_minutes", leadMinutes)
		return ""
	}
	if handle != "" {
		appLog.Debug("weekly reminder scheduled",
			"lecture", lec.ID, "weekday", weekday, "trigger", trigger.Format("15:04"), "handle", handle)
	}
	return handle
}

// scheduleDiscreteAlarms registers one exact alarm per future biweekly
// occurrence within the horizon. Any non-biweekly recurrence (including an
// explicit weekly one) yields no alarms.
func (c *Coordinator) scheduleDiscreteAlarms(ctx context.Context, lec *model.Lecture, start clock.TimeOfDay, offsetMinutes int, now time.Time) []string {
	if lec.Recurrence == nil || lec.Recurrence.Kind != schedule.KindBiweekly {
		return nil
	}

	occs := schedule.Expand(*lec.Recurrence, lec.DayOfWeek, start, offsetMinutes,
		schedule.Horizon{MaxCount: c.horizonCount}, now)

	handles := make([]string, 0, len(occs))
	for i, at := range occs {
		occ := schedule.At(at, offsetMinutes)
		content := leadContent(lec, offsetMinutes)
		content.Data["alarm_index"] = i
		handle, err := c.dispatcher.ScheduleOnce(ctx, content, occ.Trigger)
		if err != nil {
			appLog.Error("discrete alarm scheduling failed", err,
				"lecture", lec.ID, "trigger", occ.Trigger.Format(time.RFC3339))
			continue
		}
		if handle != "" {
			handles = append(handles, handle)
		}
	}
	if len(handles) > 0 {
		appLog.Info("discrete alarms scheduled", "lecture", lec.ID, "count", len(handles))
	}
	return handles
}

// UnscheduleLecture cancels every recorded handle and clears them. Failures
// (e.g. a handle already consumed) are swallowed; cancellation is idempotent
// from the caller's perspective.
func (c *Coordinator) UnscheduleLecture(ctx context.Context, lec *model.Lecture) {
	for _, handle := range lec.Handles() {
		if err := c.dispatcher.Cancel(ctx, handle); err != nil {
			appLog.Warn("reminder cancellation failed", "lecture", lec.ID, "handle", handle, "err", err)
		}
	}
	lec.ClearHandles()
}

// RescheduleLecture replaces the lecture's reminders. All old handles are
// cancelled before any new scheduling starts, so old and new reminders are
// never live at the same time.
func (c *Coordinator) RescheduleLecture(ctx context.Context, lec *model.Lecture, offsetMinutes int) error {
	c.UnscheduleLecture(ctx, lec)
	return c.ScheduleLecture(ctx, lec, offsetMinutes)
}

// ScheduleExam registers the exam's one-shot reminder, offsetMinutes before
// the exam. A trigger already in the past schedules nothing.
func (c *Coordinator) ScheduleExam(ctx context.Context, exam *model.Exam, offsetMinutes int) {
	trigger := exam.Date.Add(-time.Duration(offsetMinutes) * time.Minute)
	if !trigger.After(c.nowFn()) {
		return
	}
	content := Content{
		Title: exam.CourseName,
		Body:  fmt.Sprintf("Exam starts in %s%s", leadLabel(offsetMinutes), atLocation(exam.Location)),
		Data:  map[string]any{"exam_id": exam.ID, "type": "exam-reminder"},
	}
	handle, err := c.dispatcher.ScheduleOnce(ctx, content, trigger)
	if err != nil {
		appLog.Error("exam reminder scheduling failed", err, "exam", exam.ID)
		return
	}
	exam.ReminderHandle = handle
}

// UnscheduleExam cancels the exam's reminder, if any.
func (c *Coordinator) UnscheduleExam(ctx context.Context, exam *model.Exam) {
	if exam.ReminderHandle == "" {
		return
	}
	if err := c.dispatcher.Cancel(ctx, exam.ReminderHandle); err != nil {
		appLog.Warn("exam reminder cancellation failed", "exam", exam.ID, "err", err)
	}
	exam.ReminderHandle = ""
}

// RescheduleExam replaces the exam's reminder, cancel first.
func (c *Coordinator) RescheduleExam(ctx context.Context, exam *model.Exam, offsetMinutes int) {
	c.UnscheduleExam(ctx, exam)
	c.ScheduleExam(ctx, exam, offsetMinutes)
}

// ScheduleAssignment registers a due-date reminder for an incomplete
// assignment. Completed or overdue assignments schedule nothing.
func (c *Coordinator) ScheduleAssignment(ctx context.Context, a *model.Assignment, offsetMinutes int) {
	if a.IsCompleted {
		return
	}
	trigger := a.DueDate.Add(-time.Duration(offsetMinutes) * time.Minute)
	if !trigger.After(c.nowFn()) {
		return
	}
	content := Content{
		Title: a.Title,
		Body:  fmt.Sprintf("Due in %s", leadLabel(offsetMinutes)),
		Data:  map[string]any{"assignment_id": a.ID, "type": "assignment-reminder"},
	}
	handle, err := c.dispatcher.ScheduleOnce(ctx, content, trigger)
	if err != nil {
		appLog.Error("assignment reminder scheduling failed", err, "assignment", a.ID)
		return
	}
	a.ReminderHandle = handle
}

// UnscheduleAssignment cancels the assignment's reminder, if any.
func (c *Coordinator) UnscheduleAssignment(ctx context.Context, a *model.Assignment) {
	if a.ReminderHandle == "" {
		return
	}
	if err := c.dispatcher.Cancel(ctx, a.ReminderHandle); err != nil {
		appLog.Warn("assignment reminder cancellation failed", "assignment", a.ID, "err", err)
	}
	a.ReminderHandle = ""
}

// Resync re-derives every record's reminders from scratch: cancel all
// recorded handles, then schedule against the current time. Run at startup,
// on the periodic sweep, and after a settings change.
func (c *Coordinator) Resync(ctx context.Context, lectures []*model.Lecture, exams []*model.Exam, assignments []*model.Assignment, offsetMinutes int) {
	for _, lec := range lectures {
		if err := c.RescheduleLecture(ctx, lec, offsetMinutes); err != nil {
			appLog.Error("resync: lecture skipped", err, "lecture", lec.ID)
		}
	}
	for _, exam := range exams {
		c.RescheduleExam(ctx, exam, offsetMinutes)
	}
	for _, a := range assignments {
		c.UnscheduleAssignment(ctx, a)
		c.ScheduleAssignment(ctx, a, offsetMinutes)
	}
	appLog.Info("resync completed",
		"lectures", len(lectures), "exams", len(exams), "assignments", len(assignments))
}

func leadContent(lec *model.Lecture, offsetMinutes int) Content {
	return Content{
		Title: lec.CourseName,
		Body:  fmt.Sprintf("Starts in %s%s", leadLabel(offsetMinutes), atLocation(lec.Location)),
		Data:  map[string]any{"lecture_id": lec.ID},
	}
}

func secondaryContent(lec *model.Lecture) Content {
	return Content{
		Title: lec.CourseName,
		Body:  fmt.Sprintf("Class starts in 2 hours%s", atLocation(lec.Location)),
		Data:  map[string]any{"lecture_id": lec.ID, "type": "2hr-reminder"},
	}
}

func leadLabel(minutes int) string {
	if minutes >= 60 && minutes%60 == 0 {
		h := minutes / 60
		if h == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", h)
	}
	return fmt.Sprintf("%d minutes", minutes)
}

func atLocation(loc string) string {
	if loc == "" {
		return ""
	}
	return " at " + loc
}
