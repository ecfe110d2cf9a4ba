package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remindme/internal/clock"
	"remindme/internal/model"
	"remindme/internal/schedule"
)

// fakeDispatcher records every call so tests can assert on handle lifecycles
// and call ordering.
type fakeDispatcher struct {
	mu  sync.Mutex
	seq int

	weekly map[string]weeklyCall
	once   map[string]onceCall
	order  []string // "weekly:h", "once:h", "cancel:h"

	failWeekly bool
	failOnce   bool
	failCancel bool
}

type weeklyCall struct {
	content Content
	weekday int
	hour    int
	minute  int
}

type onceCall struct {
	content Content
	at      time.Time
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{
		weekly: make(map[string]weeklyCall),
		once:   make(map[string]onceCall),
	}
}

func (f *fakeDispatcher) ScheduleRepeatingWeekly(_ context.Context, content Content, weekday, hour, minute int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWeekly {
		return "", errors.New("weekly rejected")
	}
	f.seq++
	handle := fmt.Sprintf("weekly-%d", f.seq)
	f.weekly[handle] = weeklyCall{content: content, weekday: weekday, hour: hour, minute: minute}
	f.order = append(f.order, "weekly:"+handle)
	return handle, nil
}

func (f *fakeDispatcher) ScheduleOnce(_ context.Context, content Content, at time.Time) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOnce {
		return "", errors.New("once rejected")
	}
	f.seq++
	handle := fmt.Sprintf("once-%d", f.seq)
	f.once[handle] = onceCall{content: content, at: at}
	f.order = append(f.order, "once:"+handle)
	return handle, nil
}

func (f *fakeDispatcher) Cancel(_ context.Context, handle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.order = append(f.order, "cancel:"+handle)
	if f.failCancel {
		return errors.New("cancel rejected")
	}
	delete(f.weekly, handle)
	delete(f.once, handle)
	return nil
}

// Wednesday morning.
var testNow = time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)

func newTestCoordinator(d Dispatcher) *Coordinator {
	c := NewCoordinator(d, 4)
	c.SetClock(func() time.Time { return testNow })
	return c
}

func weeklyLecture() *model.Lecture {
	return &model.Lecture{
		ID:         "lec-1",
		CourseName: "CS101",
		DayOfWeek:  clock.Wednesday,
		StartTime:  "10:00",
		EndTime:    "11:00",
		Location:   "Room 101",
	}
}

func biweeklyLecture() *model.Lecture {
	lec := weeklyLecture()
	lec.ID = "lec-2"
	lec.DayOfWeek = clock.Monday
	lec.Recurrence = &schedule.Recurrence{
		Kind:          schedule.KindBiweekly,
		IntervalWeeks: 2,
		StartDate:     time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC),
	}
	return lec
}

func TestScheduleLectureRecordsAllHandles(t *testing.T) {
	fd := newFakeDispatcher()
	c := newTestCoordinator(fd)

	lec := weeklyLecture()
	require.NoError(t, c.ScheduleLecture(context.Background(), lec, 15))

	assert.NotEmpty(t, lec.NotificationHandle)
	assert.NotEmpty(t, lec.SecondaryHandle)
	assert.Empty(t, lec.AlarmHandles, "plain weekly lecture gets no discrete alarms")

	primary := fd.weekly[lec.NotificationHandle]
	assert.Equal(t, "CS101", primary.content.Title)
	assert.Contains(t, primary.content.Body, "Starts in 15 minutes")
	assert.Contains(t, primary.content.Body, "at Room 101")
	// Trigger 09:45 on a Wednesday; dispatcher numbering is Sunday=1.
	assert.Equal(t, 4, primary.weekday)
	assert.Equal(t, 9, primary.hour)
	assert.Equal(t, 45, primary.minute)

	secondary := fd.weekly[lec.SecondaryHandle]
	assert.Contains(t, secondary.content.Body, "Class starts in 2 hours")
	assert.Equal(t, "2hr-reminder", secondary.content.Data["type"])
	// 10:00 minus 120 minutes, same Wednesday.
	assert.Equal(t, 4, secondary.weekday)
	assert.Equal(t, 8, secondary.hour)
	assert.Equal(t, 0, secondary.minute)
}

func TestScheduleLectureMalformedTime(t *testing.T) {
	c := newTestCoordinator(newFakeDispatcher())
	lec := weeklyLecture()
	lec.StartTime = "25:00"
	err := c.ScheduleLecture(context.Background(), lec, 15)
	assert.ErrorIs(t, err, clock.ErrTimeFormat)
}

func TestScheduleLectureLeadCrossingMidnight(t *testing.T) {
	fd := newFakeDispatcher()
	c := newTestCoordinator(fd)

	lec := weeklyLecture()
	lec.DayOfWeek = clock.Monday
	lec.StartTime = "00:30"
	lec.EndTime = "02:00"
	require.NoError(t, c.ScheduleLecture(context.Background(), lec, 60))

	// Trigger is Sunday 23:30, so the repeating reminder lives on Sunday.
	primary := fd.weekly[lec.NotificationHandle]
	assert.Equal(t, 1, primary.weekday)
	assert.Equal(t, 23, primary.hour)
	assert.Equal(t, 30, primary.minute)
}

func TestScheduleLectureBiweeklyAlarms(t *testing.T) {
	fd := newFakeDispatcher()
	c := newTestCoordinator(fd)

	lec := biweeklyLecture()
	require.NoError(t, c.ScheduleLecture(context.Background(), lec, 15))

	require.Len(t, lec.AlarmHandles, 4)
	var triggers []time.Time
	for _, handle := range lec.AlarmHandles {
		call, ok := fd.once[handle]
		require.True(t, ok)
		triggers = append(triggers, call.at)
	}
	// Mondays at 09:45, 14 days apart, starting Jan 6.
	assert.Equal(t, time.Date(2025, 1, 6, 9, 45, 0, 0, time.UTC), triggers[0])
	for i := 1; i < len(triggers); i++ {
		assert.Equal(t, 14*24*time.Hour, triggers[i].Sub(triggers[i-1]))
	}
}

func TestScheduleLectureWeeklyRecurrenceSkipsAlarms(t *testing.T) {
	fd := newFakeDispatcher()
	c := newTestCoordinator(fd)

	lec := weeklyLecture()
	lec.Recurrence = &schedule.Recurrence{
		Kind:          schedule.KindWeekly,
		IntervalWeeks: 1,
		StartDate:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, c.ScheduleLecture(context.Background(), lec, 15))

	assert.Empty(t, lec.AlarmHandles)
	assert.Empty(t, fd.once, "no discrete alarms for a weekly recurrence")
}

func TestScheduleLectureFailureDoesNotAbortSiblings(t *testing.T) {
	fd := newFakeDispatcher()
	fd.failWeekly = true
	c := newTestCoordinator(fd)

	lec := biweeklyLecture()
	require.NoError(t, c.ScheduleLecture(context.Background(), lec, 15))

	assert.Empty(t, lec.NotificationHandle)
	assert.Empty(t, lec.SecondaryHandle)
	assert.Len(t, lec.AlarmHandles, 4, "discrete alarms survive weekly failures")
}

func TestRescheduleCancelsBeforeScheduling(t *testing.T) {
	fd := newFakeDispatcher()
	c := newTestCoordinator(fd)
	ctx := context.Background()

	lec := biweeklyLecture()
	require.NoError(t, c.ScheduleLecture(ctx, lec, 15))
	oldHandles := lec.Handles()
	require.NotEmpty(t, oldHandles)

	fd.mu.Lock()
	fd.order = nil
	fd.mu.Unlock()

	require.NoError(t, c.RescheduleLecture(ctx, lec, 30))

	fd.mu.Lock()
	order := append([]string(nil), fd.order...)
	fd.mu.Unlock()

	lastCancel := -1
	firstSchedule := len(order)
	for i, op := range order {
		if strings.HasPrefix(op, "cancel:") {
			lastCancel = i
		} else if i < firstSchedule {
			firstSchedule = i
		}
	}
	assert.Greater(t, firstSchedule, lastCancel, "all cancels must complete before new scheduling")
	assert.Equal(t, len(oldHandles), lastCancel+1)

	// Fresh handles, old ones gone.
	for _, old := range oldHandles {
		assert.NotContains(t, lec.Handles(), old)
	}
}

func TestUnscheduleLectureClearsHandles(t *testing.T) {
	fd := newFakeDispatcher()
	c := newTestCoordinator(fd)
	ctx := context.Background()

	lec := biweeklyLecture()
	require.NoError(t, c.ScheduleLecture(ctx, lec, 15))
	require.NotEmpty(t, lec.Handles())

	c.UnscheduleLecture(ctx, lec)
	assert.Empty(t, lec.Handles())
	assert.Empty(t, fd.weekly)
	assert.Empty(t, fd.once)
}

func TestUnscheduleSwallowsCancelFailures(t *testing.T) {
	fd := newFakeDispatcher()
	c := newTestCoordinator(fd)
	ctx := context.Background()

	lec := weeklyLecture()
	require.NoError(t, c.ScheduleLecture(ctx, lec, 15))

	fd.failCancel = true
	c.UnscheduleLecture(ctx, lec)
	assert.Empty(t, lec.Handles(), "handles cleared even when cancellation fails")

	// Cancelling an already-unscheduled lecture is a no-op.
	c.UnscheduleLecture(ctx, lec)
}

func TestScheduleExamLifecycle(t *testing.T) {
	fd := newFakeDispatcher()
	c := newTestCoordinator(fd)
	ctx := context.Background()

	exam := &model.Exam{
		ID:         "exam-1",
		CourseName: "Algorithms",
		Date:       time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC),
		Location:   "Hall A",
	}
	c.ScheduleExam(ctx, exam, 30)
	require.NotEmpty(t, exam.ReminderHandle)

	call := fd.once[exam.ReminderHandle]
	assert.Equal(t, time.Date(2025, 1, 10, 8, 30, 0, 0, time.UTC), call.at)
	assert.Contains(t, call.content.Body, "Exam starts in 30 minutes")
	assert.Contains(t, call.content.Body, "at Hall A")

	c.UnscheduleExam(ctx, exam)
	assert.Empty(t, exam.ReminderHandle)
	assert.Empty(t, fd.once)
}

func TestScheduleExamInPastIsSkipped(t *testing.T) {
	fd := newFakeDispatcher()
	c := newTestCoordinator(fd)

	exam := &model.Exam{ID: "exam-2", CourseName: "History", Date: testNow.Add(-time.Hour)}
	c.ScheduleExam(context.Background(), exam, 15)
	assert.Empty(t, exam.ReminderHandle)
	assert.Empty(t, fd.once)
}

func TestScheduleAssignmentSkipsCompleted(t *testing.T) {
	fd := newFakeDispatcher()
	c := newTestCoordinator(fd)

	a := &model.Assignment{
		ID:          "as-1",
		Title:       "Problem set 3",
		DueDate:     testNow.Add(48 * time.Hour),
		IsCompleted: true,
	}
	c.ScheduleAssignment(context.Background(), a, 60)
	assert.Empty(t, a.ReminderHandle)

	a.IsCompleted = false
	c.ScheduleAssignment(context.Background(), a, 60)
	require.NotEmpty(t, a.ReminderHandle)
	assert.Equal(t, testNow.Add(47*time.Hour), fd.once[a.ReminderHandle].at)
}

func TestResyncRefreshesEverything(t *testing.T) {
	fd := newFakeDispatcher()
	c := newTestCoordinator(fd)
	ctx := context.Background()

	lec := biweeklyLecture()
	exam := &model.Exam{ID: "exam-1", CourseName: "Algo", Date: testNow.Add(72 * time.Hour)}
	a := &model.Assignment{ID: "as-1", Title: "Essay", DueDate: testNow.Add(24 * time.Hour)}

	c.Resync(ctx, []*model.Lecture{lec}, []*model.Exam{exam}, []*model.Assignment{a}, 15)

	assert.NotEmpty(t, lec.NotificationHandle)
	assert.NotEmpty(t, lec.AlarmHandles)
	assert.NotEmpty(t, exam.ReminderHandle)
	assert.NotEmpty(t, a.ReminderHandle)

	// A second resync replaces every handle without duplicating entries.
	before := len(fd.weekly) + len(fd.once)
	c.Resync(ctx, []*model.Lecture{lec}, []*model.Exam{exam}, []*model.Assignment{a}, 15)
	assert.Equal(t, before, len(fd.weekly)+len(fd.once))
}

func TestNoopDispatcherProducesNoHandles(t *testing.T) {
	c := newTestCoordinator(NoopDispatcher{})
	lec := biweeklyLecture()
	require.NoError(t, c.ScheduleLecture(context.Background(), lec, 15))
	assert.Empty(t, lec.Handles())
	assert.NoError(t, NoopDispatcher{}.Cancel(context.Background(), "anything"))
}
