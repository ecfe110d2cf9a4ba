// Package notify orchestrates reminder scheduling against an injected
// notification dispatcher: creating, replacing and cancelling the handles
// recorded on lecture, exam and assignment records.
package notify

import (
	"context"
	"time"
)

// Content is the user-visible payload of a reminder.
type Content struct {
	Title string
	Body  string
	Data  map[string]any
}

// Dispatcher is the platform notification boundary. Weekday follows the
// dispatcher convention, Sunday=1 .. Saturday=7 (see clock.DispatcherWeekday).
// Returned handles are opaque; Cancel is idempotent and ignores unknown
// handles.
type Dispatcher interface {
	ScheduleRepeatingWeekly(ctx context.Context, content Content, weekday, hour, minute int) (string, error)
	ScheduleOnce(ctx context.Context, content Content, at time.Time) (string, error)
	Cancel(ctx context.Context, handle string) error
}

// NoopDispatcher is the null-object dispatcher for environments without a
// notification capability. Scheduling yields no handle and no error, so
// records still save; cancellation is a no-op.
type NoopDispatcher struct{}

func (NoopDispatcher) ScheduleRepeatingWeekly(context.Context, Content, int, int, int) (string, error) {
	return "", nil
}

func (NoopDispatcher) ScheduleOnce(context.Context, Content, time.Time) (string, error) {
	return "", nil
}

func (NoopDispatcher) Cancel(context.Context, string) error {
	return nil
}
