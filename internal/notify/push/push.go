// Package push implements the notification dispatcher on top of web push:
// trigger instants are tracked by an in-process timer loop, and when one
// fires the payload is delivered to every active browser subscription.
// Weekly entries re-arm themselves seven days out after each delivery.
package push

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	appLog "remindme/internal/log"
	"remindme/internal/notify"
)

// ErrPastTrigger is returned when a one-shot trigger is not in the future.
var ErrPastTrigger = errors.New("trigger instant is in the past")

// SubscriptionSource yields the push subscriptions to deliver to. The store
// satisfies this.
type SubscriptionSource interface {
	ActiveSubscriptions() ([]Target, error)
}

// Target is one deliverable push endpoint.
type Target struct {
	Endpoint string
	Keys     map[string]string
}

type entry struct {
	content notify.Content
	next    time.Time
	weekly  bool
}

// Dispatcher is a notify.Dispatcher backed by a timer loop and a web-push
// sender.
type Dispatcher struct {
	sender *Sender
	subs   SubscriptionSource

	mu      sync.Mutex
	entries map[string]*entry
	wake    chan struct{}

	nowFn func() time.Time
}

// NewDispatcher builds an idle dispatcher; call Start to run the timer loop.
func NewDispatcher(sender *Sender, subs SubscriptionSource) *Dispatcher {
	return &Dispatcher{
		sender:  sender,
		subs:    subs,
		entries: make(map[string]*entry),
		wake:    make(chan struct{}, 1),
		nowFn:   time.Now,
	}
}

// Start runs the delivery loop until ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	go d.run(ctx)
}

func (d *Dispatcher) ScheduleRepeatingWeekly(_ context.Context, content notify.Content, weekday, hour, minute int) (string, error) {
	if weekday < 1 || weekday > 7 {
		return "", fmt.Errorf("weekday out of range: %d", weekday)
	}
	first := nextWeekdayInstant(d.nowFn(), weekday, hour, minute)
	return d.add(content, first, true), nil
}

func (d *Dispatcher) ScheduleOnce(_ context.Context, content notify.Content, at time.Time) (string, error) {
	if !at.After(d.nowFn()) {
		return "", fmt.Errorf("%w: %s", ErrPastTrigger, at.Format(time.RFC3339))
	}
	return d.add(content, at, false), nil
}

// Cancel removes the entry. Unknown or already-consumed handles are ignored.
func (d *Dispatcher) Cancel(_ context.Context, handle string) error {
	d.mu.Lock()
	delete(d.entries, handle)
	d.mu.Unlock()
	d.poke()
	return nil
}

// Pending reports how many entries are currently armed.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

func (d *Dispatcher) add(content notify.Content, at time.Time, weekly bool) string {
	handle := uuid.NewString()
	d.mu.Lock()
	d.entries[handle] = &entry{content: content, next: at, weekly: weekly}
	d.mu.Unlock()
	d.poke()
	return handle
}

func (d *Dispatcher) poke() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) run(ctx context.Context) {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		next, ok := d.earliest()
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		if ok {
			wait := time.Until(next)
			if wait < 0 {
				wait = 0
			}
			timer.Reset(wait)
		} else {
			// Nothing armed; sleep until poked.
			timer.Reset(24 * time.Hour)
		}

		select {
		case <-ctx.Done():
			return
		case <-d.wake:
		case <-timer.C:
			d.fireDue()
		}
	}
}

func (d *Dispatcher) earliest() (time.Time, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out time.Time
	found := false
	for _, e := range d.entries {
		if !found || e.next.Before(out) {
			out = e.next
			found = true
		}
	}
	return out, found
}

// fireDue delivers every entry whose trigger has arrived, re-arming weekly
// entries and consuming one-shot ones.
func (d *Dispatcher) fireDue() {
	now := d.nowFn()

	d.mu.Lock()
	var due []notify.Content
	for handle, e := range d.entries {
		if e.next.After(now) {
			continue
		}
		due = append(due, e.content)
		if e.weekly {
			// Skip occurrences missed during downtime instead of
			// bursting a delivery for each of them.
			for !e.next.After(now) {
				e.next = e.next.AddDate(0, 0, 7)
			}
		} else {
			delete(d.entries, handle)
		}
	}
	d.mu.Unlock()

	for _, content := range due {
		go d.deliver(content)
	}
}

func (d *Dispatcher) deliver(content notify.Content) {
	targets, err := d.subs.ActiveSubscriptions()
	if err != nil {
		appLog.Error("push delivery: listing subscriptions failed", err)
		return
	}
	if len(targets) == 0 {
		appLog.Debug("push delivery skipped, no active subscriptions", "title", content.Title)
		return
	}
	delivered := 0
	for _, target := range targets {
		if err := d.sender.Send(target, content); err != nil {
			appLog.Error("push delivery failed", err, "endpoint", target.Endpoint)
			continue
		}
		delivered++
	}
	appLog.Info("push delivered", "title", content.Title, "subscriptions", delivered)
}

// nextWeekdayInstant finds the first instant strictly after now that falls
// on the dispatcher weekday (Sunday=1..Saturday=7) at hour:minute.
func nextWeekdayInstant(now time.Time, weekday, hour, minute int) time.Time {
	target := time.Weekday(weekday - 1)
	candidate := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	for i := 0; i < 8; i++ {
		if candidate.Weekday() == target && candidate.After(now) {
			return candidate
		}
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}
