package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/signalsfoundry/sinr-tracker/timectrl"
)

// Scheduler schedules callbacks to run at specific simulation times. This is
// the capability the interference tracker uses to remove a signal once its
// duration has elapsed.
type Scheduler interface {
	// Now returns the current simulation time.
	Now() time.Time

	// Schedule registers a callback f to run at simulation time 'at'.
	// It returns an opaque event ID that can be used to cancel the event.
	Schedule(at time.Time, f func()) (id string)

	// ScheduleAfter registers f to run d after Now(). Negative delays are
	// treated as zero.
	ScheduleAfter(d time.Duration, f func()) (id string)

	// Cancel attempts to cancel a previously scheduled event.
	// It is a no-op if the ID is unknown or the event already ran.
	Cancel(id string)
}

// Metrics receives scheduler activity. All methods must tolerate a nil receiver
// on the implementation side.
type Metrics interface {
	IncEventsExecuted()
	SetEventsPending(n int)
}

// scheduledEvent represents a single scheduled callback.
type scheduledEvent struct {
	id        string
	when      time.Time
	f         func()
	cancelled bool
}

// EventScheduler is a discrete-event scheduler. Events are kept ordered by
// time; events due at the same instant run in the order they were scheduled.
// Running an event first moves the TimeController to the event's time, so
// simulated time jumps from event to event.
type EventScheduler struct {
	clock   *timectrl.TimeController
	metrics Metrics

	mu      sync.Mutex
	counter uint64
	events  []*scheduledEvent // ordered by 'when' (earliest first), FIFO within a time
	index   map[string]*scheduledEvent
	stopped bool

	wallStart time.Time
}

// Option configures an EventScheduler.
type Option func(*EventScheduler)

// WithMetrics attaches a metrics sink for executed and pending event counts.
func WithMetrics(m Metrics) Option {
	return func(s *EventScheduler) {
		s.metrics = m
	}
}

// New creates a scheduler that advances the given TimeController.
func New(clock *timectrl.TimeController, opts ...Option) *EventScheduler {
	s := &EventScheduler{
		clock: clock,
		index: make(map[string]*scheduledEvent),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the current simulation time from the underlying clock.
func (s *EventScheduler) Now() time.Time {
	return s.clock.Now()
}

// Clock returns the TimeController driven by the scheduler.
func (s *EventScheduler) Clock() *timectrl.TimeController {
	return s.clock
}

// Schedule registers a callback to run at the specified simulation time.
// Events in the past run at the next Step without moving time backwards.
func (s *EventScheduler) Schedule(at time.Time, f func()) (id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counter++
	id = fmt.Sprintf("ev-%d", s.counter)

	ev := &scheduledEvent{
		id:   id,
		when: at,
		f:    f,
	}
	s.addEventLocked(ev)
	s.index[id] = ev
	s.reportPendingLocked()

	return id
}

// ScheduleAfter registers a callback to run d after the current time.
func (s *EventScheduler) ScheduleAfter(d time.Duration, f func()) (id string) {
	if d < 0 {
		d = 0
	}
	return s.Schedule(s.clock.Now().Add(d), f)
}

// addEventLocked inserts an event after every event due at or before its time.
// Caller must hold s.mu lock.
func (s *EventScheduler) addEventLocked(ev *scheduledEvent) {
	idx := sort.Search(len(s.events), func(i int) bool {
		return s.events[i].when.After(ev.when)
	})

	s.events = append(s.events, nil)
	copy(s.events[idx+1:], s.events[idx:])
	s.events[idx] = ev
}

// Cancel attempts to cancel a previously scheduled event.
func (s *EventScheduler) Cancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.index[id]
	if !ok {
		return
	}

	ev.cancelled = true
	delete(s.index, id)
	// Actual removal from s.events is lazy; popNextLocked skips cancelled events.
	s.reportPendingLocked()
}

// Pending returns the number of scheduled, not yet executed, events.
func (s *EventScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.index)
}

// NextEventTime returns the time of the earliest pending event.
func (s *EventScheduler) NextEventTime() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range s.events {
		if !ev.cancelled {
			return ev.when, true
		}
	}
	return time.Time{}, false
}

// popNextLocked removes and returns the earliest non-cancelled event due at or
// before limit. Returns nil if there is none.
// Caller must hold s.mu lock.
func (s *EventScheduler) popNextLocked(limit time.Time, bounded bool) *scheduledEvent {
	for len(s.events) > 0 {
		ev := s.events[0]
		if ev.cancelled {
			s.events = s.events[1:]
			continue
		}
		if bounded && ev.when.After(limit) {
			return nil
		}
		s.events = s.events[1:]
		delete(s.index, ev.id)
		s.reportPendingLocked()
		return ev
	}
	return nil
}

func (s *EventScheduler) reportPendingLocked() {
	if s.metrics != nil {
		s.metrics.SetEventsPending(len(s.index))
	}
}

// Step runs the next pending event, advancing simulated time to it. It reports
// whether an event ran.
func (s *EventScheduler) Step() bool {
	return s.step(context.Background(), time.Time{}, false)
}

func (s *EventScheduler) step(ctx context.Context, limit time.Time, bounded bool) bool {
	s.mu.Lock()
	ev := s.popNextLocked(limit, bounded)
	s.mu.Unlock()
	if ev == nil {
		return false
	}

	s.pace(ctx, ev.when)
	if ctx.Err() != nil {
		// Cancelled while waiting for the wall clock: the event has not run.
		s.requeue(ev)
		return false
	}
	// Past-due events run at the current time; time never moves backwards.
	s.clock.SetTime(ev.when)

	// Execute callback outside the lock so callbacks can schedule more events.
	if ev.f != nil {
		ev.f()
	}
	if s.metrics != nil {
		s.metrics.IncEventsExecuted()
	}
	return true
}

// requeue puts a popped event back at the head of the queue.
func (s *EventScheduler) requeue(ev *scheduledEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append([]*scheduledEvent{ev}, s.events...)
	s.index[ev.id] = ev
	s.reportPendingLocked()
}

// RunUntil executes every event due at or before t, in order, and leaves the
// clock at t. It returns ctx's error if ctx is done first, in which case the
// clock stays at the last executed event and unexecuted events remain pending.
func (s *EventScheduler) RunUntil(ctx context.Context, t time.Time) error {
	s.resetStop()
	for !s.isStopped() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !s.step(ctx, t, true) {
			break
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.isStopped() {
		s.clock.SetTime(t)
	}
	return nil
}

// Run executes events until none are left, Stop is called, or ctx is done.
func (s *EventScheduler) Run(ctx context.Context) error {
	s.resetStop()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.isStopped() {
			return nil
		}
		if !s.step(ctx, time.Time{}, false) {
			return ctx.Err()
		}
	}
}

// Stop makes the current Run or RunUntil return after the running event.
func (s *EventScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
}

func (s *EventScheduler) resetStop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = false
}

func (s *EventScheduler) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// pace blocks in RealTime mode until the wall clock catches up with when.
func (s *EventScheduler) pace(ctx context.Context, when time.Time) {
	if s.clock.Mode != timectrl.RealTime {
		return
	}
	s.mu.Lock()
	if s.wallStart.IsZero() {
		s.wallStart = time.Now().Add(-s.clock.Elapsed())
	}
	target := s.wallStart.Add(when.Sub(s.clock.StartTime))
	s.mu.Unlock()

	wait := time.Until(target)
	if wait <= 0 {
		return
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
