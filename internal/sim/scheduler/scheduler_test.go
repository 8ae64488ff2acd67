package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/signalsfoundry/sinr-tracker/timectrl"
)

func newTestScheduler() (*EventScheduler, time.Time) {
	start := time.Unix(0, 0).UTC()
	return New(timectrl.NewTimeController(start, timectrl.Accelerated)), start
}

func TestEventScheduler_BasicScheduling(t *testing.T) {
	sched, start := newTestScheduler()

	var executionOrder []string
	t1 := start.Add(10 * time.Second)

	sched.Schedule(t1, func() {
		executionOrder = append(executionOrder, "e1")
	})

	// Before the deadline nothing runs.
	sched.RunUntil(context.Background(), start.Add(5 * time.Second))
	if len(executionOrder) != 0 {
		t.Fatalf("expected no events executed before t1, got %d", len(executionOrder))
	}

	sched.RunUntil(context.Background(), t1)
	if len(executionOrder) != 1 || executionOrder[0] != "e1" {
		t.Fatalf("expected execution order [e1], got %v", executionOrder)
	}
	if !sched.Now().Equal(t1) {
		t.Fatalf("Now() = %v, want %v", sched.Now(), t1)
	}
}

func TestEventScheduler_MultipleEventsInOrder(t *testing.T) {
	sched, start := newTestScheduler()

	var executionOrder []string
	t1 := start.Add(10 * time.Second)
	t2 := start.Add(20 * time.Second)
	t3 := start.Add(30 * time.Second)

	sched.Schedule(t3, func() { executionOrder = append(executionOrder, "e3") })
	sched.Schedule(t1, func() { executionOrder = append(executionOrder, "e1") })
	sched.Schedule(t2, func() { executionOrder = append(executionOrder, "e2") })

	sched.RunUntil(context.Background(), t2)
	if len(executionOrder) != 2 || executionOrder[0] != "e1" || executionOrder[1] != "e2" {
		t.Fatalf("expected execution order [e1 e2], got %v", executionOrder)
	}

	if err := sched.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(executionOrder) != 3 || executionOrder[2] != "e3" {
		t.Fatalf("expected execution order [e1 e2 e3], got %v", executionOrder)
	}
	if !sched.Now().Equal(t3) {
		t.Fatalf("Now() = %v, want %v", sched.Now(), t3)
	}
}

func TestEventScheduler_SameInstantIsFIFO(t *testing.T) {
	sched, start := newTestScheduler()
	at := start.Add(time.Second)

	var order []int
	for i := 0; i < 5; i++ {
		sched.Schedule(at, func() { order = append(order, i) })
	}
	sched.RunUntil(context.Background(), at)

	for i, got := range order {
		if got != i {
			t.Fatalf("same-instant order = %v, want 0..4", order)
		}
	}
}

func TestEventScheduler_ScheduleAfterUsesCurrentTime(t *testing.T) {
	sched, start := newTestScheduler()

	var firedAt time.Time
	sched.Schedule(start.Add(5*time.Second), func() {
		sched.ScheduleAfter(10*time.Second, func() { firedAt = sched.Now() })
	})
	if err := sched.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if want := start.Add(15 * time.Second); !firedAt.Equal(want) {
		t.Fatalf("nested event fired at %v, want %v", firedAt, want)
	}
}

func TestEventScheduler_NegativeDelayRunsNow(t *testing.T) {
	sched, start := newTestScheduler()

	ran := false
	sched.ScheduleAfter(-time.Second, func() { ran = true })
	sched.RunUntil(context.Background(), start)
	if !ran {
		t.Fatal("expected negative-delay event to run at the current time")
	}
	if !sched.Now().Equal(start) {
		t.Fatalf("Now() = %v, want %v", sched.Now(), start)
	}
}

func TestEventScheduler_Cancellation(t *testing.T) {
	sched, start := newTestScheduler()

	var counter int
	id := sched.Schedule(start.Add(10*time.Second), func() { counter++ })
	sched.Cancel(id)
	sched.Cancel("unknown-id")

	if err := sched.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if counter != 0 {
		t.Fatalf("expected cancelled event to not run, counter=%d", counter)
	}
	if sched.Pending() != 0 {
		t.Fatalf("Pending() = %d, want 0", sched.Pending())
	}
}

func TestEventScheduler_StopHaltsRun(t *testing.T) {
	sched, start := newTestScheduler()

	var counter int
	sched.Schedule(start.Add(time.Second), func() {
		counter++
		sched.Stop()
	})
	sched.Schedule(start.Add(2*time.Second), func() { counter++ })

	if err := sched.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if counter != 1 {
		t.Fatalf("counter = %d after Stop, want 1", counter)
	}
	if next, ok := sched.NextEventTime(); !ok || !next.Equal(start.Add(2*time.Second)) {
		t.Fatalf("NextEventTime() = %v, %v; want %v, true", next, ok, start.Add(2*time.Second))
	}
}

func TestEventScheduler_RunHonoursContext(t *testing.T) {
	sched, start := newTestScheduler()
	sched.Schedule(start.Add(time.Second), func() {})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sched.Run(ctx); err != context.Canceled {
		t.Fatalf("Run error = %v, want context.Canceled", err)
	}
	if sched.Pending() != 1 {
		t.Fatalf("Pending() = %d, want 1", sched.Pending())
	}
}

func TestEventScheduler_CancelDuringRealTimeWait(t *testing.T) {
	for _, tc := range []struct {
		name string
		run  func(ctx context.Context, s *EventScheduler, start time.Time) error
	}{
		{"RunUntil", func(ctx context.Context, s *EventScheduler, start time.Time) error {
			return s.RunUntil(ctx, start.Add(2*time.Hour))
		}},
		{"Run", func(ctx context.Context, s *EventScheduler, _ time.Time) error {
			return s.Run(ctx)
		}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			start := time.Unix(0, 0).UTC()
			sched := New(timectrl.NewTimeController(start, timectrl.RealTime))
			ran := false
			sched.Schedule(start.Add(time.Hour), func() { ran = true })

			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()

			done := make(chan error, 1)
			go func() { done <- tc.run(ctx, sched, start) }()

			select {
			case err := <-done:
				if err != context.DeadlineExceeded {
					t.Fatalf("error = %v, want context.DeadlineExceeded", err)
				}
			case <-time.After(5 * time.Second):
				t.Fatal("scheduler still waiting after the context expired")
			}
			if ran {
				t.Fatal("event ran after cancellation")
			}
			if sched.Pending() != 1 {
				t.Fatalf("Pending() = %d, want 1", sched.Pending())
			}
			if got := sched.Now(); !got.Equal(start) {
				t.Fatalf("Now() = %v, want %v", got, start)
			}
			if when, ok := sched.NextEventTime(); !ok || !when.Equal(start.Add(time.Hour)) {
				t.Fatalf("NextEventTime() = %v, %v, want %v", when, ok, start.Add(time.Hour))
			}
		})
	}
}

type countingMetrics struct {
	executed int
	pending  int
}

func (m *countingMetrics) IncEventsExecuted()     { m.executed++ }
func (m *countingMetrics) SetEventsPending(n int) { m.pending = n }

func TestEventScheduler_ReportsMetrics(t *testing.T) {
	start := time.Unix(0, 0).UTC()
	m := &countingMetrics{}
	sched := New(timectrl.NewTimeController(start, timectrl.Accelerated), WithMetrics(m))

	sched.Schedule(start.Add(time.Second), func() {})
	sched.Schedule(start.Add(2*time.Second), func() {})
	if m.pending != 2 {
		t.Fatalf("pending = %d, want 2", m.pending)
	}

	sched.Step()
	if m.executed != 1 || m.pending != 1 {
		t.Fatalf("after Step executed=%d pending=%d, want 1 and 1", m.executed, m.pending)
	}
}
