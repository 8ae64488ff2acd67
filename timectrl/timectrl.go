package timectrl

import (
	"sync"
	"time"
)

// SimClock is an interface for accessing simulation time. Components such as
// the interference tracker depend on this abstraction rather than on a
// concrete controller so they can be driven by a fake clock in tests.
type SimClock interface {
	// Now returns the current simulation time.
	Now() time.Time
}

// Mode describes how simulation time relates to wall-clock time.
type Mode int

const (
	// RealTime paces advances so that simulated time never runs ahead of
	// wall-clock time since the run started.
	RealTime Mode = iota
	// Accelerated jumps straight to the next event time.
	Accelerated
)

func (m Mode) String() string {
	switch m {
	case RealTime:
		return "realtime"
	case Accelerated:
		return "accelerated"
	default:
		return "unknown"
	}
}

// TimeController holds the current simulation time and notifies registered
// listeners whenever it moves forward. It implements SimClock.
type TimeController struct {
	mu        sync.RWMutex
	StartTime time.Time
	Mode      Mode

	currentTime time.Time

	listeners []func(time.Time)
}

// NewTimeController constructs a controller positioned at start.
func NewTimeController(start time.Time, mode Mode) *TimeController {
	return &TimeController{
		StartTime:   start,
		Mode:        mode,
		currentTime: start,
	}
}

// Now returns the current simulation time. Implements SimClock.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// Elapsed returns the simulated time since StartTime.
func (tc *TimeController) Elapsed() time.Duration {
	return tc.Now().Sub(tc.StartTime)
}

// AddListener registers a callback invoked after every forward time change.
func (tc *TimeController) AddListener(fn func(time.Time)) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.listeners = append(tc.listeners, fn)
}

// SetTime moves simulation time to t. Time is monotonic: moving backwards is
// refused and reported by a false return. Setting the current time again is
// accepted but does not notify listeners.
func (tc *TimeController) SetTime(t time.Time) bool {
	tc.mu.Lock()
	if t.Before(tc.currentTime) {
		tc.mu.Unlock()
		return false
	}
	moved := t.After(tc.currentTime)
	tc.currentTime = t
	listeners := append([]func(time.Time){}, tc.listeners...)
	tc.mu.Unlock()

	if moved {
		for _, fn := range listeners {
			fn(t)
		}
	}
	return true
}
