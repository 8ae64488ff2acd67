// Package interference accumulates the power of overlapping signals at one
// receiver and turns every interval of constant received and interfering power
// into a SINR sample.
package interference

import (
	"context"
	"fmt"
	"time"

	"github.com/signalsfoundry/sinr-tracker/internal/logging"
	"github.com/signalsfoundry/sinr-tracker/internal/sim/scheduler"
	"github.com/signalsfoundry/sinr-tracker/spectrum"
)

// TypeName identifies the tracker in logs and metrics.
const TypeName = "sinr.Tracker"

// Tracker keeps the aggregate of every signal present at a receiver, the
// signal currently being received and the noise floor. Each operation that can
// change them first closes the current window, so each SINR sample describes
// the state that held over the preceding interval.
//
// A Tracker is driven from scheduler callbacks and is not safe for concurrent
// use.
type Tracker struct {
	name    string
	sched   scheduler.Scheduler
	log     logging.Logger
	metrics MetricsRecorder

	receiving      bool
	lastChangeTime time.Time

	rxSignal   *spectrum.Value
	allSignals *spectrum.Value
	noise      *spectrum.Value

	epoch       signalEpoch
	liveSignals int

	consumers []ChunkConsumer
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithName labels the tracker, typically with the receiver it belongs to.
func WithName(name string) Option {
	return func(t *Tracker) {
		t.name = name
	}
}

// WithLogger attaches a logger. Chunk evaluation and stale removals are logged
// at debug level.
func WithLogger(l logging.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.log = l
		}
	}
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(t *Tracker) {
		if m != nil {
			t.metrics = m
		}
	}
}

// New returns a tracker that schedules signal removals on sched. SetNoiseFloor
// must be called before any signal is started or added.
func New(sched scheduler.Scheduler, opts ...Option) *Tracker {
	t := &Tracker{
		name:    TypeName,
		sched:   sched,
		log:     logging.Noop(),
		metrics: noopMetrics{},
	}
	for _, opt := range opts {
		opt(t)
	}
	t.log = t.log.With(logging.String("tracker", t.name))
	return t
}

// Name returns the tracker label.
func (t *Tracker) Name() string { return t.name }

// StartRx begins receiving signal. The first call of a window copies signal
// and notifies every consumer's Start. Further calls at the same instant add
// signals on disjoint frequency bins to the received signal; a call after time
// has elapsed, or one overlapping in frequency, is a protocol violation.
func (t *Tracker) StartRx(signal *spectrum.Value) error {
	if t.noise == nil {
		return ErrNoNoiseFloor
	}
	if signal == nil {
		return spectrum.ErrNilValue
	}
	if signal.Model() != t.noise.Model() {
		return fmt.Errorf("start rx: %w", spectrum.ErrModelMismatch)
	}

	now := t.sched.Now()
	if !t.receiving {
		t.log.Debug(context.Background(), "first receive signal", logging.Time("now", now))
		t.rxSignal = signal.Copy()
		t.lastChangeTime = now
		t.receiving = true
		for _, c := range t.consumers {
			c.Start()
		}
		return nil
	}

	t.log.Debug(context.Background(), "additional receive signal", logging.Any("rx", t.rxSignal.String()))
	if !now.Equal(t.lastChangeTime) {
		return t.violation(ViolationUnsynchronized, now, signal)
	}
	overlap, err := spectrum.Dot(signal, t.rxSignal)
	if err != nil {
		return fmt.Errorf("start rx: %w", err)
	}
	if overlap != 0 {
		return t.violation(ViolationOverlapping, now, signal)
	}
	return t.rxSignal.Add(signal)
}

func (t *Tracker) violation(kind ViolationKind, now time.Time, incoming *spectrum.Value) error {
	t.metrics.IncProtocolViolations(kind)
	return &ProtocolViolationError{
		Kind:        kind,
		At:          now,
		WindowStart: t.lastChangeTime,
		Existing:    t.rxSignal.Copy(),
		Incoming:    incoming.Copy(),
	}
}

// EndRx closes the reception and notifies every consumer's End. It is a no-op
// when no reception is in progress, since a noise floor update may already
// have aborted it.
func (t *Tracker) EndRx() {
	if !t.receiving {
		t.log.Debug(context.Background(), "end rx ignored: already ended or aborted")
		return
	}
	t.ConditionallyEvaluateChunk()
	t.receiving = false
	t.rxSignal = nil
	for _, c := range t.consumers {
		c.End()
	}
}

// AddSignal adds signal to the aggregate and schedules its removal after
// duration. The signal is shared with the caller and must not be modified
// until it has been removed.
func (t *Tracker) AddSignal(signal *spectrum.Value, duration time.Duration) error {
	if t.allSignals == nil {
		return ErrNoNoiseFloor
	}
	if duration < 0 {
		return fmt.Errorf("%w: %s", ErrNegativeDuration, duration)
	}
	if signal == nil {
		return spectrum.ErrNilValue
	}
	if signal.Model() != t.allSignals.Model() {
		return fmt.Errorf("add signal: %w", spectrum.ErrModelMismatch)
	}

	t.ConditionallyEvaluateChunk()
	if err := t.allSignals.Add(signal); err != nil {
		return fmt.Errorf("add signal: %w", err)
	}
	t.liveSignals++
	t.metrics.IncSignalsAdded()

	id := t.epoch.next()
	t.sched.ScheduleAfter(duration, func() {
		t.subtractSignal(signal, id)
	})
	return nil
}

func (t *Tracker) subtractSignal(signal *spectrum.Value, id uint32) {
	t.ConditionallyEvaluateChunk()
	if !t.epoch.current(id) {
		t.log.Debug(context.Background(), "ignoring signal scheduled for removal before last reset",
			logging.Uint32("signal_id", id))
		t.metrics.IncSignalRemovals(true)
		return
	}
	if err := t.allSignals.Sub(signal); err != nil {
		t.log.Error(context.Background(), "signal removal failed",
			logging.Uint32("signal_id", id), logging.Err(err))
		return
	}
	t.liveSignals--
	t.metrics.IncSignalRemovals(false)
}

// SetNoiseFloor replaces the noise floor and resets the aggregate to an empty
// value over the noise floor's model, since the model may have changed. A
// reception in progress is aborted without notifying consumers' End, and
// removals already scheduled become stale.
func (t *Tracker) SetNoiseFloor(noise *spectrum.Value) error {
	if noise == nil {
		return spectrum.ErrNilValue
	}
	t.ConditionallyEvaluateChunk()
	t.noise = noise
	t.allSignals = spectrum.NewValue(noise.Model())
	t.liveSignals = 0
	if t.receiving {
		t.log.Debug(context.Background(), "noise floor update aborted reception")
		t.receiving = false
		t.rxSignal = nil
	}
	t.epoch.reset()
	t.metrics.IncNoiseFloorResets()
	return nil
}

// RegisterConsumer appends c to the consumers notified by the tracker. It only
// sees windows closed after registration.
func (t *Tracker) RegisterConsumer(c ChunkConsumer) {
	t.consumers = append(t.consumers, c)
}

// ConditionallyEvaluateChunk emits a SINR sample for the window since the last
// change, provided a reception is in progress and simulated time has moved on.
// Otherwise it does nothing, so repeated calls at one instant are harmless.
func (t *Tracker) ConditionallyEvaluateChunk() {
	now := t.sched.Now()
	if !t.receiving || !now.After(t.lastChangeTime) {
		return
	}

	sinr, err := t.sinr()
	if err != nil {
		t.log.Error(context.Background(), "sinr evaluation failed", logging.Err(err))
		return
	}
	duration := now.Sub(t.lastChangeTime)
	t.log.Debug(context.Background(), "sinr chunk",
		logging.Time("from", t.lastChangeTime),
		logging.Duration("duration", duration),
		logging.String("sinr", sinr.String()),
	)
	t.metrics.ObserveChunk(sinr, duration)
	for _, c := range t.consumers {
		c.EvaluateSinrChunk(sinr.Copy(), duration)
	}
	t.lastChangeTime = now
}

// sinr computes rx / (all - rx + noise) per bin.
func (t *Tracker) sinr() (*spectrum.Value, error) {
	other := t.allSignals.Copy()
	if err := other.Sub(t.rxSignal); err != nil {
		return nil, err
	}
	if err := other.Add(t.noise); err != nil {
		return nil, err
	}
	sinr := t.rxSignal.Copy()
	if err := sinr.Div(other); err != nil {
		return nil, err
	}
	return sinr, nil
}

// Receiving reports whether a reception is in progress.
func (t *Tracker) Receiving() bool { return t.receiving }

// SignalCount returns the number of added signals still counted in the
// aggregate.
func (t *Tracker) SignalCount() int { return t.liveSignals }

// Aggregate returns a copy of the sum of all present signals, or nil before
// the noise floor is set.
func (t *Tracker) Aggregate() *spectrum.Value {
	if t.allSignals == nil {
		return nil
	}
	return t.allSignals.Copy()
}

// ReceiveSignal returns a copy of the signal being received, or nil.
func (t *Tracker) ReceiveSignal() *spectrum.Value {
	if t.rxSignal == nil {
		return nil
	}
	return t.rxSignal.Copy()
}

// NoiseFloor returns the current noise floor, or nil.
func (t *Tracker) NoiseFloor() *spectrum.Value { return t.noise }

// Close drops every consumer and all spectral state. Removals still pending on
// the scheduler are treated as stale when they fire.
func (t *Tracker) Close() {
	t.consumers = nil
	t.receiving = false
	t.rxSignal = nil
	t.allSignals = nil
	t.noise = nil
	t.liveSignals = 0
	t.epoch.reset()
}
