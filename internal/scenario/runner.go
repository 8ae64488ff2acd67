package scenario

import (
	"context"
	"fmt"
	"time"

	"github.com/signalsfoundry/sinr-tracker/internal/chunk"
	"github.com/signalsfoundry/sinr-tracker/internal/interference"
	"github.com/signalsfoundry/sinr-tracker/internal/logging"
	"github.com/signalsfoundry/sinr-tracker/internal/observability"
	"github.com/signalsfoundry/sinr-tracker/internal/sim/scheduler"
	"github.com/signalsfoundry/sinr-tracker/spectrum"
	"github.com/signalsfoundry/sinr-tracker/timectrl"
)

// ChunkEvent is a SINR window delivered to a receiver, with the simulated
// instant it closed at.
type ChunkEvent struct {
	Receiver string
	At       time.Time
	Window   chunk.Window
}

// Runner executes a scenario: one tracker per receiver, all driven by a
// shared event scheduler.
type Runner struct {
	cfg          Config
	log          logging.Logger
	mode         timectrl.Mode
	trackerStats *observability.TrackerCollector
	schedStats   *observability.SchedulerCollector
	onChunk      func(ChunkEvent)
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the runner's logger. Trackers log through it too.
func WithLogger(l logging.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}

// WithMode sets the clock mode. RealTime paces events against the wall clock.
func WithMode(m timectrl.Mode) Option {
	return func(r *Runner) { r.mode = m }
}

// WithTrackerMetrics records per-receiver tracker metrics on c.
func WithTrackerMetrics(c *observability.TrackerCollector) Option {
	return func(r *Runner) { r.trackerStats = c }
}

// WithSchedulerMetrics records scheduler and clock metrics on c.
func WithSchedulerMetrics(c *observability.SchedulerCollector) Option {
	return func(r *Runner) { r.schedStats = c }
}

// WithChunkHook calls fn for every SINR window of every receiver.
func WithChunkHook(fn func(ChunkEvent)) Option {
	return func(r *Runner) { r.onChunk = fn }
}

// NewRunner validates cfg and returns a runner for it.
func NewRunner(cfg Config, opts ...Option) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Runner{
		cfg:  cfg,
		log:  logging.Noop(),
		mode: timectrl.Accelerated,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Report summarises a scenario run.
type Report struct {
	Name          string
	RunID         string
	Start         time.Time
	End           time.Time
	EventsApplied int
	Receivers     []ReceiverReport
}

// Elapsed returns the simulated time covered by the run.
func (r *Report) Elapsed() time.Duration { return r.End.Sub(r.Start) }

// Receiver returns the report for the named receiver.
func (r *Report) Receiver(name string) (ReceiverReport, bool) {
	for _, rr := range r.Receivers {
		if rr.Name == name {
			return rr, true
		}
	}
	return ReceiverReport{}, false
}

// ReceiverReport is the outcome for one receiver.
type ReceiverReport struct {
	Name       string
	Windows    []chunk.Window
	Averages   []chunk.Average
	Receptions int
	Completed  int
	Total      time.Duration
	// LiveSignals counts contributions still in the aggregate at the end.
	LiveSignals int
}

type receiver struct {
	name     string
	tracker  *interference.Tracker
	recorder *chunk.Recorder
	averages []chunk.Average
}

// Run executes the scenario. With until > 0 the run stops at that offset
// from the start, leaving later events unexecuted; otherwise it runs until no
// event is pending. The first tracker error stops the run and is returned
// together with the partial report.
func (r *Runner) Run(ctx context.Context, until time.Duration) (rep *Report, err error) {
	ctx, runID := logging.EnsureRunID(ctx)
	ctx, log := logging.WithRunLogger(ctx, r.log.With(logging.String("scenario", r.cfg.Name)))

	ctx, span := observability.StartRunSpan(ctx, r.cfg.Name, runID, len(r.cfg.Receivers), len(r.cfg.Events))
	defer func() {
		var applied int
		var elapsed time.Duration
		if rep != nil {
			applied, elapsed = rep.EventsApplied, rep.Elapsed()
		}
		observability.EndRunSpan(span, applied, elapsed, err)
	}()

	model, err := r.cfg.Model()
	if err != nil {
		return nil, err
	}
	start, err := r.cfg.StartTime()
	if err != nil {
		return nil, err
	}

	clock := timectrl.NewTimeController(start, r.mode)
	var schedOpts []scheduler.Option
	if r.schedStats != nil {
		r.schedStats.TrackClock(clock)
		schedOpts = append(schedOpts, scheduler.WithMetrics(r.schedStats))
	}
	sched := scheduler.New(clock, schedOpts...)

	receivers := make(map[string]*receiver, len(r.cfg.Receivers))
	ordered := make([]*receiver, 0, len(r.cfg.Receivers))
	for _, name := range r.cfg.Receivers {
		rx := r.newReceiver(name, sched, log)
		receivers[name] = rx
		ordered = append(ordered, rx)
	}

	report := &Report{Name: r.cfg.Name, RunID: runID, Start: start}

	noise, err := r.cfg.NoiseValue(model)
	if err != nil {
		return nil, err
	}
	if noise != nil {
		for _, rx := range ordered {
			if err := rx.tracker.SetNoiseFloor(noise); err != nil {
				return nil, fmt.Errorf("%s: initial noise floor: %w", rx.name, err)
			}
		}
	}

	var runErr error
	for i, ev := range r.cfg.Events {
		sched.Schedule(start.Add(ev.At), func() {
			if runErr != nil {
				return
			}
			for _, name := range r.cfg.Targets(ev) {
				if err := r.apply(receivers[name], model, ev); err != nil {
					runErr = fmt.Errorf("events[%d] %s on %s at %s: %w", i, ev.Op, name, ev.At, err)
					log.Error(ctx, "scenario event failed",
						logging.Int("event", i),
						logging.String("receiver", name),
						logging.Err(err),
					)
					sched.Stop()
					return
				}
			}
			report.EventsApplied++
		})
	}

	log.Info(ctx, "scenario started",
		logging.Time("start", start),
		logging.Int("receivers", len(ordered)),
		logging.Int("events", len(r.cfg.Events)),
		logging.String("mode", r.mode.String()),
	)

	if until > 0 {
		err = sched.RunUntil(ctx, start.Add(until))
	} else {
		err = sched.Run(ctx)
	}
	if err != nil && runErr == nil {
		runErr = err
	}

	report.End = clock.Now()
	for _, rx := range ordered {
		report.Receivers = append(report.Receivers, ReceiverReport{
			Name:        rx.name,
			Windows:     rx.recorder.Windows(),
			Averages:    rx.averages,
			Receptions:  rx.recorder.Receptions(),
			Completed:   rx.recorder.Completed(),
			Total:       rx.recorder.Total(),
			LiveSignals: rx.tracker.SignalCount(),
		})
	}

	if runErr != nil {
		return report, runErr
	}
	log.Info(ctx, "scenario finished",
		logging.Duration("sim_elapsed", report.Elapsed()),
		logging.Int("events_applied", report.EventsApplied),
		logging.Int("pending", sched.Pending()),
	)
	return report, nil
}

func (r *Runner) newReceiver(name string, sched scheduler.Scheduler, log logging.Logger) *receiver {
	opts := []interference.Option{
		interference.WithName(name),
		interference.WithLogger(log),
	}
	if r.trackerStats != nil {
		opts = append(opts, interference.WithMetrics(r.trackerStats.ForReceiver(name)))
	}
	rx := &receiver{
		name:     name,
		tracker:  interference.New(sched, opts...),
		recorder: chunk.NewRecorder(),
	}
	rx.tracker.RegisterConsumer(rx.recorder)
	rx.tracker.RegisterConsumer(chunk.NewAverager(func(a chunk.Average) {
		rx.averages = append(rx.averages, a)
	}))
	if r.onChunk != nil {
		hook := r.onChunk
		rx.tracker.RegisterConsumer(chunk.Funcs{
			OnChunk: func(sinr *spectrum.Value, d time.Duration) {
				hook(ChunkEvent{
					Receiver: name,
					At:       sched.Now(),
					Window:   chunk.Window{SINR: sinr, Duration: d},
				})
			},
		})
	}
	return rx
}

func (r *Runner) apply(rx *receiver, model *spectrum.Model, ev EventConfig) error {
	switch ev.Op {
	case OpEndRx:
		rx.tracker.EndRx()
		return nil
	case OpSetNoiseFloor, OpStartRx, OpAddSignal:
	default:
		return fmt.Errorf("unsupported operation %q", ev.Op)
	}

	v, err := spectrum.NewValueFrom(model, ev.PSD)
	if err != nil {
		return err
	}
	switch ev.Op {
	case OpSetNoiseFloor:
		return rx.tracker.SetNoiseFloor(v)
	case OpStartRx:
		return rx.tracker.StartRx(v)
	default:
		return rx.tracker.AddSignal(v, ev.Duration)
	}
}
