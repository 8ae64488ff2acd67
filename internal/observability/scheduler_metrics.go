package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/sinr-tracker/timectrl"
)

// SchedulerCollector exposes discrete-event scheduler metrics.
type SchedulerCollector struct {
	gatherer prometheus.Gatherer

	EventsExecuted prometheus.Counter
	EventsPending  prometheus.Gauge
	SimElapsed     prometheus.Gauge
}

// NewSchedulerCollector registers scheduler metrics against the provided registerer.
func NewSchedulerCollector(reg prometheus.Registerer) (*SchedulerCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	executed, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sim_events_executed_total",
		Help: "Cumulative number of scheduler events executed.",
	}), "sim_events_executed_total")
	if err != nil {
		return nil, err
	}

	pending, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sim_events_pending",
		Help: "Number of events currently waiting in the scheduler.",
	}), "sim_events_pending")
	if err != nil {
		return nil, err
	}

	elapsed, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sim_elapsed_seconds",
		Help: "Simulated time elapsed since the start of the run.",
	}), "sim_elapsed_seconds")
	if err != nil {
		return nil, err
	}

	return &SchedulerCollector{
		gatherer:       gatherer,
		EventsExecuted: executed,
		EventsPending:  pending,
		SimElapsed:     elapsed,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *SchedulerCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// IncEventsExecuted increments the executed event counter.
func (c *SchedulerCollector) IncEventsExecuted() {
	if c == nil || c.EventsExecuted == nil {
		return
	}
	c.EventsExecuted.Inc()
}

// SetEventsPending updates the pending event gauge.
func (c *SchedulerCollector) SetEventsPending(n int) {
	if c == nil || c.EventsPending == nil {
		return
	}
	c.EventsPending.Set(float64(n))
}

// TrackClock keeps the elapsed-time gauge in step with tc.
func (c *SchedulerCollector) TrackClock(tc *timectrl.TimeController) {
	if c == nil || tc == nil {
		return
	}
	c.setElapsed(tc.Elapsed())
	tc.AddListener(func(now time.Time) {
		c.setElapsed(now.Sub(tc.StartTime))
	})
}

func (c *SchedulerCollector) setElapsed(d time.Duration) {
	if c.SimElapsed == nil {
		return
	}
	c.SimElapsed.Set(d.Seconds())
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
