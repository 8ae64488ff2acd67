package observability

import (
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/signalsfoundry/sinr-tracker/internal/interference"
	"github.com/signalsfoundry/sinr-tracker/spectrum"
)

// TrackerCollector bundles Prometheus metrics for interference trackers. One
// collector serves every receiver of a run; ForReceiver hands each tracker a
// recorder labelled with its receiver name.
type TrackerCollector struct {
	gatherer prometheus.Gatherer

	Chunks             *prometheus.CounterVec
	ChunkDurations     *prometheus.HistogramVec
	ChunkMeanDB        *prometheus.GaugeVec
	SignalsAdded       *prometheus.CounterVec
	SignalRemovals     *prometheus.CounterVec
	ProtocolViolations *prometheus.CounterVec
	NoiseFloorResets   *prometheus.CounterVec
}

// NewTrackerCollector registers tracker metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewTrackerCollector(reg prometheus.Registerer) (*TrackerCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	chunks, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sinr_chunks_total",
		Help: "Total number of SINR chunks evaluated, labeled by receiver.",
	}, []string{"receiver"}), "sinr_chunks_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sinr_chunk_duration_seconds",
		Help:    "Simulated duration of each SINR chunk in seconds.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.002, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
	}, []string{"receiver"}), "sinr_chunk_duration_seconds")
	if err != nil {
		return nil, err
	}

	meanDB, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sinr_chunk_mean_db",
		Help: "Mean SINR over frequency bins of the most recent chunk, in dB.",
	}, []string{"receiver"}), "sinr_chunk_mean_db")
	if err != nil {
		return nil, err
	}

	added, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sinr_signals_added_total",
		Help: "Total number of signals added to a receiver's aggregate.",
	}, []string{"receiver"}), "sinr_signals_added_total")
	if err != nil {
		return nil, err
	}

	removals, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sinr_signal_removals_total",
		Help: "Total number of scheduled signal removals, labeled by outcome (applied or stale).",
	}, []string{"receiver", "outcome"}), "sinr_signal_removals_total")
	if err != nil {
		return nil, err
	}

	violations, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sinr_protocol_violations_total",
		Help: "Total number of rejected simultaneous receive signals, labeled by kind.",
	}, []string{"receiver", "kind"}), "sinr_protocol_violations_total")
	if err != nil {
		return nil, err
	}

	resets, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sinr_noise_floor_resets_total",
		Help: "Total number of noise floor updates, each resetting the aggregate.",
	}, []string{"receiver"}), "sinr_noise_floor_resets_total")
	if err != nil {
		return nil, err
	}

	return &TrackerCollector{
		gatherer:           gatherer,
		Chunks:             chunks,
		ChunkDurations:     durations,
		ChunkMeanDB:        meanDB,
		SignalsAdded:       added,
		SignalRemovals:     removals,
		ProtocolViolations: violations,
		NoiseFloorResets:   resets,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *TrackerCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *TrackerCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ForReceiver returns a recorder whose samples carry the receiver label.
func (c *TrackerCollector) ForReceiver(receiver string) interference.MetricsRecorder {
	return &receiverMetrics{c: c, receiver: receiver}
}

type receiverMetrics struct {
	c        *TrackerCollector
	receiver string
}

func (m *receiverMetrics) ObserveChunk(sinr *spectrum.Value, d time.Duration) {
	if m.c == nil {
		return
	}
	m.c.Chunks.WithLabelValues(m.receiver).Inc()
	m.c.ChunkDurations.WithLabelValues(m.receiver).Observe(d.Seconds())
	if sinr != nil {
		if db := spectrum.ToDB(sinr.Mean()); !math.IsNaN(db) {
			m.c.ChunkMeanDB.WithLabelValues(m.receiver).Set(db)
		}
	}
}

func (m *receiverMetrics) IncSignalsAdded() {
	if m.c == nil {
		return
	}
	m.c.SignalsAdded.WithLabelValues(m.receiver).Inc()
}

func (m *receiverMetrics) IncSignalRemovals(stale bool) {
	if m.c == nil {
		return
	}
	outcome := "applied"
	if stale {
		outcome = "stale"
	}
	m.c.SignalRemovals.WithLabelValues(m.receiver, outcome).Inc()
}

func (m *receiverMetrics) IncProtocolViolations(kind interference.ViolationKind) {
	if m.c == nil {
		return
	}
	m.c.ProtocolViolations.WithLabelValues(m.receiver, string(kind)).Inc()
}

func (m *receiverMetrics) IncNoiseFloorResets() {
	if m.c == nil {
		return
	}
	m.c.NoiseFloorResets.WithLabelValues(m.receiver).Inc()
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
