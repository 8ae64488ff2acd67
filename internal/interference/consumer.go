package interference

import (
	"time"

	"github.com/signalsfoundry/sinr-tracker/spectrum"
)

// ChunkConsumer receives the output of a Tracker. Start and End bracket a
// reception; EvaluateSinrChunk delivers one SINR sample for every interval of
// the reception during which the received and interfering power stayed
// constant. The sinr value is owned by the consumer.
type ChunkConsumer interface {
	Start()
	End()
	EvaluateSinrChunk(sinr *spectrum.Value, duration time.Duration)
}

// MetricsRecorder receives tracker activity for instrumentation.
type MetricsRecorder interface {
	ObserveChunk(sinr *spectrum.Value, duration time.Duration)
	IncSignalsAdded()
	IncSignalRemovals(stale bool)
	IncProtocolViolations(kind ViolationKind)
	IncNoiseFloorResets()
}

type noopMetrics struct{}

func (noopMetrics) ObserveChunk(*spectrum.Value, time.Duration) {}
func (noopMetrics) IncSignalsAdded()                            {}
func (noopMetrics) IncSignalRemovals(bool)                      {}
func (noopMetrics) IncProtocolViolations(ViolationKind)         {}
func (noopMetrics) IncNoiseFloorResets()                        {}
