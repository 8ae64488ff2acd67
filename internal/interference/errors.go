package interference

import (
	"errors"
	"fmt"
	"time"

	"github.com/signalsfoundry/sinr-tracker/spectrum"
)

var (
	// ErrUnsynchronizedRx is returned when an additional receive signal starts
	// after time has elapsed in the current reception window.
	ErrUnsynchronizedRx = errors.New("simultaneous receive signals are not time-aligned")
	// ErrOverlappingRx is returned when an additional receive signal shares
	// frequency bins with the signal already being received.
	ErrOverlappingRx = errors.New("simultaneous receive signals overlap in frequency")
	// ErrNoNoiseFloor is returned when signals arrive before SetNoiseFloor.
	ErrNoNoiseFloor = errors.New("noise floor not set")
	// ErrNegativeDuration is returned by AddSignal for a negative lifetime.
	ErrNegativeDuration = errors.New("negative signal duration")
)

// ViolationKind classifies a ProtocolViolationError.
type ViolationKind string

const (
	ViolationUnsynchronized ViolationKind = "unsynchronized"
	ViolationOverlapping    ViolationKind = "overlapping"
)

// ProtocolViolationError reports that the caller scheduled conflicting receive
// signals. The tracker state is left as it was before the offending call;
// continuing the run would corrupt the aggregate, so callers should treat it
// as fatal.
type ProtocolViolationError struct {
	Kind ViolationKind
	// At is the simulation time of the offending StartRx.
	At time.Time
	// WindowStart is when the current reception window opened.
	WindowStart time.Time
	Existing    *spectrum.Value
	Incoming    *spectrum.Value
}

func (e *ProtocolViolationError) Error() string {
	return fmt.Sprintf("%v at %s: receiving %v since %s, incoming %v",
		e.Unwrap(), e.At.Format(time.RFC3339Nano), e.Existing, e.WindowStart.Format(time.RFC3339Nano), e.Incoming)
}

func (e *ProtocolViolationError) Unwrap() error {
	switch e.Kind {
	case ViolationUnsynchronized:
		return ErrUnsynchronizedRx
	case ViolationOverlapping:
		return ErrOverlappingRx
	default:
		return errors.New("protocol violation")
	}
}
