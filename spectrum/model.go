// Package spectrum provides power spectral density vectors over a discrete
// frequency axis. A Model describes the axis layout; a Value carries one power
// figure per bin of its Model. Two Values can only be combined when they share
// the same Model.
package spectrum

import (
	"errors"
	"fmt"
	"sync/atomic"
)

var (
	// ErrModelMismatch is returned when two values with different axis layouts
	// are combined.
	ErrModelMismatch = errors.New("spectrum models differ")
	// ErrNilValue is returned when an operand is nil.
	ErrNilValue = errors.New("nil spectrum value")
	// ErrInvalidModel is returned for empty or non-increasing axis layouts.
	ErrInvalidModel = errors.New("invalid spectrum model")
)

var modelIDs atomic.Uint32

// Model is an immutable frequency axis layout: an ordered list of bin centre
// frequencies in Hz. Models are compared by identity, not by content, so two
// models built from the same frequencies are still distinct layouts.
type Model struct {
	id      uint32
	centers []float64
}

// NewModel builds a model from strictly increasing bin centre frequencies.
func NewModel(centersHz []float64) (*Model, error) {
	if len(centersHz) == 0 {
		return nil, fmt.Errorf("%w: no bins", ErrInvalidModel)
	}
	for i := 1; i < len(centersHz); i++ {
		if !(centersHz[i] > centersHz[i-1]) {
			return nil, fmt.Errorf("%w: bin %d (%g Hz) not above bin %d (%g Hz)",
				ErrInvalidModel, i, centersHz[i], i-1, centersHz[i-1])
		}
	}
	centers := make([]float64, len(centersHz))
	copy(centers, centersHz)
	return &Model{id: modelIDs.Add(1), centers: centers}, nil
}

// NewUniformModel builds a model of n bins spaced spacingHz apart, the first
// centred on startHz.
func NewUniformModel(startHz, spacingHz float64, n int) (*Model, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: bin count %d", ErrInvalidModel, n)
	}
	if spacingHz <= 0 {
		return nil, fmt.Errorf("%w: spacing %g Hz", ErrInvalidModel, spacingHz)
	}
	centers := make([]float64, n)
	for i := range centers {
		centers[i] = startHz + float64(i)*spacingHz
	}
	return NewModel(centers)
}

// ID returns a process-unique identifier for the model.
func (m *Model) ID() uint32 { return m.id }

// NumBins returns the number of frequency bins.
func (m *Model) NumBins() int { return len(m.centers) }

// CenterFrequencies returns a copy of the bin centre frequencies in Hz.
func (m *Model) CenterFrequencies() []float64 {
	out := make([]float64, len(m.centers))
	copy(out, m.centers)
	return out
}

func (m *Model) String() string {
	if len(m.centers) == 1 {
		return fmt.Sprintf("model#%d[1 bin @ %g Hz]", m.id, m.centers[0])
	}
	return fmt.Sprintf("model#%d[%d bins %g..%g Hz]", m.id, len(m.centers), m.centers[0], m.centers[len(m.centers)-1])
}
