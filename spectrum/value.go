package spectrum

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// Value is a power spectral density: one linear power figure per bin of its
// Model. The arithmetic methods mutate the receiver in place.
type Value struct {
	model *Model
	vals  []float64
}

// NewValue returns an all-zero value over m.
func NewValue(m *Model) *Value {
	return &Value{model: m, vals: make([]float64, m.NumBins())}
}

// NewValueFrom returns a value over m holding a copy of vals.
func NewValueFrom(m *Model, vals []float64) (*Value, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil model", ErrInvalidModel)
	}
	if len(vals) != m.NumBins() {
		return nil, fmt.Errorf("%w: %d values for %d bins", ErrModelMismatch, len(vals), m.NumBins())
	}
	v := NewValue(m)
	copy(v.vals, vals)
	return v, nil
}

// Uniform returns a value over m with every bin set to p.
func Uniform(m *Model, p float64) *Value {
	v := NewValue(m)
	for i := range v.vals {
		v.vals[i] = p
	}
	return v
}

// Model returns the axis layout of v.
func (v *Value) Model() *Model { return v.model }

// Len returns the number of bins.
func (v *Value) Len() int { return len(v.vals) }

// At returns the power in bin i.
func (v *Value) At(i int) float64 { return v.vals[i] }

// Values returns a copy of the per-bin powers.
func (v *Value) Values() []float64 {
	out := make([]float64, len(v.vals))
	copy(out, v.vals)
	return out
}

// Copy returns an independent value with the same model and contents.
func (v *Value) Copy() *Value {
	out := &Value{model: v.model, vals: make([]float64, len(v.vals))}
	copy(out.vals, v.vals)
	return out
}

// Add sets v = v + o.
func (v *Value) Add(o *Value) error {
	if err := compatible(v, o); err != nil {
		return err
	}
	floats.Add(v.vals, o.vals)
	return nil
}

// Sub sets v = v - o.
func (v *Value) Sub(o *Value) error {
	if err := compatible(v, o); err != nil {
		return err
	}
	floats.Sub(v.vals, o.vals)
	return nil
}

// Mul sets v = v * o element-wise.
func (v *Value) Mul(o *Value) error {
	if err := compatible(v, o); err != nil {
		return err
	}
	floats.Mul(v.vals, o.vals)
	return nil
}

// Div sets v = v / o element-wise. Division by a zero bin follows IEEE 754.
func (v *Value) Div(o *Value) error {
	if err := compatible(v, o); err != nil {
		return err
	}
	floats.Div(v.vals, o.vals)
	return nil
}

// Scale multiplies every bin by f.
func (v *Value) Scale(f float64) {
	floats.Scale(f, v.vals)
}

// Sum returns the total over all bins.
func (v *Value) Sum() float64 { return floats.Sum(v.vals) }

// Mean returns the average power per bin.
func (v *Value) Mean() float64 { return floats.Sum(v.vals) / float64(len(v.vals)) }

// Dot returns Sum(a * b). It is zero exactly when two non-negative PSDs
// occupy disjoint bins.
func Dot(a, b *Value) (float64, error) {
	if err := compatible(a, b); err != nil {
		return 0, err
	}
	return floats.Dot(a.vals, b.vals), nil
}

// EqualApprox reports whether v and o share a model and every bin is within tol.
func (v *Value) EqualApprox(o *Value, tol float64) bool {
	if compatible(v, o) != nil {
		return false
	}
	return floats.EqualApprox(v.vals, o.vals, tol)
}

// IsZero reports whether every bin holds exactly zero power.
func (v *Value) IsZero() bool {
	for _, p := range v.vals {
		if p != 0 {
			return false
		}
	}
	return true
}

// ToDB converts a linear power ratio to decibels.
func ToDB(linear float64) float64 { return 10 * math.Log10(linear) }

// FromDB converts decibels to a linear power ratio.
func FromDB(db float64) float64 { return math.Pow(10, db/10) }

func (v *Value) String() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, p := range v.vals {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%g", p)
	}
	b.WriteByte(']')
	return b.String()
}

func compatible(a, b *Value) error {
	if a == nil || b == nil {
		return ErrNilValue
	}
	if a.model != b.model {
		return fmt.Errorf("%w: %v vs %v", ErrModelMismatch, a.model, b.model)
	}
	return nil
}
