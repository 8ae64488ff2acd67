package spectrum

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func twoBinModel(t *testing.T) *Model {
	t.Helper()
	m, err := NewUniformModel(2.110e9, 180e3, 2)
	if err != nil {
		t.Fatalf("NewUniformModel: %v", err)
	}
	return m
}

func mustValue(t *testing.T, m *Model, vals ...float64) *Value {
	t.Helper()
	v, err := NewValueFrom(m, vals)
	if err != nil {
		t.Fatalf("NewValueFrom(%v): %v", vals, err)
	}
	return v
}

func TestNewModelRejectsBadLayouts(t *testing.T) {
	cases := map[string][]float64{
		"empty":          nil,
		"descending":     {2e9, 1e9},
		"duplicate bins": {1e9, 1e9},
	}
	for name, centers := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := NewModel(centers); !errors.Is(err, ErrInvalidModel) {
				t.Fatalf("NewModel(%v) error = %v, want ErrInvalidModel", centers, err)
			}
		})
	}
	if _, err := NewUniformModel(1e9, 0, 4); !errors.Is(err, ErrInvalidModel) {
		t.Fatalf("zero spacing error = %v, want ErrInvalidModel", err)
	}
}

func TestModelsAreDistinctByIdentity(t *testing.T) {
	a, _ := NewModel([]float64{1, 2})
	b, _ := NewModel([]float64{1, 2})
	if a.ID() == b.ID() {
		t.Fatalf("expected distinct model IDs, both %d", a.ID())
	}
	if err := NewValue(a).Add(NewValue(b)); !errors.Is(err, ErrModelMismatch) {
		t.Fatalf("Add across models error = %v, want ErrModelMismatch", err)
	}
}

func TestArithmeticInPlace(t *testing.T) {
	m := twoBinModel(t)
	v := mustValue(t, m, 4, 2)

	if err := v.Add(mustValue(t, m, 1, 1)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := v.Sub(mustValue(t, m, 0, 2)); err != nil {
		t.Fatalf("Sub: %v", err)
	}
	if err := v.Mul(mustValue(t, m, 2, 3)); err != nil {
		t.Fatalf("Mul: %v", err)
	}
	if err := v.Div(mustValue(t, m, 5, 1)); err != nil {
		t.Fatalf("Div: %v", err)
	}

	want := []float64{2, 3}
	if diff := cmp.Diff(want, v.Values(), cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Fatalf("values mismatch (-want +got):\n%s", diff)
	}
	if got := v.Sum(); got != 5 {
		t.Fatalf("Sum() = %v, want 5", got)
	}
	v.Scale(0.5)
	if got := v.Sum(); got != 2.5 {
		t.Fatalf("Sum() after Scale(0.5) = %v, want 2.5", got)
	}
}

func TestCopyIsIndependent(t *testing.T) {
	m := twoBinModel(t)
	orig := mustValue(t, m, 4, 0)
	cp := orig.Copy()
	_ = orig.Add(mustValue(t, m, 1, 1))

	if diff := cmp.Diff([]float64{4, 0}, cp.Values()); diff != "" {
		t.Fatalf("copy changed with original (-want +got):\n%s", diff)
	}
	if cp.Model() != m {
		t.Fatalf("copy model = %v, want %v", cp.Model(), m)
	}
}

func TestNewValueFromCopiesInput(t *testing.T) {
	m := twoBinModel(t)
	raw := []float64{1, 2}
	v := mustValue(t, m, raw...)
	raw[0] = 99
	if v.At(0) != 1 {
		t.Fatalf("At(0) = %v, want 1", v.At(0))
	}
	if _, err := NewValueFrom(m, []float64{1}); !errors.Is(err, ErrModelMismatch) {
		t.Fatalf("short slice error = %v, want ErrModelMismatch", err)
	}
}

func TestDotDetectsOverlap(t *testing.T) {
	m := twoBinModel(t)
	disjoint, err := Dot(mustValue(t, m, 4, 0), mustValue(t, m, 0, 2))
	if err != nil {
		t.Fatalf("Dot: %v", err)
	}
	if disjoint != 0 {
		t.Fatalf("Dot(disjoint) = %v, want 0", disjoint)
	}
	overlap, _ := Dot(mustValue(t, m, 4, 1), mustValue(t, m, 0, 2))
	if overlap != 2 {
		t.Fatalf("Dot(overlapping) = %v, want 2", overlap)
	}
	if _, err := Dot(nil, mustValue(t, m, 0, 2)); !errors.Is(err, ErrNilValue) {
		t.Fatalf("Dot(nil) error = %v, want ErrNilValue", err)
	}
}

func TestDivByZeroBin(t *testing.T) {
	m := twoBinModel(t)
	v := mustValue(t, m, 1, 0)
	_ = v.Div(NewValue(m))
	if !math.IsInf(v.At(0), 1) {
		t.Fatalf("1/0 = %v, want +Inf", v.At(0))
	}
	if !math.IsNaN(v.At(1)) {
		t.Fatalf("0/0 = %v, want NaN", v.At(1))
	}
}

func TestDecibelConversion(t *testing.T) {
	if got := ToDB(100); math.Abs(got-20) > 1e-12 {
		t.Fatalf("ToDB(100) = %v, want 20", got)
	}
	if got := FromDB(-3); math.Abs(got-0.5011872336) > 1e-9 {
		t.Fatalf("FromDB(-3) = %v, want ~0.501", got)
	}
	m := twoBinModel(t)
	if got := Uniform(m, 3).Mean(); got != 3 {
		t.Fatalf("Mean() = %v, want 3", got)
	}
	if got := mustValue(t, m, 4, 0).String(); got != "[4 0]" {
		t.Fatalf("String() = %q, want %q", got, "[4 0]")
	}
}

func TestThermalNoise(t *testing.T) {
	m, err := NewUniformModel(2.1e9, 180e3, 3)
	if err != nil {
		t.Fatalf("NewUniformModel: %v", err)
	}
	// -174 dBm/Hz + 9 dB = -165 dBm/Hz = 10^-19.5 W/Hz.
	n := ThermalNoise(m, 9)
	want := math.Pow(10, -19.5)
	for i := 0; i < n.Len(); i++ {
		if got := n.At(i); math.Abs(got-want) > want*1e-12 {
			t.Fatalf("bin %d = %g, want %g", i, got, want)
		}
	}
}
