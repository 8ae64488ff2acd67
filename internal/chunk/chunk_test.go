package chunk

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/signalsfoundry/sinr-tracker/internal/interference"
	"github.com/signalsfoundry/sinr-tracker/internal/sim/scheduler"
	"github.com/signalsfoundry/sinr-tracker/spectrum"
	"github.com/signalsfoundry/sinr-tracker/timectrl"
)

var (
	_ interference.ChunkConsumer = (*Recorder)(nil)
	_ interference.ChunkConsumer = (*Averager)(nil)
	_ interference.ChunkConsumer = Funcs{}
)

func mustValue(t *testing.T, m *spectrum.Model, vals ...float64) *spectrum.Value {
	t.Helper()
	v, err := spectrum.NewValueFrom(m, vals)
	if err != nil {
		t.Fatalf("NewValueFrom(%v): %v", vals, err)
	}
	return v
}

func TestAveragerWeightsByDuration(t *testing.T) {
	m, _ := spectrum.NewUniformModel(1e9, 1e6, 2)

	var got []Average
	a := NewAverager(func(avg Average) { got = append(got, avg) })
	a.Start()
	a.EvaluateSinrChunk(mustValue(t, m, 4, 0), 3*time.Second)
	a.EvaluateSinrChunk(mustValue(t, m, 0, 8), time.Second)
	a.End()

	if len(got) != 1 {
		t.Fatalf("averages reported = %d, want 1", len(got))
	}
	if diff := cmp.Diff([]float64{3, 2}, got[0].SINR.Values(), cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Fatalf("mean sinr mismatch (-want +got):\n%s", diff)
	}
	if got[0].Duration != 4*time.Second || got[0].Windows != 2 {
		t.Fatalf("average = %+v, want 4s over 2 windows", got[0])
	}
	if db := got[0].MeanDB(); math.Abs(db-spectrum.ToDB(2.5)) > 1e-9 {
		t.Fatalf("MeanDB() = %v, want %v", db, spectrum.ToDB(2.5))
	}

	// A new reception starts from scratch.
	a.Start()
	a.EvaluateSinrChunk(mustValue(t, m, 1, 1), time.Second)
	a.End()
	last, ok := a.Last()
	if !ok || last.Windows != 1 || last.SINR.At(0) != 1 {
		t.Fatalf("Last() = %+v, %v; want a single 1s window", last, ok)
	}
}

func TestAveragerRestartsOnModelChange(t *testing.T) {
	before, _ := spectrum.NewUniformModel(1e9, 1e6, 2)
	after, _ := spectrum.NewUniformModel(1e9, 1e6, 3)

	a := NewAverager(nil)
	a.Start()
	a.EvaluateSinrChunk(mustValue(t, before, 4, 4), 2*time.Second)
	a.EvaluateSinrChunk(mustValue(t, after, 1, 2, 3), time.Second)
	a.End()

	avg, ok := a.Last()
	if !ok {
		t.Fatal("Last() reported no average")
	}
	if avg.SINR.Model() != after || avg.Windows != 1 || avg.Duration != time.Second {
		t.Fatalf("average = %+v, want one 1s window over the new model", avg)
	}
	if diff := cmp.Diff([]float64{1, 2, 3}, avg.SINR.Values(), cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Fatalf("mean sinr mismatch (-want +got):\n%s", diff)
	}
}

func TestAveragerSkipsEmptyReception(t *testing.T) {
	called := false
	a := NewAverager(func(Average) { called = true })
	a.Start()
	a.End()
	if called {
		t.Fatal("averager reported a reception without windows")
	}
	if _, ok := a.Last(); ok {
		t.Fatal("Last() reported a value for an empty reception")
	}
}

func TestRecorderWithTracker(t *testing.T) {
	start := time.Unix(0, 0).UTC()
	sched := scheduler.New(timectrl.NewTimeController(start, timectrl.Accelerated))
	m, _ := spectrum.NewUniformModel(1e9, 1e6, 2)
	tr := interference.New(sched)

	rec := NewRecorder()
	var ends int
	tr.RegisterConsumer(rec)
	tr.RegisterConsumer(Funcs{OnEnd: func() { ends++ }})
	if err := tr.SetNoiseFloor(spectrum.Uniform(m, 1)); err != nil {
		t.Fatalf("SetNoiseFloor: %v", err)
	}

	own := mustValue(t, m, 2, 0)
	if err := tr.AddSignal(own, 4*time.Second); err != nil {
		t.Fatalf("AddSignal: %v", err)
	}
	if err := tr.StartRx(own); err != nil {
		t.Fatalf("StartRx: %v", err)
	}
	sched.Schedule(start.Add(time.Second), func() {
		if err := tr.AddSignal(mustValue(t, m, 1, 0), time.Second); err != nil {
			t.Errorf("AddSignal: %v", err)
		}
	})
	sched.Schedule(start.Add(4*time.Second), tr.EndRx)
	if err := sched.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if rec.Receptions() != 1 || rec.Completed() != 1 || ends != 1 || rec.Receiving() {
		t.Fatalf("receptions=%d completed=%d ends=%d receiving=%v", rec.Receptions(), rec.Completed(), ends, rec.Receiving())
	}
	if rec.Total() != 4*time.Second {
		t.Fatalf("Total() = %s, want 4s", rec.Total())
	}
	var sinr0 []float64
	for _, w := range rec.Reception(0) {
		sinr0 = append(sinr0, w.SINR.At(0))
	}
	// [0,1): 2/1, [1,2): 2/2, [2,4): 2/1
	if diff := cmp.Diff([]float64{2, 1, 2}, sinr0, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Fatalf("bin 0 sinr mismatch (-want +got):\n%s", diff)
	}
	if len(rec.Windows()) != 3 {
		t.Fatalf("Windows() = %d, want 3", len(rec.Windows()))
	}
}
