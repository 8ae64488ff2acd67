// Package chunk provides SINR chunk consumers for the interference tracker.
package chunk

import (
	"time"

	"github.com/signalsfoundry/sinr-tracker/spectrum"
)

// Window is one SINR sample and the interval it held for.
type Window struct {
	SINR     *spectrum.Value
	Duration time.Duration
}

// Recorder keeps every window it is given, grouped by reception.
type Recorder struct {
	receptions [][]Window
	open       bool
	ends       int
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Start() {
	r.receptions = append(r.receptions, nil)
	r.open = true
}

func (r *Recorder) End() {
	r.open = false
	r.ends++
}

func (r *Recorder) EvaluateSinrChunk(sinr *spectrum.Value, d time.Duration) {
	if len(r.receptions) == 0 {
		r.receptions = append(r.receptions, nil)
	}
	last := len(r.receptions) - 1
	r.receptions[last] = append(r.receptions[last], Window{SINR: sinr, Duration: d})
}

// Receptions returns the number of receptions started.
func (r *Recorder) Receptions() int { return len(r.receptions) }

// Completed returns the number of receptions that ended through End. A
// reception aborted by a noise floor update is never completed.
func (r *Recorder) Completed() int { return r.ends }

// Receiving reports whether the last reception has started but not ended.
func (r *Recorder) Receiving() bool { return r.open }

// Windows returns every window recorded, in order.
func (r *Recorder) Windows() []Window {
	var out []Window
	for _, rx := range r.receptions {
		out = append(out, rx...)
	}
	return out
}

// Reception returns the windows of the i-th reception.
func (r *Recorder) Reception(i int) []Window {
	return r.receptions[i]
}

// Total returns the summed duration of every window.
func (r *Recorder) Total() time.Duration {
	var total time.Duration
	for _, rx := range r.receptions {
		for _, w := range rx {
			total += w.Duration
		}
	}
	return total
}

// Funcs adapts plain functions to a chunk consumer. Nil fields are skipped.
type Funcs struct {
	OnStart func()
	OnEnd   func()
	OnChunk func(sinr *spectrum.Value, d time.Duration)
}

func (f Funcs) Start() {
	if f.OnStart != nil {
		f.OnStart()
	}
}

func (f Funcs) End() {
	if f.OnEnd != nil {
		f.OnEnd()
	}
}

func (f Funcs) EvaluateSinrChunk(sinr *spectrum.Value, d time.Duration) {
	if f.OnChunk != nil {
		f.OnChunk(sinr, d)
	}
}
