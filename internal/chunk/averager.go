package chunk

import (
	"time"

	"github.com/signalsfoundry/sinr-tracker/spectrum"
)

// Average is the duration-weighted mean SINR of one reception.
type Average struct {
	SINR     *spectrum.Value
	Duration time.Duration
	Windows  int
}

// MeanDB returns the mean over bins of the linear SINR, in dB.
func (a Average) MeanDB() float64 {
	return spectrum.ToDB(a.SINR.Mean())
}

// Averager computes, per reception, the mean SINR of every bin weighted by how
// long each window lasted. The result is handed to OnAverage at End.
type Averager struct {
	OnAverage func(Average)

	sum     *spectrum.Value
	total   time.Duration
	windows int
	last    *Average
}

// NewAverager returns an Averager reporting to fn, which may be nil.
func NewAverager(fn func(Average)) *Averager {
	return &Averager{OnAverage: fn}
}

func (a *Averager) Start() {
	a.sum = nil
	a.total = 0
	a.windows = 0
}

func (a *Averager) EvaluateSinrChunk(sinr *spectrum.Value, d time.Duration) {
	weighted := sinr.Copy()
	weighted.Scale(d.Seconds())
	if a.sum == nil {
		a.sum = weighted
	} else if err := a.sum.Add(weighted); err != nil {
		// The spectrum model changed without a new Start: windows over the old
		// model cannot be combined with this one, so the average restarts here.
		a.sum = weighted
		a.total = 0
		a.windows = 0
	}
	a.total += d
	a.windows++
}

func (a *Averager) End() {
	if a.sum == nil || a.total <= 0 {
		return
	}
	mean := a.sum.Copy()
	mean.Scale(1 / a.total.Seconds())
	avg := Average{SINR: mean, Duration: a.total, Windows: a.windows}
	a.last = &avg
	if a.OnAverage != nil {
		a.OnAverage(avg)
	}
}

// Last returns the average of the most recently ended reception.
func (a *Averager) Last() (Average, bool) {
	if a.last == nil {
		return Average{}, false
	}
	return *a.last, true
}
