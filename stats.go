package main

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
)

// RollingStatWindow keeps time-ordered samples pruned to a fixed age.
// The displayed floor/ceiling is the mean of the retained samples rather
// than the instantaneous min/max, which keeps the auto-scale from
// flickering frame to frame.
type RollingStatWindow struct {
	maxAge  time.Duration
	samples []statSample
}

type statSample struct {
	value float64
	at    time.Time
}

// NewRollingStatWindow creates a window with the given retention.
func NewRollingStatWindow(maxAge time.Duration) *RollingStatWindow {
	return &RollingStatWindow{maxAge: maxAge}
}

// Add records a sample and prunes anything older than the window.
func (w *RollingStatWindow) Add(value float64, now time.Time) {
	w.samples = append(w.samples, statSample{value: value, at: now})
	w.prune(now)
}

func (w *RollingStatWindow) prune(now time.Time) {
	cutoff := now.Add(-w.maxAge)
	i := 0
	for i < len(w.samples) && w.samples[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		w.samples = w.samples[i:]
	}
}

// Mean returns the arithmetic mean of the retained samples.
func (w *RollingStatWindow) Mean() (float64, bool) {
	if len(w.samples) == 0 {
		return 0, false
	}
	values := make([]float64, len(w.samples))
	for i, s := range w.samples {
		values[i] = s.value
	}
	return stat.Mean(values, nil), true
}

// Len returns the number of retained samples.
func (w *RollingStatWindow) Len() int { return len(w.samples) }

// Reset drops all samples.
func (w *RollingStatWindow) Reset() { w.samples = nil }

// PeakHoldBuffer tracks a decaying running maximum per bin. It
// reinitializes itself whenever the frame length changes or any element
// goes non-finite, which covers frame-size churn during zoom transitions.
type PeakHoldBuffer struct {
	decayDbPerSec float64
	values        []float64
	lastUpdate    time.Time
}

// NewPeakHoldBuffer creates a buffer decaying at the given dB/s rate.
func NewPeakHoldBuffer(decayDbPerSec float64) *PeakHoldBuffer {
	return &PeakHoldBuffer{decayDbPerSec: decayDbPerSec}
}

// Update folds one frame into the peak hold and returns the current
// per-bin peaks. Each element becomes max(current, previous - decay*dt),
// clamped to [minDb, maxDb].
func (p *PeakHoldBuffer) Update(powers []float32, now time.Time, minDb, maxDb float64) []float64 {
	if p.values == nil || len(p.values) != len(powers) || p.hasNonFinite() {
		p.reset(powers, now, minDb, maxDb)
		return p.values
	}

	dt := now.Sub(p.lastUpdate).Seconds()
	if dt < 0 {
		dt = 0
	}
	p.lastUpdate = now

	decay := p.decayDbPerSec * dt
	for i, cur := range powers {
		decayed := p.values[i] - decay
		v := math.Max(float64(cur), decayed)
		if v < minDb {
			v = minDb
		} else if v > maxDb {
			v = maxDb
		}
		p.values[i] = v
	}
	return p.values
}

// Values returns the current peaks, or nil before the first frame.
func (p *PeakHoldBuffer) Values() []float64 { return p.values }

// Invalidate empties the buffer so the next frame reinitializes it.
func (p *PeakHoldBuffer) Invalidate() { p.values = nil }

func (p *PeakHoldBuffer) hasNonFinite() bool {
	for _, v := range p.values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return true
		}
	}
	return false
}

func (p *PeakHoldBuffer) reset(powers []float32, now time.Time, minDb, maxDb float64) {
	p.values = make([]float64, len(powers))
	for i, v := range powers {
		f := float64(v)
		if f < minDb {
			f = minDb
		} else if f > maxDb {
			f = maxDb
		}
		p.values[i] = f
	}
	p.lastUpdate = now
}
