package main

import (
	"errors"
	"image"
	"image/color"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
)

// errRenderSkip marks a frame whose draw was skipped because the math
// degenerated (zero or non-finite dynamic range). Not a failure; the next
// frame draws normally.
var errRenderSkip = errors.New("render skipped: degenerate range")

var (
	graphBackground = color.RGBA{R: 8, G: 8, B: 14, A: 255}
	graphLineColor  = color.RGBA{R: 120, G: 220, B: 255, A: 255}
	peakHoldColor   = color.RGBA{R: 255, G: 120, B: 80, A: 255}
	tunedMarkColor  = color.RGBA{R: 255, G: 60, B: 60, A: 255}
	edgeMarkColor   = color.RGBA{R: 90, G: 160, B: 90, A: 255}
)

type graphFrame struct {
	powers []float32
	at     time.Time
}

// GraphRenderer draws the smoothed amplitude trace with a decaying
// peak-hold overlay. The curve is the per-bin mean across a short history
// bounded by both an item cap and an age cap; the vertical scale comes
// from the two rolling trackers rather than the instantaneous frame.
type GraphRenderer struct {
	img    *image.RGBA
	width  int
	height int

	history   []graphFrame
	maxFrames int
	maxAge    time.Duration

	minTracker *RollingStatWindow
	maxTracker *RollingStatWindow
	peak       *PeakHoldBuffer

	colors    *ColorMapper
	contrast  float64
	intensity float64
	defFloor  float64
	defCeil   float64

	metrics *Metrics
}

// NewGraphRenderer creates a line-graph renderer. Half-height (split mode)
// and full-height (graph-only) variants differ only in the extents passed
// here and via Resize.
func NewGraphRenderer(width, height int, colors *ColorMapper, display DisplayConfig, spectrum SpectrumConfig, metrics *Metrics) *GraphRenderer {
	g := &GraphRenderer{
		maxFrames:  spectrum.AverageMaxFrames,
		maxAge:     time.Duration(spectrum.AverageWindowMs) * time.Millisecond,
		minTracker: NewRollingStatWindow(time.Duration(spectrum.MinTrackerSec * float64(time.Second))),
		maxTracker: NewRollingStatWindow(time.Duration(spectrum.MaxTrackerSec * float64(time.Second))),
		peak:       NewPeakHoldBuffer(spectrum.PeakHoldDecayDb),
		colors:     colors,
		contrast:   display.ContrastThreshold,
		intensity:  display.Intensity,
		defFloor:   display.MinDb,
		defCeil:    display.MaxDb,
		metrics:    metrics,
	}
	g.init(width, height)
	return g
}

func (g *GraphRenderer) init(width, height int) {
	g.width = width
	g.height = height
	g.img = image.NewRGBA(image.Rect(0, 0, width, height))
	fillRect(g.img, g.img.Bounds(), graphBackground)
}

// Resize reinitializes the canvas; the smoothing history is kept since it
// is stored per bin, not per pixel.
func (g *GraphRenderer) Resize(width, height int) {
	g.init(width, height)
}

// InvalidatePeakHold empties the peak-hold buffer; called before geometry
// changes so a stale-length buffer is never read.
func (g *GraphRenderer) InvalidatePeakHold() {
	g.peak.Invalidate()
	g.history = nil
}

// AddFrame folds one spectrum frame into the history and trackers and
// redraws the trace. Returns errRenderSkip when the scale degenerates.
func (g *GraphRenderer) AddFrame(powers []float32, snap ViewSnapshot, now time.Time) error {
	g.history = append(g.history, graphFrame{powers: powers, at: now})
	g.pruneHistory(now)

	lo, hi := frameExtremes(powers)
	if !math.IsNaN(lo) {
		g.minTracker.Add(lo, now)
		g.maxTracker.Add(hi, now)
	}

	floor, okMin := g.minTracker.Mean()
	ceil, okMax := g.maxTracker.Mean()
	if !okMin || !okMax {
		floor, ceil = g.defFloor, g.defCeil
	}
	// A little headroom keeps the trace off the canvas edges.
	floor -= 5
	ceil += 5

	span := ceil - floor
	if span <= 0 || math.IsNaN(span) || math.IsInf(span, 0) {
		if g.metrics != nil {
			g.metrics.RenderSkips.Inc()
		}
		return errRenderSkip
	}

	smoothed := g.averagedFrame()
	peaks := g.peak.Update(powers, now, floor, ceil)

	g.draw(smoothed, peaks, snap, floor, ceil)
	return nil
}

// pruneHistory enforces both caps: item count and age.
func (g *GraphRenderer) pruneHistory(now time.Time) {
	if len(g.history) > g.maxFrames {
		g.history = g.history[len(g.history)-g.maxFrames:]
	}
	cutoff := now.Add(-g.maxAge)
	i := 0
	for i < len(g.history) && g.history[i].at.Before(cutoff) {
		i++
	}
	// Always keep at least the newest frame.
	if i >= len(g.history) {
		i = len(g.history) - 1
	}
	if i > 0 {
		g.history = g.history[i:]
	}
}

// averagedFrame returns the per-bin mean across the retained history.
// Frames whose length disagrees with the newest frame (server
// reconfiguration in flight) are skipped rather than indexed.
func (g *GraphRenderer) averagedFrame() []float32 {
	newest := g.history[len(g.history)-1].powers
	n := len(newest)

	column := make([]float64, 0, len(g.history))
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		column = column[:0]
		for _, f := range g.history {
			if len(f.powers) == n {
				column = append(column, float64(f.powers[i]))
			}
		}
		out[i] = float32(stat.Mean(column, nil))
	}
	return out
}

func (g *GraphRenderer) draw(smoothed []float32, peaks []float64, snap ViewSnapshot, floor, ceil float64) {
	fillRect(g.img, g.img.Bounds(), graphBackground)

	curve := projectBins(smoothed, g.width, floor)
	span := ceil - floor

	// Gradient-filled curve: each column is filled from its amplitude down,
	// shaded by the same normalization the waterfall uses.
	for x := 0; x < g.width; x++ {
		norm := (curve[x] - floor) / span
		if norm < 0 {
			norm = 0
		} else if norm > 1 {
			norm = 1
		}
		top := g.height - 1 - int(norm*float64(g.height-1))

		shade := normalizePower(curve[x], floor, ceil, g.contrast, g.intensity)
		fill := g.colors.At(shade * 0.7)
		drawVLine(g.img, x, top+1, g.height, fill)
		g.img.SetRGBA(x, top, graphLineColor)
	}

	// Peak hold as a thin line over the filled curve, via the same
	// projector as the curve itself.
	peakLine := projectBins(float64sTo32(peaks), g.width, floor)
	for x := 0; x < g.width; x++ {
		norm := (peakLine[x] - floor) / span
		if norm < 0 {
			norm = 0
		} else if norm > 1 {
			norm = 1
		}
		y := g.height - 1 - int(norm*float64(g.height-1))
		g.img.SetRGBA(x, y, peakHoldColor)
	}

	g.drawTuningMarkers(snap)
}

// drawTuningMarkers paints the dial frequency and the passband edges.
// The interaction controller reads these pixel positions back through
// BandwidthEdgePixels; both must agree on the mapping.
func (g *GraphRenderer) drawTuningMarkers(snap ViewSnapshot) {
	if snap.TotalBandwidth <= 0 || snap.TunedFreq == 0 {
		return
	}

	if x, ok := freqToPixel(float64(snap.TunedFreq), snap, g.width); ok {
		drawVLine(g.img, x, 0, g.height, tunedMarkColor)
	}
	loX, hiX, ok := BandwidthEdgePixels(snap, g.width)
	if ok {
		drawVLine(g.img, loX, 0, g.height, edgeMarkColor)
		drawVLine(g.img, hiX, 0, g.height, edgeMarkColor)
	}
}

// Image returns the current canvas. Callers must not mutate it.
func (g *GraphRenderer) Image() *image.RGBA { return g.img }

// BandwidthEdgePixels maps the passband edges (offsets from the tuned
// frequency) to pixel columns, clamped to the visible range.
func BandwidthEdgePixels(snap ViewSnapshot, width int) (loX, hiX int, ok bool) {
	if snap.TotalBandwidth <= 0 || snap.TunedFreq == 0 {
		return 0, 0, false
	}
	lo := float64(snap.TunedFreq) + snap.BandwidthLow
	hi := float64(snap.TunedFreq) + snap.BandwidthHigh

	loX = clampPixel(freqToPixelUnclamped(lo, snap, width), width)
	hiX = clampPixel(freqToPixelUnclamped(hi, snap, width), width)
	return loX, hiX, true
}

// freqToPixel maps a frequency to a pixel column; ok is false when the
// frequency is outside the visible span.
func freqToPixel(freq float64, snap ViewSnapshot, width int) (int, bool) {
	x := freqToPixelUnclamped(freq, snap, width)
	if x < 0 || x >= width {
		return 0, false
	}
	return x, true
}

func freqToPixelUnclamped(freq float64, snap ViewSnapshot, width int) int {
	return int((freq - snap.StartFreq()) / snap.TotalBandwidth * float64(width))
}

func clampPixel(x, width int) int {
	if x < 0 {
		return 0
	}
	if x >= width {
		return width - 1
	}
	return x
}

func frameExtremes(powers []float32) (lo, hi float64) {
	lo, hi = math.NaN(), math.NaN()
	for _, v := range powers {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			continue
		}
		if math.IsNaN(lo) || f < lo {
			lo = f
		}
		if math.IsNaN(hi) || f > hi {
			hi = f
		}
	}
	return lo, hi
}

func float64sTo32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}
