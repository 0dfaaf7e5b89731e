package main

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"time"
)

// Candidate tick steps in Hz, largest first. The selector picks the
// largest step that still yields the desired number of ticks.
var tickStepCandidates = []float64{
	5_000_000, 2_000_000, 1_000_000,
	500_000, 200_000, 100_000,
	50_000, 20_000, 10_000,
	5_000, 2_000, 1_000,
	500, 200, 100,
}

const scaleBandHeight = 18 // rows reserved at the top for the frequency scale

var (
	scaleBackground = color.RGBA{R: 16, G: 16, B: 24, A: 255}
	scaleForeground = color.RGBA{R: 220, G: 220, B: 220, A: 255}
	stampColor      = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	bookmarkColor   = color.RGBA{R: 255, G: 200, B: 0, A: 255}
)

// OverlayRenderer is an injected collaborator drawn over the frequency
// scale band. Given the current view bounds it decides its own pixel
// positions; the waterfall knows nothing about bookmarks.
type OverlayRenderer interface {
	DrawOverlay(img *image.RGBA, band image.Rectangle, snap ViewSnapshot)
}

// WaterfallRenderer maintains a rolling image buffer: elapsed time runs
// downward, one painted row per spectrum frame.
type WaterfallRenderer struct {
	img    *image.RGBA
	width  int
	height int

	colors    *ColorMapper
	overlay   OverlayRenderer
	floorDb   float64
	ceilDb    float64
	contrast  float64
	intensity float64

	elapsedEvery int
	rowsPainted  uint64
	startedAt    time.Time
}

// NewWaterfallRenderer creates a renderer for the given pixel extents.
func NewWaterfallRenderer(width, height int, colors *ColorMapper, display DisplayConfig) *WaterfallRenderer {
	w := &WaterfallRenderer{
		colors:       colors,
		floorDb:      display.MinDb,
		ceilDb:       display.MaxDb,
		contrast:     display.ContrastThreshold,
		intensity:    display.Intensity,
		elapsedEvery: display.ElapsedLineEvery,
	}
	w.init(width, height)
	return w
}

func (w *WaterfallRenderer) init(width, height int) {
	w.width = width
	w.height = height
	w.img = image.NewRGBA(image.Rect(0, 0, width, height))
	fillRect(w.img, w.img.Bounds(), color.RGBA{A: 255})
	w.rowsPainted = 0
	w.startedAt = time.Now()
}

// SetOverlay injects the scale-band overlay collaborator.
func (w *WaterfallRenderer) SetOverlay(o OverlayRenderer) { w.overlay = o }

// Resize reinitializes the buffer for a new width. Historical content is
// preserved only by a best-effort image copy; resampling old rows from
// source data is out of scope.
func (w *WaterfallRenderer) Resize(width, height int) {
	old := w.img
	w.init(width, height)
	if old != nil {
		draw.Draw(w.img, w.img.Bounds(), old, image.Point{}, draw.Src)
	}
}

// Reset discards the buffer entirely (display mode change).
func (w *WaterfallRenderer) Reset() {
	w.init(w.width, w.height)
}

// AddFrame scrolls history down one row, paints the new frame at the top
// of the waterfall area and redraws the frequency scale band, which the
// scroll does not preserve.
func (w *WaterfallRenderer) AddFrame(powers []float32, snap ViewSnapshot, now time.Time) {
	w.scrollDown()
	w.paintRow(powers, scaleBandHeight)

	w.rowsPainted++
	if w.elapsedEvery > 0 && w.rowsPainted%uint64(w.elapsedEvery) == 0 {
		w.stampElapsed(now)
	}

	w.drawScaleBand(snap)
}

// scrollDown moves every waterfall row down by exactly one, pixel for
// pixel, within the area below the scale band.
func (w *WaterfallRenderer) scrollDown() {
	stride := w.img.Stride
	rowBytes := w.width * 4
	for y := w.height - 1; y > scaleBandHeight; y-- {
		dst := w.img.Pix[y*stride : y*stride+rowBytes]
		src := w.img.Pix[(y-1)*stride : (y-1)*stride+rowBytes]
		copy(dst, src)
	}
}

func (w *WaterfallRenderer) paintRow(powers []float32, y int) {
	projected := projectBins(powers, w.width, w.floorDb)
	for x, db := range projected {
		norm := normalizePower(db, w.floorDb, w.ceilDb, w.contrast, w.intensity)
		w.img.SetRGBA(x, y, w.colors.At(norm))
	}
}

// stampElapsed writes a wall-clock label into the newest row region; it
// scrolls down with the history afterwards.
func (w *WaterfallRenderer) stampElapsed(now time.Time) {
	label := now.UTC().Format("15:04:05")
	baseline := scaleBandHeight + labelFace.Ascent
	if baseline < w.height {
		drawLabel(w.img, 2, baseline, stampColor, label)
	}
}

// drawScaleBand repaints frequency ticks and labels across the top.
func (w *WaterfallRenderer) drawScaleBand(snap ViewSnapshot) {
	fillRect(w.img, image.Rect(0, 0, w.width, scaleBandHeight), scaleBackground)

	if snap.TotalBandwidth <= 0 {
		return
	}

	step := selectTickStep(snap.TotalBandwidth, w.width)
	startFreq := snap.StartFreq()
	endFreq := snap.EndFreq()

	// First tick at the next multiple of step at or above the left edge.
	first := math.Ceil(startFreq/step) * step
	for freq := first; freq <= endFreq; freq += step {
		x := int((freq - startFreq) / snap.TotalBandwidth * float64(w.width))
		drawVLine(w.img, x, scaleBandHeight-5, scaleBandHeight, scaleForeground)

		label := formatFrequency(freq)
		lx := x - labelWidth(label)/2
		if lx < 0 {
			lx = 0
		}
		if lx+labelWidth(label) > w.width {
			lx = w.width - labelWidth(label)
		}
		drawLabel(w.img, lx, labelFace.Ascent, scaleForeground, label)
	}

	if w.overlay != nil {
		w.overlay.DrawOverlay(w.img, image.Rect(0, 0, w.width, scaleBandHeight), snap)
	}
}

// Image returns the current buffer. Callers must not mutate it.
func (w *WaterfallRenderer) Image() *image.RGBA { return w.img }

// selectTickStep picks the largest candidate step that still produces the
// desired tick count. The desired count scales down on narrow viewports,
// with a floor of 3 and a ceiling of about 10.
func selectTickStep(totalBandwidth float64, width int) float64 {
	desired := width / 120
	if desired < 3 {
		desired = 3
	} else if desired > 10 {
		desired = 10
	}

	for _, step := range tickStepCandidates {
		if totalBandwidth/step >= float64(desired) {
			return step
		}
	}
	return tickStepCandidates[len(tickStepCandidates)-1]
}
