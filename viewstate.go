package main

import (
	"log"
	"math"
	"sync"
)

// The receiver covers 0-30 MHz. Every locally computed center frequency
// must keep the full span inside this universe before it goes on the wire;
// the server is the final authority but will reject out-of-range requests.
const (
	UniverseLowHz  = 0
	UniverseHighHz = 30_000_000

	// The server additionally rejects centers below 10 kHz.
	MinCenterFreqHz = 10_000
)

// bandwidthClamp bounds the low/high edge offsets for one demodulation mode.
type bandwidthClamp struct {
	lowMin, lowMax   float64
	highMin, highMax float64
}

// Per-mode edge clamps. CW is deliberately asymmetric (low in [-500,0],
// high in [0,500]) even though the edges are adjusted together; kept as
// found in the original clamp table.
var modeBandwidthClamps = map[string]bandwidthClamp{
	"usb": {lowMin: 0, lowMax: 100, highMin: 500, highMax: 6000},
	"lsb": {lowMin: -6000, lowMax: -500, highMin: -100, highMax: 0},
	"cw":  {lowMin: -500, lowMax: 0, highMin: 0, highMax: 500},
	"cwr": {lowMin: -500, lowMax: 0, highMin: 0, highMax: 500},
	"am":  {lowMin: -8000, lowMax: -100, highMin: 100, highMax: 8000},
	"sam": {lowMin: -8000, lowMax: -100, highMin: 100, highMax: 8000},
	"fm":  {lowMin: -10000, lowMax: -1000, highMin: 1000, highMax: 10000},
}

// ViewSnapshot is an immutable copy of the view geometry handed to
// renderers and the interaction controller.
type ViewSnapshot struct {
	CenterFreq     uint64
	BinCount       int
	BinBandwidth   float64
	TotalBandwidth float64
	ZoomLevel      float64
	TunedFreq      uint64
	Mode           string
	BandwidthLow   float64
	BandwidthHigh  float64
}

// StartFreq returns the frequency of the leftmost pixel column.
func (s ViewSnapshot) StartFreq() float64 {
	return float64(s.CenterFreq) - s.TotalBandwidth/2
}

// EndFreq returns the frequency of the rightmost pixel column.
func (s ViewSnapshot) EndFreq() float64 {
	return float64(s.CenterFreq) + s.TotalBandwidth/2
}

// ViewState holds the client's copy of the spectrum view geometry.
// It is mutated only by config frames and by local optimistic updates
// immediately before a pan/zoom/reset round trip.
type ViewState struct {
	mu sync.RWMutex

	centerFreq     uint64
	binCount       int
	binBandwidth   float64
	totalBandwidth float64

	// Recorded from the first config frame; zoomLevel = initial/current.
	initialBinBandwidth float64
	zoomLevel           float64

	tunedFreq     uint64
	mode          string
	bandwidthLow  float64
	bandwidthHigh float64

	// One-shot: the next tuned-frequency update came from a click on the
	// display itself, so the zoomed view must not auto-pan after it.
	suppressPanOnce bool

	// Invoked before new geometry is adopted so stale-length buffers
	// (peak hold, waterfall rows) are never read under the new geometry.
	onGeometryChange func()

	// Invoked when a zoomed view should follow the tuned frequency.
	panRequester func(centerFreq uint64)
}

// NewViewState creates an empty view state. Collaborators are injected,
// not read from globals.
func NewViewState(onGeometryChange func(), panRequester func(uint64)) *ViewState {
	return &ViewState{
		onGeometryChange: onGeometryChange,
		panRequester:     panRequester,
	}
}

// ApplyConfig adopts geometry from a config frame. Buffers are invalidated
// first whenever center frequency, total bandwidth or bin count changed.
func (v *ViewState) ApplyConfig(frame *SpectrumFrame) {
	v.mu.Lock()

	changed := frame.CenterFreq != v.centerFreq ||
		frame.TotalBandwidth != v.totalBandwidth ||
		frame.BinCount != v.binCount

	if changed && v.onGeometryChange != nil {
		v.onGeometryChange()
	}

	v.centerFreq = frame.CenterFreq
	v.binCount = frame.BinCount
	v.binBandwidth = frame.BinBandwidth
	v.totalBandwidth = frame.TotalBandwidth

	if v.initialBinBandwidth == 0 {
		v.initialBinBandwidth = frame.BinBandwidth
	}
	if frame.BinBandwidth > 0 {
		v.zoomLevel = v.initialBinBandwidth / frame.BinBandwidth
	}

	centerFreq := v.centerFreq
	zoom := v.zoomLevel
	v.mu.Unlock()

	if changed {
		log.Printf("View config: center=%d Hz, bins=%d, bin_bw=%.3f Hz, span=%.0f Hz, zoom=%.1fx",
			centerFreq, frame.BinCount, frame.BinBandwidth, frame.TotalBandwidth, zoom)
	}
}

// SetTunedFreq records the dial frequency. When the view is zoomed beyond
// the full band, the view follows the dial with a pan request, unless the
// change originated from a click on the display (one-shot suppression).
func (v *ViewState) SetTunedFreq(freq uint64) {
	v.mu.Lock()
	v.tunedFreq = freq

	suppress := v.suppressPanOnce
	v.suppressPanOnce = false

	follow := v.zoomLevel > 1 && !suppress && v.panRequester != nil
	totalBW := v.totalBandwidth
	requester := v.panRequester
	v.mu.Unlock()

	if follow {
		requester(clampCenterFreq(float64(freq), totalBW))
	}
}

// SuppressNextPan opts the next SetTunedFreq out of the auto-pan, for
// exactly one update.
func (v *ViewState) SuppressNextPan() {
	v.mu.Lock()
	v.suppressPanOnce = true
	v.mu.Unlock()
}

// SetMode records the demodulation mode.
func (v *ViewState) SetMode(mode string) {
	v.mu.Lock()
	v.mode = mode
	v.mu.Unlock()
}

// SetBandwidthEdges stores the passband edge offsets relative to the tuned
// frequency. Non-finite values are ignored; the per-mode clamp table bounds
// the rest. Rendering clamps visually beyond that.
func (v *ViewState) SetBandwidthEdges(low, high float64) {
	if math.IsNaN(low) || math.IsInf(low, 0) || math.IsNaN(high) || math.IsInf(high, 0) {
		return
	}

	v.mu.Lock()
	if clamp, ok := modeBandwidthClamps[v.mode]; ok {
		low = math.Min(math.Max(low, clamp.lowMin), clamp.lowMax)
		high = math.Min(math.Max(high, clamp.highMin), clamp.highMax)
	}
	v.bandwidthLow = low
	v.bandwidthHigh = high
	v.mu.Unlock()
}

// ApplyOptimisticView updates geometry locally before the server confirms
// a pan/zoom, so the display tracks user intent without a round trip.
func (v *ViewState) ApplyOptimisticView(centerFreq uint64, binBandwidth float64) {
	v.mu.Lock()
	v.centerFreq = centerFreq
	if binBandwidth > 0 {
		v.binBandwidth = binBandwidth
		v.totalBandwidth = binBandwidth * float64(v.binCount)
		if v.initialBinBandwidth > 0 {
			v.zoomLevel = v.initialBinBandwidth / binBandwidth
		}
	}
	v.mu.Unlock()
}

// Snapshot returns a consistent copy of the current geometry.
func (v *ViewState) Snapshot() ViewSnapshot {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return ViewSnapshot{
		CenterFreq:     v.centerFreq,
		BinCount:       v.binCount,
		BinBandwidth:   v.binBandwidth,
		TotalBandwidth: v.totalBandwidth,
		ZoomLevel:      v.zoomLevel,
		TunedFreq:      v.tunedFreq,
		Mode:           v.mode,
		BandwidthLow:   v.bandwidthLow,
		BandwidthHigh:  v.bandwidthHigh,
	}
}

// clampCenterFreq bounds a candidate center frequency so that the span
// [center-bw/2, center+bw/2] stays inside the 0-30 MHz universe, and the
// center itself stays at or above the server's 10 kHz minimum.
func clampCenterFreq(center float64, totalBandwidth float64) uint64 {
	half := totalBandwidth / 2

	if center-half < UniverseLowHz {
		center = UniverseLowHz + half
	}
	if center+half > UniverseHighHz {
		center = UniverseHighHz - half
	}
	if center < MinCenterFreqHz {
		center = MinCenterFreqHz
	}
	if center < half {
		// Span wider than the room below: pin to the lowest legal center.
		center = half
	}
	return uint64(math.Round(center))
}
