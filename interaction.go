package main

import (
	"log"
	"math"
	"sync"
	"time"
)

// CommandSender is the protocol-client surface the controller needs.
type CommandSender interface {
	SendPan(frequency float64) error
	SendZoom(frequency float64, binBandwidth float64) error
	SendReset() error
}

// TuneFunc is the external tuning collaborator: it retunes the receiver
// dial, which eventually calls back into ViewState.SetTunedFreq.
type TuneFunc func(frequency uint64)

// Demodulation modes for which right-click carrier centering is active.
var carrierCenterModes = map[string]bool{
	"cw":  true,
	"cwr": true,
	"usb": true,
	"lsb": true,
	"am":  true,
	"sam": true,
}

// InteractionController translates pointer and wheel gestures into
// rate-limited protocol requests, keeping client and server view state
// consistent. All methods are safe for concurrent use; the HTTP control
// surface calls them from handler goroutines.
type InteractionController struct {
	mu sync.Mutex

	view    *ViewState
	sender  CommandSender
	tune    TuneFunc
	carrier CarrierDetector
	onZoom  func() // invalidates peak hold before a zoom request

	width int

	// Interaction tunables, from config.
	panThrottle   time.Duration
	wheelThrottle time.Duration
	wheelMode     string
	wheelStepHz   int64
	dragMinPixels int
	dragMinHz     float64
	minBinBW      float64

	// Drag state.
	dragging      bool
	dragStartX    int
	dragStartFreq uint64 // view center when the drag began
	dragMoved     bool
	lastPanAt     time.Time

	lastWheelAt time.Time

	// Transient confirmation for the control surface to display after a
	// successful carrier centering.
	lastCarrierCenter uint64
	lastCarrierAt     time.Time
}

// NewInteractionController wires the controller to its collaborators.
func NewInteractionController(view *ViewState, sender CommandSender, tune TuneFunc, carrier CarrierDetector, width int, cfg SpectrumConfig, onZoom func()) *InteractionController {
	return &InteractionController{
		view:          view,
		sender:        sender,
		tune:          tune,
		carrier:       carrier,
		onZoom:        onZoom,
		width:         width,
		panThrottle:   time.Duration(cfg.PanThrottleMs) * time.Millisecond,
		wheelThrottle: time.Duration(cfg.WheelThrottleMs) * time.Millisecond,
		wheelMode:     cfg.WheelMode,
		wheelStepHz:   cfg.WheelStepHz,
		dragMinPixels: cfg.DragMinPixels,
		dragMinHz:     cfg.DragMinHz,
		minBinBW:      cfg.MinBinBandwidth,
	}
}

// SetWidth updates the pixel width after a display resize.
func (ic *InteractionController) SetWidth(width int) {
	ic.mu.Lock()
	ic.width = width
	ic.mu.Unlock()
}

// PointerDown begins a drag-to-pan gesture. Dragging is disabled when the
// view already shows the whole universe; there is nowhere to pan.
func (ic *InteractionController) PointerDown(x int) {
	snap := ic.view.Snapshot()

	ic.mu.Lock()
	defer ic.mu.Unlock()

	if snap.TotalBandwidth >= UniverseHighHz-UniverseLowHz {
		ic.dragging = false
		return
	}

	ic.dragging = true
	ic.dragMoved = false
	ic.dragStartX = x
	ic.dragStartFreq = snap.CenterFreq
}

// PointerMove continues a drag. A pan request goes out only when the
// movement passes the pixel threshold, the frequency delta passes the Hz
// threshold and the throttle interval has elapsed: the backend derates
// rapid pan streams, and a per-pixel request stream would desync the view.
func (ic *InteractionController) PointerMove(x int, now time.Time) {
	snap := ic.view.Snapshot()

	ic.mu.Lock()
	if !ic.dragging || snap.TotalBandwidth <= 0 {
		ic.mu.Unlock()
		return
	}

	deltaPx := x - ic.dragStartX
	if abs(deltaPx) >= ic.dragMinPixels {
		ic.dragMoved = true
	}

	deltaFreq := -float64(deltaPx) * snap.TotalBandwidth / float64(ic.width)
	candidate := clampCenterFreq(float64(ic.dragStartFreq)+deltaFreq, snap.TotalBandwidth)

	pass := abs(deltaPx) >= ic.dragMinPixels &&
		math.Abs(float64(candidate)-float64(snap.CenterFreq)) >= ic.dragMinHz &&
		now.Sub(ic.lastPanAt) >= ic.panThrottle
	if pass {
		ic.lastPanAt = now
	}
	ic.mu.Unlock()

	if !pass {
		return
	}

	ic.view.ApplyOptimisticView(candidate, 0)
	if err := ic.sender.SendPan(float64(candidate)); err != nil {
		log.Printf("Pan request failed: %v", err)
	}
}

// PointerUp ends the gesture. Without significant movement it is a
// click-to-tune: the pixel column maps back to a frequency and the
// external tune callback runs. The resulting tuned-frequency update must
// not trigger a redundant auto-pan, hence the one-shot suppression.
func (ic *InteractionController) PointerUp(x int) {
	ic.mu.Lock()
	wasDragging := ic.dragging
	moved := ic.dragMoved
	ic.dragging = false
	width := ic.width
	ic.mu.Unlock()

	if !wasDragging || moved {
		return
	}

	snap := ic.view.Snapshot()
	if snap.TotalBandwidth <= 0 {
		return
	}

	freq := snap.StartFreq() + float64(x)/float64(width)*snap.TotalBandwidth
	if freq < UniverseLowHz || freq > UniverseHighHz {
		return
	}

	ic.view.SuppressNextPan()
	if ic.tune != nil {
		ic.tune(uint64(math.Round(freq)))
	}
}

// Wheel handles scroll input in one of two mutually exclusive modes:
// frequency stepping or zooming. Both respect the wheel throttle so the
// backend's rate limits are never tested by a fast scroll wheel.
func (ic *InteractionController) Wheel(notches int, now time.Time) {
	if notches == 0 {
		return
	}

	ic.mu.Lock()
	if now.Sub(ic.lastWheelAt) < ic.wheelThrottle {
		ic.mu.Unlock()
		return
	}
	ic.lastWheelAt = now
	mode := ic.wheelMode
	step := ic.wheelStepHz
	ic.mu.Unlock()

	if mode == "zoom" {
		if notches > 0 {
			ic.ZoomIn()
		} else {
			ic.ZoomOut()
		}
		return
	}

	snap := ic.view.Snapshot()
	target := int64(snap.TunedFreq) + int64(sign(notches))*step
	if target < UniverseLowHz {
		target = UniverseLowHz
	} else if target > UniverseHighHz {
		target = UniverseHighHz
	}
	if ic.tune != nil {
		ic.tune(uint64(target))
	}
}

// ZoomIn halves the bin bandwidth, re-centered on the tuned frequency.
func (ic *InteractionController) ZoomIn() { ic.zoom(0.5) }

// ZoomOut doubles the bin bandwidth, re-centered on the tuned frequency.
func (ic *InteractionController) ZoomOut() { ic.zoom(2) }

func (ic *InteractionController) zoom(factor float64) {
	snap := ic.view.Snapshot()
	if snap.BinBandwidth <= 0 || snap.BinCount <= 0 {
		return
	}

	newBinBW := snap.BinBandwidth * factor
	if newBinBW < ic.minBinBW {
		log.Printf("Zoom rejected: bin bandwidth %.3f Hz below minimum %.1f Hz", newBinBW, ic.minBinBW)
		return
	}

	newTotalBW := newBinBW * float64(snap.BinCount)
	if newTotalBW > UniverseHighHz-UniverseLowHz {
		newTotalBW = UniverseHighHz - UniverseLowHz
		newBinBW = newTotalBW / float64(snap.BinCount)
	}

	// Re-center on the dial, falling back to the current view center.
	center := float64(snap.TunedFreq)
	if center == 0 {
		center = float64(snap.CenterFreq)
	}
	clamped := clampCenterFreq(center, newTotalBW)

	// Stale-length peaks must never survive a geometry change.
	if ic.onZoom != nil {
		ic.onZoom()
	}

	ic.view.ApplyOptimisticView(clamped, newBinBW)
	if err := ic.sender.SendZoom(float64(clamped), newBinBW); err != nil {
		log.Printf("Zoom request failed: %v", err)
	}
}

// Reset asks the server for the default full-band view.
func (ic *InteractionController) Reset() {
	if ic.onZoom != nil {
		ic.onZoom()
	}
	if err := ic.sender.SendReset(); err != nil {
		log.Printf("Reset request failed: %v", err)
	}
}

// RightClick runs carrier centering: for whitelisted modes the detector
// inspects the current frame around the passband and suggests a dial
// frequency, which goes out through the external tune callback.
func (ic *InteractionController) RightClick(powers []float32, now time.Time) {
	snap := ic.view.Snapshot()
	if !carrierCenterModes[snap.Mode] || ic.carrier == nil {
		return
	}

	suggested, ok := ic.carrier.Detect(powers, snap)
	if !ok {
		return
	}

	ic.mu.Lock()
	ic.lastCarrierCenter = suggested
	ic.lastCarrierAt = now
	ic.mu.Unlock()

	log.Printf("Carrier centering: retuning to %d Hz", suggested)
	ic.view.SuppressNextPan()
	if ic.tune != nil {
		ic.tune(suggested)
	}
}

// CarrierConfirmation reports a recent carrier-centering result for the
// transient visual confirmation, if one happened within the last window.
func (ic *InteractionController) CarrierConfirmation(now time.Time) (uint64, bool) {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	if ic.lastCarrierCenter == 0 || now.Sub(ic.lastCarrierAt) > 3*time.Second {
		return 0, false
	}
	return ic.lastCarrierCenter, true
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func sign(v int) int {
	if v < 0 {
		return -1
	}
	return 1
}
