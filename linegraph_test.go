package main

import (
	"math"
	"testing"
	"time"
)

func testGraph(metrics *Metrics) *GraphRenderer {
	return NewGraphRenderer(256, 128, NewColorMapper(ThemeGrayscale),
		DisplayConfig{MinDb: -120, MaxDb: -20, ContrastThreshold: 0, Intensity: 0},
		SpectrumConfig{
			PeakHoldDecayDb:  3,
			AverageWindowMs:  500,
			AverageMaxFrames: 10,
			MinTrackerSec:    5,
			MaxTrackerSec:    5,
		}, metrics)
}

func TestGraphAddFrameDraws(t *testing.T) {
	g := testGraph(nil)
	now := time.Now()

	powers := make([]float32, 256)
	for i := range powers {
		powers[i] = -100
	}
	powers[128] = -40 // one strong signal

	if err := g.AddFrame(powers, ViewSnapshot{}, now); err != nil {
		t.Fatalf("AddFrame: %v", err)
	}

	// The signal column's trace must sit higher (smaller y) than a noise
	// column's. Find the topmost non-background pixel in each.
	topAt := func(x int) int {
		for y := 0; y < 128; y++ {
			if g.Image().RGBAAt(x, y) != graphBackground {
				return y
			}
		}
		return 128
	}
	if signal, noise := topAt(128), topAt(20); signal >= noise {
		t.Fatalf("signal column top %d not above noise column top %d", signal, noise)
	}
}

func TestGraphDegenerateRangeSkipsFrame(t *testing.T) {
	// Inverted defaults force a non-positive span when the trackers have
	// no finite samples to offer.
	g := NewGraphRenderer(64, 64, NewColorMapper(ThemeGrayscale),
		DisplayConfig{MinDb: -20, MaxDb: -120},
		SpectrumConfig{PeakHoldDecayDb: 3, AverageWindowMs: 500, AverageMaxFrames: 10, MinTrackerSec: 5, MaxTrackerSec: 5},
		nil)

	powers := []float32{float32(math.NaN()), float32(math.Inf(1))}
	err := g.AddFrame(powers, ViewSnapshot{}, time.Now())
	if err != errRenderSkip {
		t.Fatalf("err = %v, want errRenderSkip", err)
	}

	// The canvas stays untouched; the skip is not an error state.
	if got := g.Image().RGBAAt(10, 10); got != graphBackground {
		t.Fatalf("skipped frame painted pixels: %+v", got)
	}
}

func TestGraphSmoothingSkipsMismatchedFrames(t *testing.T) {
	g := testGraph(nil)
	now := time.Now()

	g.AddFrame(flatFrame(128, -100), ViewSnapshot{}, now)
	// Geometry changed mid-stream: this frame has a different bin count.
	g.AddFrame(flatFrame(256, -60), ViewSnapshot{}, now.Add(50*time.Millisecond))

	smoothed := g.averagedFrame()
	if len(smoothed) != 256 {
		t.Fatalf("smoothed length = %d, want newest frame's 256", len(smoothed))
	}
	// The 128-bin frame contributes nothing to the per-bin mean.
	if smoothed[0] != -60 {
		t.Fatalf("smoothed[0] = %v, want -60", smoothed[0])
	}
}

func TestGraphHistoryCaps(t *testing.T) {
	g := testGraph(nil)
	now := time.Now()

	for i := 0; i < 25; i++ {
		g.AddFrame(flatFrame(16, -90), ViewSnapshot{}, now.Add(time.Duration(i)*10*time.Millisecond))
	}
	if len(g.history) > 10 {
		t.Fatalf("history holds %d frames, item cap is 10", len(g.history))
	}

	// Everything but the newest frame ages out past the 500 ms window.
	g.AddFrame(flatFrame(16, -90), ViewSnapshot{}, now.Add(time.Hour))
	if len(g.history) != 1 {
		t.Fatalf("history holds %d frames after aging, want 1", len(g.history))
	}
}

func TestBandwidthEdgePixels(t *testing.T) {
	snap := ViewSnapshot{
		CenterFreq:     7_100_000,
		TotalBandwidth: 1_000_000, // 6.6 - 7.6 MHz visible
		TunedFreq:      7_100_000,
		BandwidthLow:   0,
		BandwidthHigh:  250_000, // kept wide for pixel math clarity
	}

	loX, hiX, ok := BandwidthEdgePixels(snap, 1000)
	if !ok {
		t.Fatal("edges not reported")
	}
	if loX != 500 {
		t.Fatalf("low edge at %d, want 500", loX)
	}
	if hiX != 750 {
		t.Fatalf("high edge at %d, want 750", hiX)
	}

	// Edges beyond the visible span clamp to the canvas.
	snap.BandwidthHigh = 10_000_000
	_, hiX, _ = BandwidthEdgePixels(snap, 1000)
	if hiX != 999 {
		t.Fatalf("off-screen edge at %d, want clamp to 999", hiX)
	}
}

func TestFreqToPixel(t *testing.T) {
	snap := ViewSnapshot{CenterFreq: 7_100_000, TotalBandwidth: 1_000_000}

	if x, ok := freqToPixel(7_100_000, snap, 1000); !ok || x != 500 {
		t.Fatalf("center: x=%d ok=%v, want 500", x, ok)
	}
	if _, ok := freqToPixel(8_000_000, snap, 1000); ok {
		t.Fatal("off-screen frequency reported as visible")
	}
}
