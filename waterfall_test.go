package main

import (
	"testing"
	"time"
)

func testWaterfall(width, height int) *WaterfallRenderer {
	return NewWaterfallRenderer(width, height, NewColorMapper(ThemeGrayscale), DisplayConfig{
		MinDb:            -120,
		MaxDb:            -20,
		ElapsedLineEvery: 1_000_000, // keep stamps out of pixel assertions
	})
}

func flatFrame(n int, db float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = db
	}
	return out
}

func TestWaterfallScrollsExactlyOneRow(t *testing.T) {
	w := testWaterfall(64, 40)
	snap := ViewSnapshot{} // no geometry yet: the scale band stays blank

	// Bright frame, then dark frame. In grayscale the ceiling maps to
	// white and the floor to black.
	w.AddFrame(flatFrame(64, -20), snap, time.Now())
	w.AddFrame(flatFrame(64, -120), snap, time.Now())

	top := w.Image().RGBAAt(10, scaleBandHeight)
	below := w.Image().RGBAAt(10, scaleBandHeight+1)
	if top.R != 0 {
		t.Fatalf("newest row R=%d, want black (floor)", top.R)
	}
	if below.R != 255 {
		t.Fatalf("previous row R=%d, want white: history did not scroll by one row", below.R)
	}

	// Two rows down is still untouched background.
	twoDown := w.Image().RGBAAt(10, scaleBandHeight+2)
	if twoDown.R != 0 {
		t.Fatalf("row 2 R=%d, want untouched background", twoDown.R)
	}
}

func TestWaterfallResetClears(t *testing.T) {
	w := testWaterfall(64, 40)
	w.AddFrame(flatFrame(64, -20), ViewSnapshot{}, time.Now())

	w.Reset()
	if got := w.Image().RGBAAt(10, scaleBandHeight); got.R != 0 {
		t.Fatalf("pixel survived Reset: %+v", got)
	}
}

func TestWaterfallResize(t *testing.T) {
	w := testWaterfall(64, 40)
	w.AddFrame(flatFrame(64, -20), ViewSnapshot{}, time.Now())

	w.Resize(128, 40)
	img := w.Image()
	if img.Bounds().Dx() != 128 {
		t.Fatalf("width = %d, want 128", img.Bounds().Dx())
	}
	// Old content is carried over best-effort into the left half.
	if got := img.RGBAAt(10, scaleBandHeight); got.R != 255 {
		t.Fatalf("old content lost on resize: %+v", got)
	}
}

func TestSelectTickStep(t *testing.T) {
	cases := []struct {
		name  string
		bw    float64
		width int
		want  float64
	}{
		{"full band wide viewport", 30_000_000, 1024, 2_000_000},
		{"narrow span", 50_000, 1024, 5_000},
		{"tiny span floors at smallest step", 200, 1024, 100},
		{"narrow viewport needs fewer ticks", 30_000_000, 300, 5_000_000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := selectTickStep(tc.bw, tc.width); got != tc.want {
				t.Fatalf("selectTickStep(%v, %d) = %v, want %v", tc.bw, tc.width, got, tc.want)
			}
		})
	}
}

func TestFormatFrequency(t *testing.T) {
	cases := []struct {
		freq float64
		want string
	}{
		{7_100_000, "7.1 MHz"},
		{15_000_000, "15 MHz"},
		{472_500, "472.5 kHz"},
		{500, "500 Hz"},
	}
	for _, tc := range cases {
		if got := formatFrequency(tc.freq); got != tc.want {
			t.Fatalf("formatFrequency(%v) = %q, want %q", tc.freq, got, tc.want)
		}
	}
}

func TestColorMapperBounds(t *testing.T) {
	for _, theme := range []ColorTheme{ThemeClassic, ThemeGrayscale, ThemeThermal} {
		cm := NewColorMapper(theme)
		// Out-of-range normalized values clamp instead of indexing out of
		// the table.
		cm.At(-0.5)
		cm.At(1.5)
		if cm.At(0) == cm.At(1) {
			t.Fatalf("theme %s: floor and ceiling map to the same color", theme)
		}
	}
}
