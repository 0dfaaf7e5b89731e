package main

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var labelFace = basicfont.Face7x13

// drawLabel renders text with the fixed 7x13 face. y is the baseline.
func drawLabel(img *image.RGBA, x, y int, col color.RGBA, text string) {
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: labelFace,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

// labelWidth returns the pixel width of text in the label face.
func labelWidth(text string) int {
	return font.MeasureString(labelFace, text).Round()
}

// drawVLine draws a vertical line segment, clipped to the image bounds.
func drawVLine(img *image.RGBA, x, y0, y1 int, col color.RGBA) {
	b := img.Bounds()
	if x < b.Min.X || x >= b.Max.X {
		return
	}
	for y := max(y0, b.Min.Y); y < min(y1, b.Max.Y); y++ {
		img.SetRGBA(x, y, col)
	}
}

// drawHLine draws a horizontal line segment, clipped to the image bounds.
func drawHLine(img *image.RGBA, x0, x1, y int, col color.RGBA) {
	b := img.Bounds()
	if y < b.Min.Y || y >= b.Max.Y {
		return
	}
	for x := max(x0, b.Min.X); x < min(x1, b.Max.X); x++ {
		img.SetRGBA(x, y, col)
	}
}

// fillRect fills a rectangle, clipped to the image bounds.
func fillRect(img *image.RGBA, r image.Rectangle, col color.RGBA) {
	r = r.Intersect(img.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetRGBA(x, y, col)
		}
	}
}

// formatFrequency renders a tick or status label in Hz, kHz or MHz.
func formatFrequency(freq float64) string {
	switch {
	case freq >= 1e6:
		return trimZeros(fmt.Sprintf("%.3f", freq/1e6)) + " MHz"
	case freq >= 1e3:
		return trimZeros(fmt.Sprintf("%.1f", freq/1e3)) + " kHz"
	default:
		return fmt.Sprintf("%.0f Hz", freq)
	}
}

func trimZeros(s string) string {
	for len(s) > 0 && s[len(s)-1] == '0' {
		s = s[:len(s)-1]
	}
	if len(s) > 0 && s[len(s)-1] == '.' {
		s = s[:len(s)-1]
	}
	return s
}
