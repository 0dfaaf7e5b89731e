package main

import (
	"image/color"
	"math"
)

// ColorTheme names a predefined color scheme for power visualization.
type ColorTheme string

const (
	ThemeClassic   ColorTheme = "classic"   // Blue to red transition
	ThemeGrayscale ColorTheme = "grayscale" // Black to white transition
	ThemeThermal   ColorTheme = "thermal"   // Black to red to yellow to white

	colorMapSize = 256
)

// ColorMapper maps normalized power values [0,1] to colors through a
// precomputed lookup table, so the per-pixel cost is one index.
type ColorMapper struct {
	lut  [colorMapSize]color.RGBA
	name ColorTheme
}

// NewColorMapper builds the lookup table for the named theme. Unknown
// names fall back to the classic theme.
func NewColorMapper(theme ColorTheme) *ColorMapper {
	cm := &ColorMapper{name: theme}
	fn := themeFunc(theme)
	for i := range cm.lut {
		cm.lut[i] = fn(float64(i) / float64(colorMapSize-1))
	}
	return cm
}

// At returns the color for a normalized power value in [0,1].
func (cm *ColorMapper) At(normalized float64) color.RGBA {
	idx := int(normalized * float64(colorMapSize-1))
	if idx < 0 {
		idx = 0
	} else if idx >= colorMapSize {
		idx = colorMapSize - 1
	}
	return cm.lut[idx]
}

// Theme returns the theme name the mapper was built with.
func (cm *ColorMapper) Theme() ColorTheme { return cm.name }

func themeFunc(theme ColorTheme) func(float64) color.RGBA {
	switch theme {
	case ThemeGrayscale:
		return func(p float64) color.RGBA {
			v := uint8(math.Pow(p, 0.7) * 255)
			return color.RGBA{R: v, G: v, B: v, A: 255}
		}

	case ThemeThermal:
		return func(p float64) color.RGBA {
			switch {
			case p < 0.33:
				return color.RGBA{R: uint8(p * 3 * 255), A: 255}
			case p < 0.66:
				return color.RGBA{R: 255, G: uint8((p - 0.33) * 3 * 255), A: 255}
			default:
				b := (p - 0.66) * 3
				if b > 1 {
					b = 1
				}
				return color.RGBA{R: 255, G: 255, B: uint8(b * 255), A: 255}
			}
		}

	default: // classic
		return func(p float64) color.RGBA {
			return hsvToRGB(240-p*240, 0.9+p*0.1, math.Pow(p, 0.7))
		}
	}
}

// hsvToRGB converts hue [0-360), saturation and value [0-1] to RGBA.
func hsvToRGB(h, s, v float64) color.RGBA {
	if s <= 0 {
		g := uint8(v * 255)
		return color.RGBA{R: g, G: g, B: g, A: 255}
	}

	if h >= 360 {
		h -= 360
	}
	h /= 60

	i := int(h)
	f := h - float64(i)

	vv := uint8(v * 255)
	p := uint8(v * (1 - s) * 255)
	q := uint8(v * (1 - s*f) * 255)
	t := uint8(v * (1 - s*(1-f)) * 255)

	switch i {
	case 0:
		return color.RGBA{R: vv, G: t, B: p, A: 255}
	case 1:
		return color.RGBA{R: q, G: vv, B: p, A: 255}
	case 2:
		return color.RGBA{R: p, G: vv, B: t, A: 255}
	case 3:
		return color.RGBA{R: p, G: q, B: vv, A: 255}
	case 4:
		return color.RGBA{R: t, G: p, B: vv, A: 255}
	default:
		return color.RGBA{R: vv, G: p, B: q, A: 255}
	}
}
