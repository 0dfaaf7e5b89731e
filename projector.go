package main

import "math"

// projectBins maps an arbitrary-length power array onto a fixed pixel
// width with linear interpolation. The waterfall row painter, the line
// graph curve and the peak-hold line all go through this one function;
// if they disagreed the three layers would drift apart visually.
//
// For each pixel column x the fractional bin position is p = (x/W)*N.
// Between two valid bins the value is interpolated; the last bin is used
// directly; anything out of range maps to floorDb.
func projectBins(powers []float32, width int, floorDb float64) []float64 {
	out := make([]float64, width)
	n := len(powers)

	if n == 0 || width <= 0 {
		for x := range out {
			out[x] = floorDb
		}
		return out
	}

	for x := 0; x < width; x++ {
		p := float64(x) / float64(width) * float64(n)
		i := int(math.Floor(p))
		frac := p - float64(i)

		switch {
		case i >= 0 && i+1 < n:
			a := float64(powers[i])
			b := float64(powers[i+1])
			out[x] = a + frac*(b-a)
		case i == n-1:
			out[x] = float64(powers[i])
		default:
			out[x] = floorDb
		}
	}
	return out
}

// normalizePower maps a dB value into [0,1] for color and amplitude
// mapping. After range normalization a contrast threshold zeroes out the
// bottom of the range and rescales the remainder (noise-floor
// suppression), then an intensity term symmetric around 1.0 scales the
// result: negative intensity attenuates, positive boosts.
func normalizePower(db, floorDb, ceilDb, contrastThreshold, intensity float64) float64 {
	span := ceilDb - floorDb
	if span <= 0 {
		return 0
	}

	norm := (db - floorDb) / span
	if norm < 0 {
		norm = 0
	} else if norm > 1 {
		norm = 1
	}

	if contrastThreshold > 0 {
		if norm <= contrastThreshold {
			norm = 0
		} else {
			norm = (norm - contrastThreshold) / (1 - contrastThreshold)
		}
	}

	norm *= 1 + intensity
	if norm < 0 {
		norm = 0
	} else if norm > 1 {
		norm = 1
	}
	return norm
}
