package main

import (
	"math"
	"sort"
)

// CarrierDetector suggests a dial frequency given the current spectrum
// frame and view geometry. The spectrum display treats it as an external
// collaborator; implementations are mode-aware through the snapshot.
type CarrierDetector interface {
	Detect(powers []float32, snap ViewSnapshot) (uint64, bool)
}

// PeakCarrierDetector finds the strongest bin inside the passband around
// the tuned frequency and requires it to clear the noise floor by a
// minimum margin. The noise floor estimate is the median of the searched
// window, which is robust against the carrier itself.
type PeakCarrierDetector struct {
	MinSNRDb float64
}

// NewPeakCarrierDetector returns a detector with the given SNR threshold.
func NewPeakCarrierDetector(minSNRDb float64) *PeakCarrierDetector {
	return &PeakCarrierDetector{MinSNRDb: minSNRDb}
}

// Detect implements CarrierDetector.
func (d *PeakCarrierDetector) Detect(powers []float32, snap ViewSnapshot) (uint64, bool) {
	if len(powers) == 0 || snap.TotalBandwidth <= 0 || snap.TunedFreq == 0 {
		return 0, false
	}

	startFreq := snap.StartFreq()
	hzPerBin := snap.TotalBandwidth / float64(len(powers))

	// Search the passband, widened a little so a mistuned carrier just
	// outside the edges is still found.
	searchLow := float64(snap.TunedFreq) + snap.BandwidthLow - 2*hzPerBin
	searchHigh := float64(snap.TunedFreq) + snap.BandwidthHigh + 2*hzPerBin

	loBin := int((searchLow - startFreq) / hzPerBin)
	hiBin := int((searchHigh-startFreq)/hzPerBin) + 1
	if loBin < 0 {
		loBin = 0
	}
	if hiBin > len(powers) {
		hiBin = len(powers)
	}
	if hiBin-loBin < 3 {
		return 0, false
	}

	window := powers[loBin:hiBin]
	peakIdx, peakVal := 0, float32(math.Inf(-1))
	for i, v := range window {
		if v > peakVal {
			peakIdx, peakVal = i, v
		}
	}

	if float64(peakVal)-medianFloat32(window) < d.MinSNRDb {
		return 0, false
	}

	peakFreq := startFreq + (float64(loBin+peakIdx)+0.5)*hzPerBin

	// The dial frequency that puts the carrier at the passband center.
	passbandCenter := (snap.BandwidthLow + snap.BandwidthHigh) / 2
	suggested := peakFreq - passbandCenter
	if suggested < UniverseLowHz || suggested > UniverseHighHz {
		return 0, false
	}
	return uint64(math.Round(suggested)), true
}

func medianFloat32(values []float32) float64 {
	sorted := make([]float64, len(values))
	for i, v := range values {
		sorted[i] = float64(v)
	}
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
