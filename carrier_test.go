package main

import (
	"testing"
)

func carrierSnapshot() ViewSnapshot {
	return ViewSnapshot{
		CenterFreq:     7_100_000,
		TotalBandwidth: 100_000, // 1000 bins at 100 Hz, 7.05 - 7.15 MHz
		TunedFreq:      7_060_000,
		Mode:           "usb",
		BandwidthLow:   0,
		BandwidthHigh:  3_000,
	}
}

func TestPeakCarrierDetector(t *testing.T) {
	snap := carrierSnapshot()
	powers := flatFrame(1000, -100)
	powers[110] = -60 // carrier at 7,050,000 + 110.5*100 = 7,061,050 Hz

	d := NewPeakCarrierDetector(6)
	suggested, ok := d.Detect(powers, snap)
	if !ok {
		t.Fatal("carrier not detected")
	}
	// Dial frequency that centers the carrier in the 0-3000 Hz passband.
	if want := uint64(7_059_550); suggested != want {
		t.Fatalf("suggested %d, want %d", suggested, want)
	}
}

func TestPeakCarrierDetectorRequiresSNR(t *testing.T) {
	snap := carrierSnapshot()
	d := NewPeakCarrierDetector(6)

	// Flat spectrum: the peak equals the median, no carrier to center on.
	if _, ok := d.Detect(flatFrame(1000, -100), snap); ok {
		t.Fatal("flat spectrum must not detect a carrier")
	}

	// A bump below the SNR threshold is noise, not a carrier.
	powers := flatFrame(1000, -100)
	powers[110] = -97
	if _, ok := d.Detect(powers, snap); ok {
		t.Fatal("3 dB bump must not clear a 6 dB threshold")
	}
}

func TestPeakCarrierDetectorNoGeometry(t *testing.T) {
	d := NewPeakCarrierDetector(6)
	if _, ok := d.Detect(flatFrame(100, -80), ViewSnapshot{}); ok {
		t.Fatal("detection without view geometry")
	}
	if _, ok := d.Detect(nil, carrierSnapshot()); ok {
		t.Fatal("detection without spectrum data")
	}
}
