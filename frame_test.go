package main

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/klauspost/compress/gzip"
)

func TestUnwrapFFTOrder(t *testing.T) {
	in := []float32{1, 2, 3, 4, 5, 6, 7, 8}
	got := unwrapFFTOrder(in)
	want := []float32{5, 6, 7, 8, 1, 2, 3, 4}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("bin %d: got %v, want %v", i, got[i], want[i])
		}
	}
	// Must be a fresh slice, not a reordering in place.
	if &got[0] == &in[0] {
		t.Fatal("unwrap returned the input slice")
	}
}

func TestDecodeConfigMessage(t *testing.T) {
	d := NewFrameDecoder(nil)
	payload := []byte(`{"type":"config","centerFreq":15000000,"binCount":2048,"binBandwidth":14648.4,"sessionId":"abc"}`)

	frame, err := d.Decode(false, payload)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if frame.Kind != FrameConfig {
		t.Fatalf("kind = %v, want config", frame.Kind)
	}
	if frame.CenterFreq != 15000000 || frame.BinCount != 2048 || frame.SessionID != "abc" {
		t.Fatalf("unexpected config frame: %+v", frame)
	}
	// totalBandwidth omitted on the wire is derived from binCount * binBandwidth.
	if want := 2048 * 14648.4; math.Abs(frame.TotalBandwidth-want) > 1 {
		t.Fatalf("TotalBandwidth = %v, want %v", frame.TotalBandwidth, want)
	}
}

func TestDecodeSpectrumMessageUnwraps(t *testing.T) {
	d := NewFrameDecoder(nil)
	msg := map[string]interface{}{
		"type":       "spectrum",
		"centerFreq": 7100000,
		"data":       []float32{-10, -20, -30, -40},
	}
	payload, _ := json.Marshal(msg)

	frame, err := d.Decode(false, payload)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if frame.Kind != FrameSpectrum {
		t.Fatalf("kind = %v, want spectrum", frame.Kind)
	}
	want := []float32{-30, -40, -10, -20}
	for i := range want {
		if frame.Powers[i] != want[i] {
			t.Fatalf("bin %d: got %v, want %v", i, frame.Powers[i], want[i])
		}
	}
}

func TestDecodeGzippedBinaryFallback(t *testing.T) {
	d := NewFrameDecoder(nil)

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	zw.Write([]byte(`{"type":"spectrum","data":[-50,-60]}`))
	zw.Close()

	frame, err := d.Decode(true, buf.Bytes())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if frame.Kind != FrameSpectrum || len(frame.Powers) != 2 {
		t.Fatalf("unexpected frame: %+v", frame)
	}
	if frame.Powers[0] != -60 || frame.Powers[1] != -50 {
		t.Fatalf("powers not unwrapped: %v", frame.Powers)
	}
}

func TestDecodeMalformedFrameIsIsolated(t *testing.T) {
	d := NewFrameDecoder(nil)

	_, err := d.Decode(true, []byte{0xde, 0xad, 0xbe, 0xef})
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("want DecodeError, got %v", err)
	}

	_, err = d.Decode(false, []byte(`{"type":`))
	if !errors.As(err, &decodeErr) {
		t.Fatalf("want DecodeError for truncated JSON, got %v", err)
	}

	// The decoder keeps working on the next well-formed message.
	frame, err := d.Decode(false, []byte(`{"type":"pong"}`))
	if err != nil || frame.Kind != FramePong {
		t.Fatalf("decoder did not recover: frame=%+v err=%v", frame, err)
	}
}

func TestDecodeUnknownTypeIgnored(t *testing.T) {
	d := NewFrameDecoder(nil)
	frame, err := d.Decode(false, []byte(`{"type":"telemetry"}`))
	if err != nil {
		t.Fatalf("unknown type must not error: %v", err)
	}
	if frame != nil {
		t.Fatalf("unknown type must yield no frame, got %+v", frame)
	}
}

func buildSpecPacket(flags byte, timestamp, frequency uint64, body []byte) []byte {
	pkt := make([]byte, specHeaderSize+len(body))
	copy(pkt, specMagic)
	pkt[4] = 0x01
	pkt[5] = flags
	binary.LittleEndian.PutUint64(pkt[6:], timestamp)
	binary.LittleEndian.PutUint64(pkt[14:], frequency)
	copy(pkt[specHeaderSize:], body)
	return pkt
}

func f32Body(values ...float32) []byte {
	body := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(body[i*4:], math.Float32bits(v))
	}
	return body
}

func TestDecodeBinaryFullFloat32(t *testing.T) {
	d := NewFrameDecoder(nil)
	pkt := buildSpecPacket(specFlagFullF32, 12345, 7100000, f32Body(-10, -20, -30, -40))

	frame, err := d.Decode(true, pkt)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if frame.CenterFreq != 7100000 {
		t.Fatalf("CenterFreq = %d", frame.CenterFreq)
	}
	want := []float32{-30, -40, -10, -20}
	for i := range want {
		if frame.Powers[i] != want[i] {
			t.Fatalf("bin %d: got %v, want %v", i, frame.Powers[i], want[i])
		}
	}
}

func TestDecodeBinaryDeltaFloat32(t *testing.T) {
	d := NewFrameDecoder(nil)
	if _, err := d.Decode(true, buildSpecPacket(specFlagFullF32, 1, 7100000, f32Body(-10, -20, -30, -40))); err != nil {
		t.Fatalf("full frame: %v", err)
	}

	// One delta entry: wire bin 1 becomes -99.
	body := make([]byte, 2+6)
	binary.LittleEndian.PutUint16(body, 1)
	binary.LittleEndian.PutUint16(body[2:], 1)
	binary.LittleEndian.PutUint32(body[4:], math.Float32bits(-99))

	frame, err := d.Decode(true, buildSpecPacket(specFlagDeltaF32, 2, 7100000, body))
	if err != nil {
		t.Fatalf("delta frame: %v", err)
	}
	// Wire order after the delta is [-10,-99,-30,-40]; unwrapped it lands at index 3.
	want := []float32{-30, -40, -10, -99}
	for i := range want {
		if frame.Powers[i] != want[i] {
			t.Fatalf("bin %d: got %v, want %v", i, frame.Powers[i], want[i])
		}
	}
}

func TestDecodeBinaryDeltaWithoutFullFrame(t *testing.T) {
	d := NewFrameDecoder(nil)
	body := []byte{1, 0, 0, 0, 0, 0, 0, 0}
	_, err := d.Decode(true, buildSpecPacket(specFlagDeltaF32, 1, 0, body))
	if err == nil {
		t.Fatal("delta without preceding full frame must fail")
	}
}

func TestDecodeBinaryUint8Quantized(t *testing.T) {
	d := NewFrameDecoder(nil)
	// 0 -> -256 dB, 156 -> -100 dB, 255 -> -1 dB.
	frame, err := d.Decode(true, buildSpecPacket(specFlagFullU8, 1, 0, []byte{0, 156, 255, 200}))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := []float32{-1, -56, -256, -100}
	for i := range want {
		if frame.Powers[i] != want[i] {
			t.Fatalf("bin %d: got %v, want %v", i, frame.Powers[i], want[i])
		}
	}
}

func TestDecodeErrorFrameCarriesStatus(t *testing.T) {
	d := NewFrameDecoder(nil)
	frame, err := d.Decode(false, []byte(`{"type":"error","error":"Rate limit exceeded","status":429}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if frame.Kind != FrameError || frame.Status != 429 {
		t.Fatalf("unexpected error frame: %+v", frame)
	}
}
