package main

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/gzip"
)

// FrameKind identifies the decoded message variant.
type FrameKind int

const (
	FrameUnknown FrameKind = iota
	FrameConfig
	FrameSpectrum
	FramePong
	FrameError
)

func (k FrameKind) String() string {
	switch k {
	case FrameConfig:
		return "config"
	case FrameSpectrum:
		return "spectrum"
	case FramePong:
		return "pong"
	case FrameError:
		return "error"
	}
	return "unknown"
}

// SpectrumFrame is one decoded server push.
// For spectrum frames Powers is in ascending-frequency order: the server
// emits bins in FFT-native order (positive half first, then negative half)
// and the decoder unwraps them before anything else sees the data.
type SpectrumFrame struct {
	Kind           FrameKind
	CenterFreq     uint64
	BinCount       int
	BinBandwidth   float64
	TotalBandwidth float64
	SessionID      string
	Powers         []float32
	Timestamp      time.Time
	ErrorText      string
	Status         int
}

// DecodeError reports a malformed frame. The frame is dropped and no
// state is mutated; decoding continues with the next message.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("decode: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Binary spectrum packet layout (matches the server's "SPEC" encoding):
// magic "SPEC" (4) | version (1) | flags (1) | timestamp uint64 (8) |
// frequency uint64 (8) | payload. Flags select full/delta and
// float32/uint8 payloads; delta frames carry [index uint16, value] pairs
// applied against the previous frame.
const (
	specHeaderSize = 22

	specFlagFullF32  = 0x01
	specFlagDeltaF32 = 0x02
	specFlagFullU8   = 0x03
	specFlagDeltaU8  = 0x04
)

var specMagic = []byte{'S', 'P', 'E', 'C'}

// jsonMessage is the JSON wire shape shared by all text messages.
type jsonMessage struct {
	Type           string    `json:"type"`
	Data           []float32 `json:"data,omitempty"`
	CenterFreq     uint64    `json:"centerFreq,omitempty"`
	Frequency      uint64    `json:"frequency,omitempty"`
	BinCount       int       `json:"binCount,omitempty"`
	BinBandwidth   float64   `json:"binBandwidth,omitempty"`
	TotalBandwidth float64   `json:"totalBandwidth,omitempty"`
	Timestamp      int64     `json:"timestamp,omitempty"`
	SessionID      string    `json:"sessionId,omitempty"`
	Error          string    `json:"error,omitempty"`
	Status         int       `json:"status,omitempty"`
}

// FrameDecoder turns raw WebSocket payloads into SpectrumFrames.
// It retains the previous frame so delta packets can be applied, and keeps
// a rolling byte counter for the KB/s throughput gauge.
type FrameDecoder struct {
	prevF32 []float32
	prevU8  []uint8

	totalBytes  atomic.Uint64
	windowBytes int64
	windowStart time.Time

	metrics *Metrics
}

// NewFrameDecoder creates a decoder. metrics may be nil (tests).
func NewFrameDecoder(metrics *Metrics) *FrameDecoder {
	return &FrameDecoder{
		windowStart: time.Now(),
		metrics:     metrics,
	}
}

// Decode parses one WebSocket message. binary selects the binary path
// (gzip-compressed JSON or a "SPEC" packet); otherwise the payload is JSON
// text. A nil frame with a nil error means the message was understood but
// carries nothing for consumers (unknown type).
func (d *FrameDecoder) Decode(binaryMsg bool, payload []byte) (*SpectrumFrame, error) {
	d.accountThroughput(len(payload))

	if binaryMsg {
		if len(payload) >= specHeaderSize && bytes.Equal(payload[:4], specMagic) {
			return d.decodeBinarySpectrum(payload)
		}
		decompressed, err := gunzip(payload)
		if err != nil {
			return nil, &DecodeError{Reason: "malformed binary frame", Err: err}
		}
		payload = decompressed
	}

	return d.decodeJSON(payload)
}

func gunzip(payload []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

func (d *FrameDecoder) decodeJSON(payload []byte) (*SpectrumFrame, error) {
	var msg jsonMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, &DecodeError{Reason: "malformed message", Err: err}
	}

	switch msg.Type {
	case "config":
		totalBW := msg.TotalBandwidth
		if totalBW == 0 {
			totalBW = float64(msg.BinCount) * msg.BinBandwidth
		}
		return &SpectrumFrame{
			Kind:           FrameConfig,
			CenterFreq:     msg.CenterFreq,
			BinCount:       msg.BinCount,
			BinBandwidth:   msg.BinBandwidth,
			TotalBandwidth: totalBW,
			SessionID:      msg.SessionID,
		}, nil

	case "spectrum":
		frame := &SpectrumFrame{
			Kind:       FrameSpectrum,
			CenterFreq: msg.CenterFreq,
			Powers:     unwrapFFTOrder(msg.Data),
		}
		if msg.Timestamp > 0 {
			frame.Timestamp = time.UnixMilli(msg.Timestamp)
		}
		return frame, nil

	case "pong":
		return &SpectrumFrame{Kind: FramePong}, nil

	case "error":
		return &SpectrumFrame{Kind: FrameError, ErrorText: msg.Error, Status: msg.Status}, nil
	}

	// Unknown types are non-fatal: log and ignore.
	log.Printf("Spectrum decoder: ignoring unknown message type %q", msg.Type)
	return nil, nil
}

func (d *FrameDecoder) decodeBinarySpectrum(payload []byte) (*SpectrumFrame, error) {
	if payload[4] != 0x01 {
		return nil, &DecodeError{Reason: fmt.Sprintf("unsupported packet version %d", payload[4])}
	}

	flags := payload[5]
	timestamp := binary.LittleEndian.Uint64(payload[6:14])
	frequency := binary.LittleEndian.Uint64(payload[14:22])
	body := payload[specHeaderSize:]

	var powers []float32
	switch flags {
	case specFlagFullF32:
		if len(body)%4 != 0 {
			return nil, &DecodeError{Reason: "truncated float32 frame"}
		}
		bins := make([]float32, len(body)/4)
		for i := range bins {
			bins[i] = math.Float32frombits(binary.LittleEndian.Uint32(body[i*4:]))
		}
		d.prevF32 = bins
		powers = bins

	case specFlagDeltaF32:
		if d.prevF32 == nil {
			return nil, &DecodeError{Reason: "delta frame without preceding full frame"}
		}
		if len(body) < 2 {
			return nil, &DecodeError{Reason: "truncated delta frame"}
		}
		count := int(binary.LittleEndian.Uint16(body[:2]))
		if len(body) < 2+count*6 {
			return nil, &DecodeError{Reason: "truncated delta frame"}
		}
		for i := 0; i < count; i++ {
			off := 2 + i*6
			idx := int(binary.LittleEndian.Uint16(body[off:]))
			if idx >= len(d.prevF32) {
				return nil, &DecodeError{Reason: "delta index out of range"}
			}
			d.prevF32[idx] = math.Float32frombits(binary.LittleEndian.Uint32(body[off+2:]))
		}
		powers = d.prevF32

	case specFlagFullU8:
		bins := make([]uint8, len(body))
		copy(bins, body)
		d.prevU8 = bins
		powers = dequantizeU8(bins)

	case specFlagDeltaU8:
		if d.prevU8 == nil {
			return nil, &DecodeError{Reason: "delta frame without preceding full frame"}
		}
		if len(body) < 2 {
			return nil, &DecodeError{Reason: "truncated delta frame"}
		}
		count := int(binary.LittleEndian.Uint16(body[:2]))
		if len(body) < 2+count*3 {
			return nil, &DecodeError{Reason: "truncated delta frame"}
		}
		for i := 0; i < count; i++ {
			off := 2 + i*3
			idx := int(binary.LittleEndian.Uint16(body[off:]))
			if idx >= len(d.prevU8) {
				return nil, &DecodeError{Reason: "delta index out of range"}
			}
			d.prevU8[idx] = body[off+2]
		}
		powers = dequantizeU8(d.prevU8)

	default:
		return nil, &DecodeError{Reason: fmt.Sprintf("unknown packet flags 0x%02x", flags)}
	}

	return &SpectrumFrame{
		Kind:       FrameSpectrum,
		CenterFreq: frequency,
		Powers:     unwrapFFTOrder(powers),
		Timestamp:  time.Unix(0, int64(timestamp)),
	}, nil
}

// dequantizeU8 converts 8-bit quantized bins back to dB.
// The server maps -256 dB -> 0 and 0 dB -> 256 (clamped to 255).
func dequantizeU8(bins []uint8) []float32 {
	out := make([]float32, len(bins))
	for i, v := range bins {
		out[i] = float32(v) - 256
	}
	return out
}

// unwrapFFTOrder reorders FFT-native bins (positive frequencies first,
// then negative) into ascending-frequency order: the negative half moves
// to the front. Always returns a fresh slice.
func unwrapFFTOrder(powers []float32) []float32 {
	out := make([]float32, len(powers))
	mid := len(powers) / 2
	copy(out, powers[mid:])
	copy(out[len(powers)-mid:], powers[:mid])
	return out
}

// TotalBytes reports the cumulative bytes seen by this decoder. Safe to
// call from any goroutine.
func (d *FrameDecoder) TotalBytes() uint64 {
	return d.totalBytes.Load()
}

// accountThroughput feeds the rolling KB/s measurement. Purely a reporting
// concern; it never affects decoding.
func (d *FrameDecoder) accountThroughput(n int) {
	d.totalBytes.Add(uint64(n))
	d.windowBytes += int64(n)
	if d.metrics != nil {
		d.metrics.BytesReceived.Add(float64(n))
	}

	elapsed := time.Since(d.windowStart)
	if elapsed >= time.Second {
		if d.metrics != nil {
			d.metrics.ThroughputKBps.Set(float64(d.windowBytes) / 1024 / elapsed.Seconds())
		}
		d.windowBytes = 0
		d.windowStart = time.Now()
	}
}
