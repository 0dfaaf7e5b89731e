package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the client.
type Metrics struct {
	FramesReceived  *prometheus.CounterVec
	BytesReceived   prometheus.Counter
	ThroughputKBps  prometheus.Gauge
	DecodeErrors    prometheus.Counter
	Reconnects      prometheus.Counter
	CommandsSent    *prometheus.CounterVec
	CommandsDropped prometheus.Counter
	RateLimited     prometheus.Counter
	RenderSkips     prometheus.Counter
}

// NewMetrics registers and returns the client metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		FramesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "panorama_frames_received_total",
			Help: "Decoded server frames by kind",
		}, []string{"kind"}),
		BytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "panorama_bytes_received_total",
			Help: "Raw WebSocket payload bytes received",
		}),
		ThroughputKBps: factory.NewGauge(prometheus.GaugeOpts{
			Name: "panorama_throughput_kbps",
			Help: "Spectrum stream throughput in KB/s, 1s window",
		}),
		DecodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "panorama_decode_errors_total",
			Help: "Frames dropped as malformed",
		}),
		Reconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "panorama_reconnects_total",
			Help: "Reconnect attempts scheduled",
		}),
		CommandsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "panorama_commands_sent_total",
			Help: "Control messages sent by type",
		}, []string{"type"}),
		CommandsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "panorama_commands_dropped_total",
			Help: "Control messages dropped by the local rate limiter",
		}),
		RateLimited: factory.NewCounter(prometheus.CounterOpts{
			Name: "panorama_rate_limited_total",
			Help: "Server 429 responses (handled silently)",
		}),
		RenderSkips: factory.NewCounter(prometheus.CounterOpts{
			Name: "panorama_render_skips_total",
			Help: "Frames skipped by renderers due to degenerate range",
		}),
	}
}
