package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Display   DisplayConfig   `yaml:"display"`
	Spectrum  SpectrumConfig  `yaml:"spectrum"`
	HTTP      HTTPConfig      `yaml:"http"`
	Bookmarks []Bookmark      `yaml:"bookmarks"`
}

// ServerConfig contains UberSDR server connection settings
type ServerConfig struct {
	URL                  string `yaml:"url"`                    // Base URL, e.g. https://sdr.example.org
	Password             string `yaml:"password,omitempty"`     // Optional bypass password
	MinServerVersion     string `yaml:"min_server_version"`     // Oldest server version known to speak this protocol
	MaxReconnectAttempts int    `yaml:"max_reconnect_attempts"` // Reconnect attempts before giving up
	CommandRate          int    `yaml:"command_rate"`           // Outgoing control messages per second
	Binary8              bool   `yaml:"binary8"`                // Request 8-bit quantized spectrum frames
}

// DisplayConfig contains rendering geometry and color settings
type DisplayConfig struct {
	Width             int     `yaml:"width"`              // Pixel width shared by both renderers
	WaterfallHeight   int     `yaml:"waterfall_height"`   // Waterfall rows including the scale band
	GraphHeight       int     `yaml:"graph_height"`       // Line graph height in split mode
	Mode              string  `yaml:"mode"`               // split, waterfall or graph
	MinDb             float64 `yaml:"min_db"`             // Display floor when auto-scale has no data
	MaxDb             float64 `yaml:"max_db"`             // Display ceiling when auto-scale has no data
	ContrastThreshold float64 `yaml:"contrast_threshold"` // Normalized cutoff for noise-floor suppression (0-1)
	Intensity         float64 `yaml:"intensity"`          // Symmetric around 0: negative attenuates, positive boosts
	Theme             string  `yaml:"theme"`              // Color theme name
	ElapsedLineEvery  int     `yaml:"elapsed_line_every"` // Waterfall rows between elapsed-time stamps
}

// SpectrumConfig contains view-state and interaction tunables
type SpectrumConfig struct {
	PeakHoldDecayDb  float64 `yaml:"peak_hold_decay_db"` // Peak-hold decay in dB per second
	AverageWindowMs  int     `yaml:"average_window_ms"`  // Line graph smoothing window age cap
	AverageMaxFrames int     `yaml:"average_max_frames"` // Line graph smoothing window item cap
	MinTrackerSec    float64 `yaml:"min_tracker_sec"`    // Retention of the floor tracker
	MaxTrackerSec    float64 `yaml:"max_tracker_sec"`    // Retention of the ceiling tracker
	MinBinBandwidth  float64 `yaml:"min_bin_bandwidth"`  // Client-side zoom-in limit in Hz per bin
	PanThrottleMs    int     `yaml:"pan_throttle_ms"`    // Minimum spacing between drag pan requests
	WheelThrottleMs  int     `yaml:"wheel_throttle_ms"`  // Minimum spacing between wheel actions
	WheelMode        string  `yaml:"wheel_mode"`         // freq or zoom
	WheelStepHz      int64   `yaml:"wheel_step_hz"`      // Tuning quantum per wheel notch in freq mode
	DragMinPixels    int     `yaml:"drag_min_pixels"`    // Movement below this is treated as a click
	DragMinHz        float64 `yaml:"drag_min_hz"`        // Frequency delta below this is not worth a pan
}

// HTTPConfig contains the local control surface settings
type HTTPConfig struct {
	Listen string `yaml:"listen"`
}

// LoadConfig reads and validates a YAML config file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate applies defaults and rejects unusable values
func (c *Config) Validate() error {
	if c.Server.URL == "" {
		return fmt.Errorf("server.url is required")
	}
	if c.Server.MaxReconnectAttempts == 0 {
		c.Server.MaxReconnectAttempts = 10
	}
	if c.Server.CommandRate == 0 {
		c.Server.CommandRate = 10 // matches the server-side spectrum limiter
	}

	if c.Display.Width == 0 {
		c.Display.Width = 1024
	}
	if c.Display.WaterfallHeight == 0 {
		c.Display.WaterfallHeight = 512
	}
	if c.Display.GraphHeight == 0 {
		c.Display.GraphHeight = 256
	}
	switch c.Display.Mode {
	case "":
		c.Display.Mode = "split"
	case "split", "waterfall", "graph":
	default:
		return fmt.Errorf("display.mode must be split, waterfall or graph, got %q", c.Display.Mode)
	}
	if c.Display.MinDb == 0 && c.Display.MaxDb == 0 {
		c.Display.MinDb = -120
		c.Display.MaxDb = -20
	}
	if c.Display.MaxDb <= c.Display.MinDb {
		return fmt.Errorf("display.max_db must be greater than display.min_db")
	}
	if c.Display.ContrastThreshold < 0 || c.Display.ContrastThreshold >= 1 {
		return fmt.Errorf("display.contrast_threshold must be in [0, 1)")
	}
	if c.Display.Intensity < -1 || c.Display.Intensity > 1 {
		return fmt.Errorf("display.intensity must be in [-1, 1]")
	}
	if c.Display.Theme == "" {
		c.Display.Theme = string(ThemeClassic)
	}
	if c.Display.ElapsedLineEvery == 0 {
		c.Display.ElapsedLineEvery = 60
	}

	if c.Spectrum.PeakHoldDecayDb == 0 {
		c.Spectrum.PeakHoldDecayDb = 3
	}
	if c.Spectrum.AverageWindowMs == 0 {
		c.Spectrum.AverageWindowMs = 500
	}
	if c.Spectrum.AverageMaxFrames == 0 {
		c.Spectrum.AverageMaxFrames = 10
	}
	if c.Spectrum.MinTrackerSec == 0 {
		c.Spectrum.MinTrackerSec = 10
	}
	if c.Spectrum.MaxTrackerSec == 0 {
		c.Spectrum.MaxTrackerSec = 5
	}
	if c.Spectrum.MinBinBandwidth == 0 {
		c.Spectrum.MinBinBandwidth = 1
	}
	if c.Spectrum.PanThrottleMs == 0 {
		c.Spectrum.PanThrottleMs = 150
	}
	if c.Spectrum.WheelThrottleMs == 0 {
		c.Spectrum.WheelThrottleMs = 250
	}
	switch c.Spectrum.WheelMode {
	case "":
		c.Spectrum.WheelMode = "freq"
	case "freq", "zoom":
	default:
		return fmt.Errorf("spectrum.wheel_mode must be freq or zoom, got %q", c.Spectrum.WheelMode)
	}
	if c.Spectrum.WheelStepHz == 0 {
		c.Spectrum.WheelStepHz = 100
	}
	if c.Spectrum.DragMinPixels == 0 {
		c.Spectrum.DragMinPixels = 3
	}
	if c.Spectrum.DragMinHz == 0 {
		c.Spectrum.DragMinHz = 100
	}

	if c.HTTP.Listen == "" {
		c.HTTP.Listen = ":8090"
	}

	return nil
}
