package main

import (
	"bytes"
	"errors"
	"image/png"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	errBadMode  = errors.New("display mode must be split, waterfall or graph")
	errBadWidth = errors.New("width must be between 64 and 8192 pixels")
)

// App owns the component graph and serializes access to it. WebSocket
// callbacks and HTTP handlers both land here; a single mutex stands in
// for the browser's event loop, where nothing preempts mid-callback.
type App struct {
	mu sync.Mutex

	config      *Config
	metrics     *Metrics
	registry    *prometheus.Registry
	view        *ViewState
	waterfall   *WaterfallRenderer
	graph       *GraphRenderer
	interaction *InteractionController
	client      *ProtocolClient
	bookmarks   *BookmarkManager

	displayMode string
	lastFrame   []float32
	notices     []string
	startedAt   time.Time
}

// NewApp builds and wires the component graph from config. Collaborators
// are passed by injection; no component reads ambient globals.
func NewApp(config *Config, configDir string) (*App, error) {
	a := &App{
		config:      config,
		registry:    prometheus.NewRegistry(),
		displayMode: config.Display.Mode,
		startedAt:   time.Now(),
	}
	a.metrics = NewMetrics(a.registry)

	colors := NewColorMapper(ColorTheme(config.Display.Theme))
	a.graph = NewGraphRenderer(config.Display.Width, a.graphHeight(), colors, config.Display, config.Spectrum, a.metrics)
	a.waterfall = NewWaterfallRenderer(config.Display.Width, config.Display.WaterfallHeight, colors, config.Display)

	bookmarks, err := NewBookmarkManager(config.Bookmarks, configDir)
	if err != nil {
		return nil, err
	}
	a.bookmarks = bookmarks
	a.waterfall.SetOverlay(NewBookmarkOverlay(bookmarks))

	a.view = NewViewState(
		func() { a.graph.InvalidatePeakHold() },
		func(center uint64) {
			if a.client != nil {
				if err := a.client.SendPan(float64(center)); err != nil {
					log.Printf("Follow pan failed: %v", err)
				}
			}
		},
	)

	client, err := NewProtocolClient(config.Server, a.metrics, a.addNotice)
	if err != nil {
		return nil, err
	}
	a.client = client
	client.Subscribe(a.handleFrame)

	a.interaction = NewInteractionController(
		a.view, client, a.Tune, NewPeakCarrierDetector(6),
		config.Display.Width, config.Spectrum,
		func() {
			// Runs on HTTP handler goroutines, unlike the view-state
			// geometry hook which already executes under a.mu.
			a.mu.Lock()
			a.graph.InvalidatePeakHold()
			a.mu.Unlock()
		},
	)

	return a, nil
}

func (a *App) graphHeight() int {
	if a.displayMode == "graph" {
		// Full-height variant: the graph takes the waterfall's room too.
		return a.config.Display.GraphHeight + a.config.Display.WaterfallHeight
	}
	return a.config.Display.GraphHeight
}

// Start opens the server connection.
func (a *App) Start() error {
	return a.client.Connect()
}

// Stop tears the connection down terminally.
func (a *App) Stop() {
	a.client.Disconnect()
}

// handleFrame is the single subscriber driving state and rendering.
// Frames arrive in WebSocket delivery order and are processed in order.
func (a *App) handleFrame(frame *SpectrumFrame) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch frame.Kind {
	case FrameConfig:
		a.view.ApplyConfig(frame)

	case FrameSpectrum:
		snap := a.view.Snapshot()

		// A length inconsistent with the current bin count means a server
		// reconfiguration is in flight; rendering it against the current
		// geometry would smear it across the wrong frequencies.
		if snap.BinCount > 0 && len(frame.Powers) != snap.BinCount {
			return
		}

		a.lastFrame = frame.Powers
		now := time.Now()
		if a.displayMode != "graph" {
			a.waterfall.AddFrame(frame.Powers, snap, now)
		}
		if a.displayMode != "waterfall" {
			if err := a.graph.AddFrame(frame.Powers, snap, now); err != nil {
				// Degenerate scale for this frame only; nothing to do.
				_ = err
			}
		}

	case FrameError:
		log.Printf("Server error: %s", frame.ErrorText)
	}
}

// Tune is the tuning collaborator handed to the interaction controller.
// The dial itself lives outside this subsystem; here we record it so the
// view can follow and markers can draw.
func (a *App) Tune(frequency uint64) {
	log.Printf("Tuning to %d Hz", frequency)
	a.view.SetTunedFreq(frequency)
}

// SetDisplayMode switches between waterfall-only, split and graph-only.
// The waterfall buffer is discarded: resampling history for a new layout
// is out of scope.
func (a *App) SetDisplayMode(mode string) error {
	switch mode {
	case "split", "waterfall", "graph":
	default:
		return errBadMode
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if mode == a.displayMode {
		return nil
	}
	a.displayMode = mode
	a.waterfall.Reset()
	a.graph.Resize(a.config.Display.Width, a.graphHeight())
	return nil
}

// Resize changes the pixel width of both renderers. The waterfall keeps
// its current image by best-effort copy only.
func (a *App) Resize(width int) error {
	if width < 64 || width > 8192 {
		return errBadWidth
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.config.Display.Width = width
	a.waterfall.Resize(width, a.config.Display.WaterfallHeight)
	a.graph.Resize(width, a.graphHeight())
	a.interaction.SetWidth(width)
	return nil
}

// addNotice records a user-visible notification for the control surface.
func (a *App) addNotice(msg string) {
	a.mu.Lock()
	a.notices = append(a.notices, msg)
	a.mu.Unlock()
	log.Printf("Notice: %s", msg)
}

// Notices returns and clears pending notifications.
func (a *App) Notices() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := a.notices
	a.notices = nil
	return out
}

// LastFrame returns the most recent spectrum frame (for carrier search).
func (a *App) LastFrame() []float32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastFrame
}

// WaterfallPNG encodes the current waterfall buffer.
func (a *App) WaterfallPNG() ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var buf bytes.Buffer
	if err := png.Encode(&buf, a.waterfall.Image()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GraphPNG encodes the current line-graph canvas.
func (a *App) GraphPNG() ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var buf bytes.Buffer
	if err := png.Encode(&buf, a.graph.Image()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
