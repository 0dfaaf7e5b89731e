package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// APIServer is the local HTTP control surface: it exposes the rendered
// images, the current view state and endpoints that feed gestures into
// the interaction controller, playing the role the pointer and wheel
// play in a graphical frontend.
type APIServer struct {
	app    *App
	router *mux.Router
	server *http.Server
}

// NewAPIServer creates the control surface listening on addr.
func NewAPIServer(app *App, addr string) *APIServer {
	router := mux.NewRouter()

	s := &APIServer{
		app:    app,
		router: router,
		server: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}

	router.HandleFunc("/api/status", s.handleStatus).Methods("GET")
	router.HandleFunc("/api/pan", s.handlePan).Methods("POST")
	router.HandleFunc("/api/zoom", s.handleZoom).Methods("POST")
	router.HandleFunc("/api/reset", s.handleReset).Methods("POST")
	router.HandleFunc("/api/tune", s.handleTune).Methods("POST")
	router.HandleFunc("/api/mode", s.handleMode).Methods("POST")
	router.HandleFunc("/api/bandwidth", s.handleBandwidth).Methods("POST")
	router.HandleFunc("/api/display", s.handleDisplay).Methods("POST")
	router.HandleFunc("/api/pointer", s.handlePointer).Methods("POST")
	router.HandleFunc("/api/wheel", s.handleWheel).Methods("POST")
	router.HandleFunc("/api/carrier-center", s.handleCarrierCenter).Methods("POST")
	router.HandleFunc("/api/ping", s.handlePing).Methods("POST")
	router.HandleFunc("/api/refresh", s.handleRefresh).Methods("POST")
	router.HandleFunc("/api/bookmarks", s.handleBookmarksGet).Methods("GET")
	router.HandleFunc("/api/bookmarks", s.handleBookmarksAdd).Methods("POST")
	router.HandleFunc("/api/bookmarks/{name}", s.handleBookmarksDelete).Methods("DELETE")
	router.HandleFunc("/waterfall.png", s.handleWaterfallPNG).Methods("GET")
	router.HandleFunc("/graph.png", s.handleGraphPNG).Methods("GET")
	router.Handle("/metrics", promhttp.HandlerFor(app.registry, promhttp.HandlerOpts{}))

	return s
}

// Start runs the server until Shutdown.
func (s *APIServer) Start() error {
	log.Printf("Control surface listening on %s", s.server.Addr)
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the server gracefully.
func (s *APIServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeOK(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return false
	}
	return true
}

// statusResponse is the /api/status payload.
type statusResponse struct {
	State          string   `json:"state"`
	SessionID      string   `json:"sessionId"`
	CenterFreq     uint64   `json:"centerFreq"`
	TunedFreq      uint64   `json:"tunedFreq"`
	BinCount       int      `json:"binCount"`
	BinBandwidth   float64  `json:"binBandwidth"`
	TotalBandwidth float64  `json:"totalBandwidth"`
	ZoomLevel      float64  `json:"zoomLevel"`
	Mode           string   `json:"mode"`
	Span           string   `json:"span"`
	BytesReceived  string   `json:"bytesReceived"`
	Started        string   `json:"started"`
	Notices        []string `json:"notices,omitempty"`
	CarrierCenter  uint64   `json:"carrierCenter,omitempty"`
}

func (s *APIServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.app.view.Snapshot()

	resp := statusResponse{
		State:          s.app.client.State().String(),
		SessionID:      s.app.client.SessionID(),
		CenterFreq:     snap.CenterFreq,
		TunedFreq:      snap.TunedFreq,
		BinCount:       snap.BinCount,
		BinBandwidth:   snap.BinBandwidth,
		TotalBandwidth: snap.TotalBandwidth,
		ZoomLevel:      snap.ZoomLevel,
		Mode:           snap.Mode,
		Span:           formatFrequency(snap.TotalBandwidth),
		BytesReceived:  humanize.Bytes(s.app.client.BytesReceived()),
		Started:        humanize.Time(s.app.startedAt),
		Notices:        s.app.Notices(),
	}
	if center, ok := s.app.interaction.CarrierConfirmation(time.Now()); ok {
		resp.CarrierCenter = center
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *APIServer) handlePan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Frequency float64 `json:"frequency"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	snap := s.app.view.Snapshot()
	if snap.TotalBandwidth <= 0 {
		writeError(w, http.StatusConflict, fmt.Errorf("no view geometry yet"))
		return
	}
	clamped := clampCenterFreq(req.Frequency, snap.TotalBandwidth)
	s.app.view.ApplyOptimisticView(clamped, 0)
	if err := s.app.client.SendPan(float64(clamped)); err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeOK(w)
}

func (s *APIServer) handleZoom(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Direction string `json:"direction"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	switch req.Direction {
	case "in":
		s.app.interaction.ZoomIn()
	case "out":
		s.app.interaction.ZoomOut()
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("direction must be in or out"))
		return
	}
	writeOK(w)
}

func (s *APIServer) handleReset(w http.ResponseWriter, r *http.Request) {
	s.app.interaction.Reset()
	writeOK(w)
}

func (s *APIServer) handleTune(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Frequency uint64 `json:"frequency"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Frequency > UniverseHighHz {
		writeError(w, http.StatusBadRequest, fmt.Errorf("frequency %d Hz outside 0-30 MHz", req.Frequency))
		return
	}
	s.app.Tune(req.Frequency)
	writeOK(w)
}

func (s *APIServer) handleMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode string `json:"mode"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Mode == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("mode is required"))
		return
	}
	s.app.view.SetMode(req.Mode)
	writeOK(w)
}

func (s *APIServer) handleBandwidth(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Low  float64 `json:"low"`
		High float64 `json:"high"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s.app.view.SetBandwidthEdges(req.Low, req.High)
	writeOK(w)
}

func (s *APIServer) handleDisplay(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode  string `json:"mode,omitempty"`
		Width int    `json:"width,omitempty"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	if req.Mode != "" {
		if err := s.app.SetDisplayMode(req.Mode); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	if req.Width != 0 {
		if err := s.app.Resize(req.Width); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	writeOK(w)
}

func (s *APIServer) handlePointer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Action string `json:"action"`
		X      int    `json:"x"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	switch req.Action {
	case "down":
		s.app.interaction.PointerDown(req.X)
	case "move":
		s.app.interaction.PointerMove(req.X, time.Now())
	case "up":
		s.app.interaction.PointerUp(req.X)
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("action must be down, move or up"))
		return
	}
	writeOK(w)
}

func (s *APIServer) handleWheel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Notches int `json:"notches"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s.app.interaction.Wheel(req.Notches, time.Now())
	writeOK(w)
}

func (s *APIServer) handleCarrierCenter(w http.ResponseWriter, r *http.Request) {
	frame := s.app.LastFrame()
	if frame == nil {
		writeError(w, http.StatusConflict, fmt.Errorf("no spectrum frame received yet"))
		return
	}
	s.app.interaction.RightClick(frame, time.Now())
	writeOK(w)
}

// handlePing forwards a keepalive on behalf of the external idle
// detector. The protocol client never schedules these on its own.
func (s *APIServer) handlePing(w http.ResponseWriter, r *http.Request) {
	if err := s.app.client.Ping(); err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeOK(w)
}

// handleRefresh asks the server to re-send the session geometry; the view
// updates when the config frame comes back.
func (s *APIServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.app.client.RequestStatus(); err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeOK(w)
}

func (s *APIServer) handleBookmarksGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.app.bookmarks.All())
}

func (s *APIServer) handleBookmarksAdd(w http.ResponseWriter, r *http.Request) {
	var b Bookmark
	if !decodeBody(w, r, &b) {
		return
	}
	if err := s.app.bookmarks.Add(b); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeOK(w)
}

func (s *APIServer) handleBookmarksDelete(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := s.app.bookmarks.Remove(name); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeOK(w)
}

func (s *APIServer) handleWaterfallPNG(w http.ResponseWriter, r *http.Request) {
	data, err := s.app.WaterfallPNG()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(data)
}

func (s *APIServer) handleGraphPNG(w http.ResponseWriter, r *http.Request) {
	data, err := s.app.GraphPNG()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(data)
}
