package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testApp(t *testing.T) *App {
	t.Helper()
	config := &Config{Server: ServerConfig{URL: "http://127.0.0.1:1"}}
	if err := config.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	app, err := NewApp(config, t.TempDir())
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	return app
}

func controlSurface(t *testing.T) (*App, *httptest.Server) {
	t.Helper()
	app := testApp(t)
	api := NewAPIServer(app, "127.0.0.1:0")
	ts := httptest.NewServer(api.router)
	t.Cleanup(ts.Close)
	return app, ts
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	data, _ := json.Marshal(body)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestStatusEndpoint(t *testing.T) {
	app, ts := controlSurface(t)

	// Seed some view geometry the way a config frame would.
	app.handleFrame(configFrame(15_000_000, 2048, 14648.4))

	resp, err := http.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatalf("GET /api/status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var status statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decoding status: %v", err)
	}
	if status.State != "disconnected" {
		t.Fatalf("State = %q", status.State)
	}
	if status.CenterFreq != 15_000_000 || status.BinCount != 2048 {
		t.Fatalf("view not reflected: %+v", status)
	}
	if status.SessionID == "" {
		t.Fatal("missing session id")
	}
}

func TestTuneEndpoint(t *testing.T) {
	app, ts := controlSurface(t)

	resp := postJSON(t, ts.URL+"/api/tune", map[string]interface{}{"frequency": 7_100_000})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got := app.view.Snapshot().TunedFreq; got != 7_100_000 {
		t.Fatalf("TunedFreq = %d", got)
	}

	resp = postJSON(t, ts.URL+"/api/tune", map[string]interface{}{"frequency": 31_000_000})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("out-of-band tune: status = %d, want 400", resp.StatusCode)
	}
}

func TestDisplayEndpoint(t *testing.T) {
	app, ts := controlSurface(t)

	resp := postJSON(t, ts.URL+"/api/display", map[string]interface{}{"mode": "graph", "width": 800})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if app.displayMode != "graph" || app.config.Display.Width != 800 {
		t.Fatalf("display not updated: mode=%s width=%d", app.displayMode, app.config.Display.Width)
	}

	for _, bad := range []map[string]interface{}{
		{"mode": "sideways"},
		{"width": 5},
	} {
		if resp := postJSON(t, ts.URL+"/api/display", bad); resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%v: status = %d, want 400", bad, resp.StatusCode)
		}
	}
}

func TestPanWithoutConnection(t *testing.T) {
	app, ts := controlSurface(t)
	app.handleFrame(configFrame(15_000_000, 2048, 1000))

	resp := postJSON(t, ts.URL+"/api/pan", map[string]interface{}{"frequency": 14_000_000})
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 while disconnected", resp.StatusCode)
	}
}

func TestPointerEndpointValidation(t *testing.T) {
	_, ts := controlSurface(t)

	resp := postJSON(t, ts.URL+"/api/pointer", map[string]interface{}{"action": "hover", "x": 10})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	resp = postJSON(t, ts.URL+"/api/pointer", map[string]interface{}{"action": "down", "x": 10})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestBookmarkEndpoints(t *testing.T) {
	_, ts := controlSurface(t)

	resp := postJSON(t, ts.URL+"/api/bookmarks", Bookmark{Name: "WWV", Frequency: 10_000_000, Mode: "am"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("add: status = %d", resp.StatusCode)
	}

	get, err := http.Get(ts.URL + "/api/bookmarks")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer get.Body.Close()
	var list []Bookmark
	if err := json.NewDecoder(get.Body).Decode(&list); err != nil {
		t.Fatalf("decoding list: %v", err)
	}
	if len(list) != 1 || list[0].Name != "WWV" {
		t.Fatalf("list = %+v", list)
	}

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/bookmarks/WWV", nil)
	del, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	del.Body.Close()
	if del.StatusCode != http.StatusOK {
		t.Fatalf("delete: status = %d", del.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodDelete, ts.URL+"/api/bookmarks/WWV", nil)
	del, _ = http.DefaultClient.Do(req)
	del.Body.Close()
	if del.StatusCode != http.StatusNotFound {
		t.Fatalf("double delete: status = %d, want 404", del.StatusCode)
	}
}

func TestImageEndpoints(t *testing.T) {
	app, ts := controlSurface(t)
	app.handleFrame(configFrame(15_000_000, 128, 1000))
	app.handleFrame(&SpectrumFrame{Kind: FrameSpectrum, Powers: flatFrame(128, -80)})

	for _, path := range []string{"/waterfall.png", "/graph.png"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: status = %d", path, resp.StatusCode)
		}
		if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
			t.Fatalf("%s: content type %q", path, ct)
		}
		resp.Body.Close()
	}
}

func TestMetricsEndpoint(t *testing.T) {
	app, ts := controlSurface(t)
	app.handleFrame(configFrame(15_000_000, 128, 1000))

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestMismatchedSpectrumFrameDiscarded(t *testing.T) {
	app := testApp(t)
	app.handleFrame(configFrame(15_000_000, 128, 1000))
	app.handleFrame(&SpectrumFrame{Kind: FrameSpectrum, Powers: flatFrame(64, -80)})

	if app.LastFrame() != nil {
		t.Fatal("mismatched frame length must be discarded")
	}

	app.handleFrame(&SpectrumFrame{Kind: FrameSpectrum, Powers: flatFrame(128, -80)})
	if got := len(app.LastFrame()); got != 128 {
		t.Fatalf("LastFrame length = %d", got)
	}
}

func TestNoticesDrainOnce(t *testing.T) {
	app := testApp(t)
	app.addNotice("lost connection")

	if got := app.Notices(); len(got) != 1 || got[0] != "lost connection" {
		t.Fatalf("Notices = %v", got)
	}
	if got := app.Notices(); len(got) != 0 {
		t.Fatalf("notices not drained: %v", got)
	}
}
