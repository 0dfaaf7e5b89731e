package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	goversion "github.com/hashicorp/go-version"
	"github.com/gorilla/websocket"
)

// ConnState is the protocol client's connection state.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateOpen
	StateClosing
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	}
	return "disconnected"
}

// FrameHandler receives decoded frames. Handlers registered through
// Subscribe are called in registration order from the read loop; multiple
// consumers register independently instead of wrapping each other's
// callbacks.
type FrameHandler func(*SpectrumFrame)

// Outgoing control messages. Pan deliberately has no binBandwidth field:
// its presence makes the server treat the request as an implicit zoom-out
// restoration under certain thresholds, corrupting pan-only intent.
type panMessage struct {
	Type      string `json:"type"`
	Frequency uint64 `json:"frequency"`
}

type zoomMessage struct {
	Type         string  `json:"type"`
	Frequency    uint64  `json:"frequency"`
	BinBandwidth float64 `json:"binBandwidth"`
}

type typeOnlyMessage struct {
	Type string `json:"type"`
}

// Connection-admission contract: POST {server}/connection before opening
// the socket. Denial reasons naming a ban, a session kick or a capacity
// limit are permanent; anything else just skips this cycle.
type admissionRequest struct {
	UserSessionID string `json:"user_session_id"`
}

type admissionResponse struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
	Version string `json:"version,omitempty"`
}

var permanentDenialMarkers = []string{"banned", "terminated", "Maximum"}

// ProtocolClient owns the spectrum WebSocket lifecycle: pre-flight
// admission, connect, read loop, reconnect with exponential backoff, and
// framing for outgoing zoom/pan/reset requests. Keepalive pings are
// delegated to the external idle detector; this client never schedules
// its own.
type ProtocolClient struct {
	serverURL            string
	password             string
	sessionID            string
	binary8              bool
	minServerVersion     *goversion.Version
	maxReconnectAttempts int

	httpClient *http.Client

	mu                sync.Mutex
	conn              *websocket.Conn
	state             ConnState
	userDisconnected  bool
	reconnectAttempts int
	reconnectTimer    *time.Timer
	exhaustedNotified bool
	subscribers       []FrameHandler

	limiter *CommandLimiter
	decoder *FrameDecoder
	metrics *Metrics
	notify  func(string) // one-time user-visible notifications
}

// NewProtocolClient creates a client for the given server. notify is the
// single user-visible output channel and may be nil.
func NewProtocolClient(cfg ServerConfig, metrics *Metrics, notify func(string)) (*ProtocolClient, error) {
	c := &ProtocolClient{
		serverURL:            strings.TrimRight(cfg.URL, "/"),
		password:             cfg.Password,
		sessionID:            uuid.NewString(),
		binary8:              cfg.Binary8,
		maxReconnectAttempts: cfg.MaxReconnectAttempts,
		httpClient:           &http.Client{Timeout: 10 * time.Second},
		limiter:              NewCommandLimiter(cfg.CommandRate),
		decoder:              NewFrameDecoder(metrics),
		metrics:              metrics,
		notify:               notify,
	}

	if cfg.MinServerVersion != "" {
		v, err := goversion.NewVersion(cfg.MinServerVersion)
		if err != nil {
			return nil, fmt.Errorf("invalid min_server_version %q: %w", cfg.MinServerVersion, err)
		}
		c.minServerVersion = v
	}

	return c, nil
}

// SessionID returns the per-process user session id.
func (c *ProtocolClient) SessionID() string { return c.sessionID }

// BytesReceived reports the cumulative payload bytes read off the socket.
func (c *ProtocolClient) BytesReceived() uint64 { return c.decoder.TotalBytes() }

// State returns the current connection state.
func (c *ProtocolClient) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe registers a frame handler. Handlers run on the read loop
// goroutine and must not block.
func (c *ProtocolClient) Subscribe(h FrameHandler) {
	c.mu.Lock()
	c.subscribers = append(c.subscribers, h)
	c.mu.Unlock()
}

// Connect performs the pre-flight admission check and opens the socket.
// Failures do not propagate as errors to the caller: transient problems
// schedule a backed-off retry, permanent denials set the terminal flag.
func (c *ProtocolClient) Connect() error {
	c.mu.Lock()
	if c.userDisconnected {
		c.mu.Unlock()
		return fmt.Errorf("client is terminally disconnected")
	}
	if c.state == StateOpen || c.state == StateConnecting {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.mu.Unlock()

	allowed, permanent, reason, err := c.preflight()
	if err != nil {
		// A slow or failed pre-flight skips the attempt for this cycle.
		log.Printf("Pre-flight check failed, skipping this cycle: %v", err)
		c.setState(StateDisconnected)
		c.scheduleReconnect()
		return nil
	}
	if !allowed {
		c.setState(StateDisconnected)
		if permanent {
			log.Printf("Connection denied permanently: %s", reason)
			c.mu.Lock()
			c.userDisconnected = true
			c.mu.Unlock()
			return nil
		}
		log.Printf("Connection denied, will retry: %s", reason)
		c.scheduleReconnect()
		return nil
	}

	conn, _, err := websocket.DefaultDialer.Dial(c.wsURL(), nil)
	if err != nil {
		log.Printf("Spectrum WebSocket dial failed: %v", err)
		c.setState(StateDisconnected)
		c.scheduleReconnect()
		return nil
	}

	c.mu.Lock()
	c.conn = conn
	c.state = StateOpen
	c.reconnectAttempts = 0
	c.mu.Unlock()

	log.Printf("Spectrum WebSocket connected, user_session_id: %s", c.sessionID)
	go c.readLoop(conn)
	return nil
}

// Disconnect closes the connection and suppresses any reconnect. This is
// the user-initiated terminal state.
func (c *ProtocolClient) Disconnect() {
	c.mu.Lock()
	c.userDisconnected = true
	c.state = StateClosing
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	c.setState(StateDisconnected)
}

// preflight asks the server for admission before opening a socket.
func (c *ProtocolClient) preflight() (allowed, permanent bool, reason string, err error) {
	body, _ := json.Marshal(admissionRequest{UserSessionID: c.sessionID})
	resp, err := c.httpClient.Post(c.serverURL+"/connection", "application/json", bytes.NewReader(body))
	if err != nil {
		return false, false, "", err
	}
	defer resp.Body.Close()

	var admission admissionResponse
	if err := json.NewDecoder(resp.Body).Decode(&admission); err != nil {
		return false, false, "", fmt.Errorf("parsing admission response: %w", err)
	}

	c.checkServerVersion(admission.Version)

	if admission.Allowed {
		return true, false, "", nil
	}
	return false, isPermanentDenial(admission.Reason), admission.Reason, nil
}

// checkServerVersion warns when the server predates the oldest version
// known to speak this protocol dialect. Advisory only.
func (c *ProtocolClient) checkServerVersion(reported string) {
	if c.minServerVersion == nil || reported == "" {
		return
	}
	v, err := goversion.NewVersion(reported)
	if err != nil {
		log.Printf("Server reported unparseable version %q", reported)
		return
	}
	if v.LessThan(c.minServerVersion) {
		log.Printf("Server version %s is older than supported minimum %s; expect protocol quirks",
			v, c.minServerVersion)
	}
}

func isPermanentDenial(reason string) bool {
	for _, marker := range permanentDenialMarkers {
		if strings.Contains(reason, marker) {
			return true
		}
	}
	return false
}

// wsURL builds the spectrum endpoint URL from the configured base.
func (c *ProtocolClient) wsURL() string {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return c.serverURL
	}
	scheme := "ws"
	if u.Scheme == "https" {
		scheme = "wss"
	}

	query := url.Values{}
	query.Set("user_session_id", c.sessionID)
	if c.password != "" {
		query.Set("password", c.password)
	}
	if c.binary8 {
		query.Set("mode", "binary8")
	}
	return fmt.Sprintf("%s://%s/ws/user-spectrum?%s", scheme, u.Host, query.Encode())
}

// readLoop processes incoming messages in delivery order until the
// connection drops, then hands off to the reconnect machinery.
func (c *ProtocolClient) readLoop(conn *websocket.Conn) {
	defer func() {
		conn.Close()
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
			c.state = StateDisconnected
		}
		disconnected := c.userDisconnected
		c.mu.Unlock()

		if !disconnected {
			c.scheduleReconnect()
		}
	}()

	for {
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("Spectrum WebSocket error: %v", err)
			}
			return
		}

		frame, err := c.decoder.Decode(messageType == websocket.BinaryMessage, payload)
		if err != nil {
			// A single malformed frame never interrupts the stream.
			if c.metrics != nil {
				c.metrics.DecodeErrors.Inc()
			}
			log.Printf("Dropping frame: %v", err)
			continue
		}
		if frame == nil {
			continue
		}

		if c.metrics != nil {
			c.metrics.FramesReceived.WithLabelValues(frame.Kind.String()).Inc()
		}

		// Server-side rate limiting is handled silently; the request was
		// simply dropped and the view will catch up on the next command.
		if frame.Kind == FrameError && frame.Status == http.StatusTooManyRequests {
			if c.metrics != nil {
				c.metrics.RateLimited.Inc()
			}
			continue
		}

		c.dispatch(frame)
	}
}

func (c *ProtocolClient) dispatch(frame *SpectrumFrame) {
	c.mu.Lock()
	handlers := make([]FrameHandler, len(c.subscribers))
	copy(handlers, c.subscribers)
	c.mu.Unlock()

	for _, h := range handlers {
		h(frame)
	}
}

// reconnectDelay implements min(2^(attempt-1) * 1s, 60s).
func reconnectDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 7 {
		// 2^6 s already exceeds the cap.
		return 60 * time.Second
	}
	d := time.Duration(1<<uint(attempt-1)) * time.Second
	if d > 60*time.Second {
		return 60 * time.Second
	}
	return d
}

func (c *ProtocolClient) scheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.userDisconnected {
		return
	}

	c.reconnectAttempts++
	if c.reconnectAttempts > c.maxReconnectAttempts {
		// Surface this exactly once, no matter how often we get here.
		if !c.exhaustedNotified {
			c.exhaustedNotified = true
			if c.notify != nil {
				c.notify("Lost connection to the server and reconnect attempts are exhausted. Reload to try again.")
			}
		}
		return
	}

	if c.metrics != nil {
		c.metrics.Reconnects.Inc()
	}

	delay := reconnectDelay(c.reconnectAttempts)
	log.Printf("Scheduling reconnect attempt %d/%d in %s", c.reconnectAttempts, c.maxReconnectAttempts, delay)

	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
	}
	c.reconnectTimer = time.AfterFunc(delay, func() {
		if err := c.Connect(); err != nil {
			log.Printf("Reconnect: %v", err)
		}
	})
}

// send writes one control message, subject to the local command limiter.
// Dropped messages are not errors; the user gesture that caused them will
// repeat or supersede them.
func (c *ProtocolClient) send(msgType string, msg interface{}) error {
	if !c.limiter.Allow() {
		if c.metrics != nil {
			c.metrics.CommandsDropped.Inc()
		}
		return nil
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("not connected")
	}

	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("sending %s: %w", msgType, err)
	}
	if c.metrics != nil {
		c.metrics.CommandsSent.WithLabelValues(msgType).Inc()
	}
	return nil
}

// SendPan requests a new center frequency. The wire format is an unsigned
// integer; pixel math hands us floats, so round here rather than risk a
// protocol violation the server answers by closing the connection.
func (c *ProtocolClient) SendPan(frequency float64) error {
	return c.send("pan", panMessage{Type: "pan", Frequency: uint64(math.Round(frequency))})
}

// SendZoom requests a new bin bandwidth centered on frequency.
func (c *ProtocolClient) SendZoom(frequency float64, binBandwidth float64) error {
	return c.send("zoom", zoomMessage{
		Type:         "zoom",
		Frequency:    uint64(math.Round(frequency)),
		BinBandwidth: binBandwidth,
	})
}

// SendReset restores the server's default full-band view.
func (c *ProtocolClient) SendReset() error {
	return c.send("reset", typeOnlyMessage{Type: "reset"})
}

// Ping exists for the external idle-detector collaborator, which owns all
// keepalive traffic. The protocol client itself never schedules pings.
func (c *ProtocolClient) Ping() error {
	return c.send("ping", typeOnlyMessage{Type: "ping"})
}

// RequestStatus asks the server to re-send the session geometry. The reply
// arrives as an ordinary config frame.
func (c *ProtocolClient) RequestStatus() error {
	return c.send("get_status", typeOnlyMessage{Type: "get_status"})
}

func (c *ProtocolClient) setState(s ConnState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}
