// Package stream pushes rendered frames to browsers over WebSocket and
// accepts playback commands from them.
package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"climatemap-server/internal/modules/climate/playback"
	"climatemap-server/internal/modules/climate/types"
	"climatemap-server/internal/observability"
)

var (
	ErrHubClosed     = errors.New("stream: hub closed")
	ErrUnknownAction = errors.New("stream: unknown action")
	ErrMissingOffset = errors.New("stream: seek requires offset")
)

const (
	DefaultSendBuffer = 32

	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// Controls is the playback surface clients can drive.
type Controls interface {
	Play() playback.Snapshot
	Pause() playback.Snapshot
	Toggle() playback.Snapshot
	Reset() playback.Snapshot
	Seek(offset int) playback.Snapshot
	Snapshot() playback.Snapshot
}

// Command is an inbound client message.
type Command struct {
	Action string `json:"action"`
	Offset *int   `json:"offset,omitempty"`
}

// Message is an outbound envelope. Exactly one payload field is set.
type Message struct {
	Type     string             `json:"type"`
	Frame    *types.Frame       `json:"frame,omitempty"`
	Playback *playback.Snapshot `json:"playback,omitempty"`
	Error    string             `json:"error,omitempty"`
}

// ParseCommand decodes and validates a client command.
func ParseCommand(data []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return Command{}, fmt.Errorf("decode command: %w", err)
	}
	switch cmd.Action {
	case "play", "pause", "toggle", "reset":
	case "seek":
		if cmd.Offset == nil {
			return Command{}, ErrMissingOffset
		}
	default:
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownAction, cmd.Action)
	}
	return cmd, nil
}

// Apply runs cmd against c.
func Apply(c Controls, cmd Command) playback.Snapshot {
	switch cmd.Action {
	case "play":
		return c.Play()
	case "pause":
		return c.Pause()
	case "toggle":
		return c.Toggle()
	case "reset":
		return c.Reset()
	case "seek":
		return c.Seek(*cmd.Offset)
	}
	return c.Snapshot()
}

type Hub struct {
	upgrader   websocket.Upgrader
	controls   Controls
	current    func() types.Frame
	sendBuffer int
	logger     *slog.Logger
	metrics    *observability.Metrics

	mu      sync.RWMutex
	clients map[string]*client
	closed  bool
}

type Option func(*Hub)

func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) { h.logger = l }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

func WithSendBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

// NewHub creates a hub. current supplies the frame sent to a client right
// after it connects.
func NewHub(controls Controls, current func() types.Frame, opts ...Option) *Hub {
	h := &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		controls:   controls,
		current:    current,
		sendBuffer: DefaultSendBuffer,
		logger:     slog.Default(),
		metrics:    observability.NewMetricsForTesting(),
		clients:    make(map[string]*client),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues frame for every client. Clients whose buffer is full are
// disconnected.
func (h *Hub) Broadcast(frame types.Frame) {
	h.broadcast(Message{Type: "frame", Frame: &frame})
}

// BroadcastPlayback announces a playback state change.
func (h *Hub) BroadcastPlayback(snap playback.Snapshot) {
	h.broadcast(Message{Type: "playback", Playback: &snap})
}

func (h *Hub) broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("encode stream message", "type", msg.Type, "error", err)
		return
	}
	h.mu.RLock()
	var slow []*client
	for _, c := range h.clients {
		if !c.enqueue(data) {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.metrics.FramesDropped.WithLabelValues("stream").Inc()
		h.logger.Warn("stream client too slow, disconnecting", "client_id", c.id)
		h.unregister(c)
	}
}

// ServeHTTP upgrades the request and serves the client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		http.Error(w, ErrHubClosed.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, h.sendBuffer),
		done: make(chan struct{}),
	}
	if err := h.register(c); err != nil {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, err.Error()))
		_ = conn.Close()
		return
	}

	if h.current != nil {
		frame := h.current()
		h.sendTo(c, Message{Type: "frame", Frame: &frame})
	}
	if h.controls != nil {
		snap := h.controls.Snapshot()
		h.sendTo(c, Message{Type: "playback", Playback: &snap})
	}

	go h.writePump(c)
	h.readPump(c)
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.unregister(c)
	}
}

func (h *Hub) register(c *client) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHubClosed
	}
	h.clients[c.id] = c
	h.metrics.StreamClients.Set(float64(len(h.clients)))
	h.logger.Debug("stream client connected", "client_id", c.id)
	return nil
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		h.metrics.StreamClients.Set(float64(len(h.clients)))
		h.logger.Debug("stream client disconnected", "client_id", c.id)
	}
	h.mu.Unlock()
	c.close()
}

func (h *Hub) sendTo(c *client, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("encode stream message", "type", msg.Type, "error", err)
		return
	}
	if !c.enqueue(data) {
		h.unregister(c)
	}
}

func (h *Hub) readPump(c *client) {
	defer h.unregister(c)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("stream read failed", "client_id", c.id, "error", err)
			}
			return
		}
		cmd, err := ParseCommand(data)
		if err != nil {
			h.sendTo(c, Message{Type: "error", Error: err.Error()})
			continue
		}
		if h.controls == nil {
			continue
		}
		h.logger.Debug("stream command", "client_id", c.id, "action", cmd.Action)
		snap := Apply(h.controls, cmd)
		h.BroadcastPlayback(snap)
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

// enqueue reports false when the client's buffer is full.
func (c *client) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}
