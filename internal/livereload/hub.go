// Package livereload pushes rebuild notifications to browsers over a
// WebSocket. Pages served by the dev server load a small client script that
// reloads the page, swaps stylesheets in place or shows build errors.
package livereload

import (
	"context"
	_ "embed"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/conneroisu/sitepipe/internal/logging"
	"github.com/conneroisu/sitepipe/internal/metrics"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send pings to peer with this period. A peer that does not answer
	// within writeWait is dropped.
	pingPeriod = 54 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	sendBuffer = 16
)

// Endpoints served by the hub.
const (
	SocketPath = "/__sitepipe/livereload"
	ScriptPath = "/__sitepipe/livereload.js"
)

// ClientScript is the browser side of the protocol.
//
//go:embed client.js
var ClientScript []byte

// Client represents a connected browser.
type Client struct {
	ID   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// Hub tracks connected browsers and fans messages out to them.
type Hub struct {
	logger         logging.Logger
	recorder       metrics.Recorder
	originPatterns []string

	clients      map[*Client]struct{}
	clientsMutex sync.RWMutex
	broadcast    chan []byte
	register     chan *Client
	unregister   chan *Client
	done         chan struct{}
	closeOnce    sync.Once

	errMu  sync.Mutex
	failed map[string][]ErrorDetail
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the hub's logger.
func WithLogger(l logging.Logger) Option {
	return func(h *Hub) { h.logger = l.WithComponent("livereload") }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(h *Hub) { h.recorder = r }
}

// WithOriginPatterns allows cross-origin connections from hosts matching
// the patterns, e.g. "localhost:*". Same-origin connections are always
// accepted.
func WithOriginPatterns(patterns ...string) Option {
	return func(h *Hub) { h.originPatterns = append(h.originPatterns, patterns...) }
}

// NewHub creates a hub. Call Run to start delivering messages.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		logger:     logging.Nop(),
		recorder:   metrics.NoopRecorder{},
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan []byte, 16),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		failed:     make(map[string][]ErrorDetail),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run delivers messages until ctx is canceled, then disconnects every
// client.
func (h *Hub) Run(ctx context.Context) {
	defer h.closeOnce.Do(func() {
		close(h.done)
		h.clientsMutex.Lock()
		for c := range h.clients {
			delete(h.clients, c)
			close(c.send)
		}
		h.clientsMutex.Unlock()
		h.recorder.SetReloadClients(0)
	})

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.clientsMutex.Lock()
			h.clients[client] = struct{}{}
			count := len(h.clients)
			h.clientsMutex.Unlock()

			h.recorder.SetReloadClients(count)
			h.logger.Debug(ctx, "Client connected", "id", client.ID, "clients", count)
			h.greet(client)

		case client := <-h.unregister:
			h.clientsMutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.clientsMutex.Unlock()

			h.recorder.SetReloadClients(count)
			h.logger.Debug(ctx, "Client disconnected", "id", client.ID, "clients", count)

		case message := <-h.broadcast:
			h.clientsMutex.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Send buffer full.
					delete(h.clients, client)
					close(client.send)
					h.logger.Warn(ctx, nil, "Dropped slow client", "id", client.ID)
				}
			}
			count := len(h.clients)
			h.clientsMutex.Unlock()
			h.recorder.SetReloadClients(count)
		}
	}
}

// greet sends the connected message and any outstanding build errors.
func (h *Hub) greet(c *Client) {
	msgs := []Message{{Type: TypeConnected, ID: c.ID, Timestamp: time.Now()}}

	h.errMu.Lock()
	for task, details := range h.failed {
		msgs = append(msgs, Message{Type: TypeError, Task: task, Errors: details, Timestamp: time.Now()})
	}
	h.errMu.Unlock()

	for _, m := range msgs {
		data, err := json.Marshal(m)
		if err != nil {
			continue
		}
		select {
		case c.send <- data:
		default:
		}
	}
}

// Clients returns the number of connected browsers.
func (h *Hub) Clients() int {
	h.clientsMutex.RLock()
	defer h.clientsMutex.RUnlock()
	return len(h.clients)
}

// Broadcast sends msg to every connected browser. Once the hub has stopped
// the message is discarded.
func (h *Hub) Broadcast(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error(context.Background(), err, "Failed to marshal message", "type", msg.Type)
		data = []byte(`{"type":"reload"}`)
	}
	select {
	case h.broadcast <- data:
		h.recorder.IncReloads(msg.Type)
	case <-h.done:
	}
}

// ServeHTTP upgrades the request to a WebSocket and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Warn(r.Context(), err, "WebSocket upgrade failed", "origin", r.Header.Get("Origin"))
		return
	}

	client := &Client{
		ID:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
		hub:  h,
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	case <-r.Context().Done():
		conn.Close(websocket.StatusGoingAway, "")
		return
	}

	go client.writePump()
	client.readPump()
}

// ScriptHandler serves the client script.
func ScriptHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = w.Write(ClientScript)
	})
}

// readPump consumes (and discards) messages from the browser so that pings,
// pongs and close frames are processed.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	c.conn.SetReadLimit(maxMessageSize)

	for {
		_, _, err := c.conn.Read(context.Background())
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && status != -1 {
				c.hub.logger.Debug(context.Background(), "WebSocket closed", "id", c.ID, "status", status.String())
			}
			return
		}
	}
}

// writePump delivers queued messages and keeps the connection alive.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Write(ctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
