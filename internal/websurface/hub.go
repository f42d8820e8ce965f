package websurface

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/phosphor-vj/phosphor/internal/router"
)

const (
	// clientSendCapacity bounds each client's outbound queue; a slow
	// reader gets its broadcasts dropped rather than stalling the hub
	// (same non-blocking-send-with-drop discipline as the input router).
	clientSendCapacity = 64

	writeWait = 10 * time.Second
)

// controlPageHTML is served to plain HTTP requests on the control port.
// It is intentionally minimal; the real touch-surface UI is a separate
// static asset bundle deployed alongside the binary.
const controlPageHTML = `<!DOCTYPE html>
<html><head><title>Phosphor</title></head>
<body><p>Phosphor control surface. Connect via WebSocket to this address.</p></body>
</html>`

// Client is one connected WebSocket session.
type Client struct {
	id   uuid.UUID
	conn *websocket.Conn
	send chan []byte
}

// Hub owns the set of connected control-surface clients and forwards
// their commands into the input router (spec §4.7/§4.8).
type Hub struct {
	mu       sync.Mutex
	clients  map[uuid.UUID]*Client
	upgrader websocket.Upgrader
	router   *router.Router
	actions  LayerActions
	log      *logrus.Entry
}

// NewHub creates an empty hub that forwards client commands into r.
func NewHub(r *router.Router, log *logrus.Logger) *Hub {
	if log == nil {
		log = logrus.New()
	}
	return &Hub{
		clients:  make(map[uuid.UUID]*Client),
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		router:   r,
		log:      log.WithField("component", "websurface"),
	}
}

// SetLayerActions wires the engine's layer/preset mutation methods into
// the hub so load_effect, select_layer, and load_preset client messages
// have somewhere to go. Without it those three message types are logged
// and dropped.
func (h *Hub) SetLayerActions(a LayerActions) {
	h.actions = a
}

// ServeHTTP upgrades WebSocket requests and serves the static control
// page to everything else (spec §4.7).
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		h.handleUpgrade(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(controlPageHTML))
}

func (h *Hub) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Error("failed to upgrade websocket")
		return
	}

	c := &Client{id: uuid.New(), conn: conn, send: make(chan []byte, clientSendCapacity)}
	h.register(c)

	go h.writePump(c)
	h.readPump(c) // blocks until the connection closes
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.id] = c
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		close(c.send)
	}
}

// ClientCount reports how many clients are currently connected.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) readPump(c *Client) {
	defer func() {
		_ = c.conn.Close()
		h.unregister(c)
	}()

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			h.log.WithError(err).Debug("websocket read error")
			return
		}

		var env Envelope
		if err := decodeEnvelope(msg, &env); err != nil {
			h.log.WithError(err).Warn("malformed client message")
			continue
		}

		switch env.Type {
		case MsgLoadEffect, MsgSelectLayer, MsgLoadPreset:
			if h.actions == nil {
				h.log.WithField("type", env.Type).Debug("no layer actions wired, dropping message")
				continue
			}
			if err := applyLayerAction(env, h.actions); err != nil {
				h.log.WithError(err).Warn("layer action failed")
			}
			continue
		}

		cmd, err := translateClientMessage(env)
		if err != nil {
			h.log.WithError(err).Debug("client message not forwarded to router")
			continue
		}
		h.router.Send(cmd)
	}
}

func (h *Hub) writePump(c *Client) {
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.log.WithError(err).Debug("websocket write error")
			return
		}
	}
}

// Broadcast sends msgType/payload to every connected client, dropping it
// for any client whose send queue is full rather than blocking the
// broadcaster on a slow reader.
func (h *Hub) Broadcast(msgType string, payload interface{}) error {
	data, err := encodeEnvelope(msgType, payload)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.log.WithField("client", c.id).Warn("client send queue full, dropping broadcast")
		}
	}
	return nil
}
