package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/checkout/pkg/httpx"
	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

// Hub fans session events out to the websockets opened for that session.
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[string]map[*hubConn]struct{}
}

type hubConn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *hubConn) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			// The checkout runs on merchant origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: make(map[string]map[*hubConn]struct{}),
	}
}

// ServeHTTP upgrades GET /ws?sessionId=... and holds the socket until the
// client goes away. Inbound frames are read and dropped.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("sessionId"))
	if sessionID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "sessionId is required")
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &hubConn{ws: ws}
	h.add(sessionID, c)
	defer func() {
		h.remove(sessionID, c)
		_ = ws.Close()
	}()

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) add(sessionID string, c *hubConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.conns[sessionID]
	if !ok {
		set = make(map[*hubConn]struct{})
		h.conns[sessionID] = set
	}
	set[c] = struct{}{}
	h.logger.Debug("channel opened", "session_id", sessionID, "connections", len(set))
}

func (h *Hub) remove(sessionID string, c *hubConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.conns[sessionID]
	delete(set, c)
	if len(set) == 0 {
		delete(h.conns, sessionID)
	}
	h.logger.Debug("channel closed", "session_id", sessionID)
}

// Connections reports how many sockets a session has open.
func (h *Hub) Connections(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns[sessionID])
}

// Publish sends event to every socket of its session and returns how many
// received it. The session id and type are set on the event.
func (h *Hub) Publish(sessionID, topic string, event map[string]any) int {
	msg := make(map[string]any, len(event)+2)
	for k, v := range event {
		msg[k] = v
	}
	msg["type"] = topic
	msg["sessionId"] = sessionID

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("event encode failed", "error", err)
		return 0
	}

	h.mu.Lock()
	targets := make([]*hubConn, 0, len(h.conns[sessionID]))
	for c := range h.conns[sessionID] {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	sent := 0
	for _, c := range targets {
		if err := c.write(data); err != nil {
			h.logger.Warn("event delivery failed", "session_id", sessionID, "error", err)
			continue
		}
		sent++
	}

	h.logger.Info("event published", "session_id", sessionID, "type", topic, "delivered", sent)
	return sent
}

// CloseAll closes every socket, used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, set := range h.conns {
		for c := range set {
			c.mu.Lock()
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(time.Second))
			c.mu.Unlock()
			_ = c.ws.Close()
		}
	}
}
