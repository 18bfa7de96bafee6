// Package notify pushes analysis progress and diagnosis updates to connected
// clinician dashboards over WebSocket. The diagnosis core only emits values;
// the hub is a consumer and its failures never propagate back into analysis.
package notify

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/auramd-consensus-server/internal/domain"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingEvery  = (pongWait * 9) / 10
	sendBuffer = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// Event is one outbound hub message.
type Event struct {
	Type      string                      `json:"type"`
	SessionID string                      `json:"session_id,omitempty"`
	SourceID  string                      `json:"source_id,omitempty"`
	Stage     string                      `json:"stage,omitempty"`
	Data      *domain.DiagnosticConsensus `json:"data,omitempty"`
	Timestamp time.Time                   `json:"timestamp"`
}

type inbound struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
}

type client struct {
	conn *websocket.Conn
	send chan Event

	mu        sync.Mutex
	sessionID string
}

func (c *client) subscribed(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID == sessionID
}

func (c *client) subscribe(sessionID string) {
	c.mu.Lock()
	c.sessionID = sessionID
	c.mu.Unlock()
}

// Hub tracks connected clients and their session subscriptions.
type Hub struct {
	logger *logrus.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// NewHub creates an empty notification hub.
func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[*client]struct{}),
	}
}

// ServeWS upgrades an HTTP request to a WebSocket connection and services it
// until the peer disconnects. Clients subscribe to a diagnosis session by
// sending {"type":"subscribe","session_id":"..."}.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Debug("WebSocket upgrade failed")
		return
	}

	c := &client{
		conn: conn,
		send: make(chan Event, sendBuffer),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	c.send <- Event{Type: "connection_established", Timestamp: time.Now().UTC()}

	go h.writePump(c)
	h.readPump(c)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// AnalysisProgress implements domain.Notifier. It notifies the session's
// subscribers that a source advanced a stage.
func (h *Hub) AnalysisProgress(sessionID, sourceID, stage string) {
	h.broadcast(sessionID, Event{
		Type:      "analysis_progress",
		SessionID: sessionID,
		SourceID:  sourceID,
		Stage:     stage,
		Timestamp: time.Now().UTC(),
	})
}

// DiagnosisUpdate implements domain.Notifier. It pushes the completed
// consensus to the session's subscribers.
func (h *Hub) DiagnosisUpdate(sessionID string, consensus *domain.DiagnosticConsensus) {
	h.broadcast(sessionID, Event{
		Type:      "diagnosis_update",
		SessionID: sessionID,
		Data:      consensus,
		Timestamp: time.Now().UTC(),
	})
}

// broadcast delivers an event to every client subscribed to the session.
// Slow clients drop events rather than block the caller.
func (h *Hub) broadcast(sessionID string, event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if !c.subscribed(sessionID) {
			continue
		}
		select {
		case c.send <- event:
		default:
			h.logger.Debug("Dropping event for slow WebSocket client")
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	c.conn.Close()
}

func (h *Hub) readPump(c *client) {
	defer h.remove(c)

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var in inbound
		if err := c.conn.ReadJSON(&in); err != nil {
			return
		}

		switch in.Type {
		case "subscribe":
			if in.SessionID == "" {
				continue
			}
			c.subscribe(in.SessionID)
			select {
			case c.send <- Event{Type: "subscribed", SessionID: in.SessionID, Timestamp: time.Now().UTC()}:
			default:
			}
		case "ping":
			select {
			case c.send <- Event{Type: "pong", Timestamp: time.Now().UTC()}:
			default:
			}
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingEvery)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
