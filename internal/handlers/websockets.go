package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"conductbridge"
	"conductbridge/internal/logger"
	"conductbridge/internal/service"
)

// Send/receive timing configuration and message size limits.
const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 1 << 12 // 4 KB
)

// Envelope used for WebSocket messages.
type wsEnvelope struct {
	Type  string      `json:"type"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

// Upgrader for HTTP -> WebSocket. Consider tightening CheckOrigin in production.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true }, // TODO: restrict origins for production
}

// Hub pushes bridge notifications to every connected WebSocket client. It is
// wired into the poller's notifier fan-out, so clients see topology, feedback
// and status changes as they are detected rather than by re-polling the API.
type Hub struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
	log   *logger.Logger
}

var _ service.Notifier = (*Hub)(nil)

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		conns: make(map[*websocket.Conn]struct{}),
		log:   log,
	}
}

func (hub *Hub) register(conn *websocket.Conn) {
	hub.mu.Lock()
	hub.conns[conn] = struct{}{}
	hub.mu.Unlock()
}

func (hub *Hub) unregister(conn *websocket.Conn) {
	hub.mu.Lock()
	delete(hub.conns, conn)
	hub.mu.Unlock()
}

// broadcast writes the envelope to every client. A failed write drops that
// client; its reader goroutine notices the closed connection and cleans up.
func (hub *Hub) broadcast(env wsEnvelope) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	for conn := range hub.conns {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(env); err != nil {
			if hub.log != nil {
				hub.log.Infow("ws_broadcast_failed", "type", env.Type, "err", err)
			}
			_ = conn.Close()
			delete(hub.conns, conn)
		}
	}
}

func (hub *Hub) DefinitionsChanged(_ context.Context, rooms []conductbridge.Room) {
	hub.broadcast(wsEnvelope{Type: "definitions", Data: gin.H{"rooms": rooms}})
}

func (hub *Hub) FeedbackChanged(_ context.Context, activeSalvoIDs []string) {
	hub.broadcast(wsEnvelope{Type: "feedback", Data: gin.H{"activeSalvoIds": activeSalvoIDs}})
}

func (hub *Hub) StatusChanged(_ context.Context, status conductbridge.DeviceStatus) {
	hub.broadcast(wsEnvelope{Type: "status", Data: status})
}

func (h *Handler) wsConnect(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.log != nil {
			h.log.Errorw("ws_upgrade_failed", "err", err)
		}
		return
	}
	defer func() {
		h.hub.unregister(conn)
		_ = conn.Close()
	}()

	// Configure read limits and pong handler to extend read deadline.
	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Reader goroutine to handle control frames and detect disconnects.
	done := make(chan struct{})
	go h.startReader(conn, done)

	// Send the current picture immediately so a fresh client does not have to
	// wait for the next change to learn the bridge state.
	if err := h.sendInitial(conn); err != nil {
		if h.log != nil {
			h.log.Infow("ws_write_failed_initial", "err", err)
		}
		return
	}
	h.hub.register(conn)

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		case <-ping.C:
			if err := pingConn(conn); err != nil {
				if h.log != nil {
					h.log.Infow("ws_ping_failed", "err", err)
				}
				return
			}
		}
	}
}

// pingConn sends a keepalive ping as a control frame. Once the connection is
// registered, the hub may broadcast to it from other goroutines, and
// WriteControl is the only write that is safe next to a concurrent writer;
// WriteMessage here would race with Hub.broadcast.
func pingConn(conn *websocket.Conn) error {
	return conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// Helper: startReader drains incoming messages to handle control frames and detect closure.
func (h *Handler) startReader(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if h.log != nil {
				h.log.Infow("ws_read_closed", "err", err)
			}
			return
		}
	}
}

// Helper: sendInitial writes the current status, topology and feedback to a
// newly connected client with a write deadline.
func (h *Handler) sendInitial(conn *websocket.Conn) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(wsEnvelope{Type: "status", Data: h.services.Status.Current()}); err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(wsEnvelope{Type: "definitions", Data: gin.H{"rooms": h.services.Poller.Rooms()}}); err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(wsEnvelope{
		Type: "feedback",
		Data: gin.H{"activeSalvoIds": h.services.Poller.ActiveSalvoIDs()},
	})
}
