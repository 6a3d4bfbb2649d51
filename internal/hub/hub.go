// Package hub fans mission events out to WebSocket clients and routes
// their inbound events into the mission engine and role registry.
package hub

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"callsign/internal/api"
	"callsign/internal/logging"
	"callsign/internal/mission"
	"callsign/internal/roster"
	"callsign/internal/script"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 << 10
	sendBuffer     = 64
)

// Hub is the broadcast layer. It implements mission.Publisher.
type Hub struct {
	engine   *mission.Engine
	registry *roster.Registry
	script   *script.Script
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[string]*connection
}

type connection struct {
	id   string
	ws   *websocket.Conn
	send chan []byte
}

// New builds a Hub over the given engine and registry.
func New(engine *mission.Engine, registry *roster.Registry, s *script.Script, logger *slog.Logger) *Hub {
	return &Hub{
		engine:   engine,
		registry: registry,
		script:   s,
		logger:   logging.NewComponentLogger(logger, "hub"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Clients are local installation browsers; the daemon binds
			// to a trusted interface.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: make(map[string]*connection),
	}
}

// ConnectionCount returns the number of open WebSocket connections.
func (h *Hub) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Publish broadcasts an event to every connected client. Slow consumers
// are dropped rather than allowed to stall the mission.
func (h *Hub) Publish(event api.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("marshal broadcast", logging.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, conn := range h.conns {
		select {
		case conn.send <- data:
		default:
			h.logger.Warn("dropping slow connection",
				logging.String(logging.FieldConnID, id))
			close(conn.send)
			delete(h.conns, id)
		}
	}
}

// ServeWS upgrades an HTTP request and runs the connection until it
// closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", logging.Error(err))
		return
	}
	conn := &connection{
		id:   uuid.NewString(),
		ws:   ws,
		send: make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	h.conns[conn.id] = conn
	h.mu.Unlock()
	h.logger.Info("client connected", logging.String(logging.FieldConnID, conn.id))

	go h.writePump(conn)
	h.sendSnapshot(conn)
	h.broadcastRoster()
	h.readPump(conn)
}

// sendSnapshot brings a fresh connection up to date with mission state,
// role availability, and the current expected input.
func (h *Hub) sendSnapshot(conn *connection) {
	h.sendTo(conn, api.Event{Type: api.EventSnapshot, Payload: h.engine.Snapshot()})
	h.sendTo(conn, api.Event{Type: api.EventRoleUpdate, Payload: h.registry.Availability()})
	h.sendTo(conn, api.Event{Type: api.EventParticipants, Payload: h.registry.Participants()})
}

// sendTo delivers an event to one connection. The send happens under
// h.mu after confirming the connection is still registered: Publish and
// drop close the send channel while holding the same lock, so a
// connection dropped concurrently is skipped instead of panicking the
// sender.
func (h *Hub) sendTo(conn *connection, event api.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("marshal direct send", logging.Error(err))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[conn.id]; !ok {
		return
	}
	select {
	case conn.send <- data:
	default:
		h.logger.Warn("send buffer full",
			logging.String(logging.FieldConnID, conn.id))
	}
}

func (h *Hub) broadcastRoster() {
	h.Publish(api.Event{Type: api.EventRoleUpdate, Payload: h.registry.Availability()})
	h.Publish(api.Event{Type: api.EventParticipants, Payload: h.registry.Participants()})
}

func (h *Hub) writePump(conn *connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.ws.Close()
	}()
	for {
		select {
		case data, ok := <-conn.send:
			conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) readPump(conn *connection) {
	defer h.drop(conn)
	conn.ws.SetReadLimit(maxMessageSize)
	conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	conn.ws.SetPongHandler(func(string) error {
		conn.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("connection read error",
					logging.String(logging.FieldConnID, conn.id),
					logging.Error(err))
			}
			return
		}
		h.dispatch(conn, data)
	}
}

// drop unregisters the connection. Its exclusive role, if any, stays
// taken so the same participant can reclaim it after a reload.
func (h *Hub) drop(conn *connection) {
	h.mu.Lock()
	if _, ok := h.conns[conn.id]; ok {
		close(conn.send)
		delete(h.conns, conn.id)
	}
	h.mu.Unlock()
	conn.ws.Close()

	h.registry.Release(conn.id)
	h.logger.Info("client disconnected", logging.String(logging.FieldConnID, conn.id))
	h.broadcastRoster()
}
