package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/mealdrop/mealdrop/internal/user"
)

// Hub owns the connection registry and the broadcast groups, and implements
// the emit surface the order-lifecycle emitter targets.
//
// Emission methods never return an error and never panic outward: delivery
// failure on the socket channel must not disturb the business operation that
// triggered it.
type Hub struct {
	registry *Registry
	logger   zerolog.Logger
	presence *Presence // optional, nil when redis is not configured

	roomMu sync.RWMutex
	rooms  map[string]map[*Conn]struct{} // order rooms, keyed by order ID

	upgrader websocket.Upgrader
}

// NewHub creates a hub with an empty registry. presence may be nil.
func NewHub(logger zerolog.Logger, presence *Presence) *Hub {
	return &Hub{
		registry: NewRegistry(),
		logger:   logger,
		presence: presence,
		rooms:    make(map[string]map[*Conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Auth happens before the upgrade; cross-origin browser clients
			// are expected (the admin dashboard).
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Registry exposes the connection registry for status reporting.
func (h *Hub) Registry() *Registry { return h.registry }

// ServeConn upgrades the request and runs the connection until it dies. The
// caller must have authenticated the request; identity comes from the
// verified claims, not from the client's register payload.
func (h *Hub) ServeConn(w http.ResponseWriter, r *http.Request, userID string, role user.Role) error {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	conn := newConn(ws, h, userID, role, h.logger)
	h.register(conn)

	go conn.writePump()
	go conn.readPump()
	return nil
}

// register installs the connection in the registry and closes any prior
// connection for the same user (last connection wins).
func (h *Hub) register(conn *Conn) {
	replaced := h.registry.Register(conn.userID, conn.role, conn)
	if replaced != nil {
		h.removeFromRooms(replaced)
		replaced.close()
	}

	h.markPresence(conn, true)

	h.logger.Info().
		Str("user_id", conn.userID).
		Str("role", string(conn.role)).
		Int("connections", h.registry.Count()).
		Msg("client connected")
}

// disconnect removes the connection everywhere. Eager cleanup: called from
// the read pump the moment the socket dies.
func (h *Hub) disconnect(conn *Conn) {
	h.registry.Unregister(conn)
	h.removeFromRooms(conn)
	conn.close()

	h.markPresence(conn, false)

	h.logger.Info().
		Str("user_id", conn.userID).
		Int("connections", h.registry.Count()).
		Msg("client disconnected")
}

func (h *Hub) markPresence(conn *Conn, online bool) {
	if h.presence == nil {
		return
	}
	// Best effort with a short deadline; presence is advisory.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if online {
		h.presence.MarkOnline(ctx, conn.userID, conn.role)
	} else {
		h.presence.MarkOffline(ctx, conn.userID)
	}
}

// handleCommand dispatches one client command.
func (h *Hub) handleCommand(conn *Conn, cmd *Command) {
	switch cmd.Type {
	case CommandRegister:
		// Identity already came from the verified token at connect time.
		// Acknowledge so older clients that wait for it proceed.
		h.sendTo(conn, EventNotification, map[string]string{"message": "registered"})

	case CommandJoinOrder:
		var p JoinOrderPayload
		if err := json.Unmarshal(cmd.Payload, &p); err != nil || p.OrderID == "" {
			return
		}
		h.joinOrder(conn, p.OrderID)

	case CommandLeaveOrder:
		var p JoinOrderPayload
		if err := json.Unmarshal(cmd.Payload, &p); err != nil || p.OrderID == "" {
			return
		}
		h.leaveOrder(conn, p.OrderID)

	default:
		h.logger.Debug().
			Str("type", cmd.Type).
			Str("user_id", conn.userID).
			Msg("unknown socket command")
	}
}

func (h *Hub) joinOrder(conn *Conn, orderID string) {
	h.roomMu.Lock()
	defer h.roomMu.Unlock()

	room, ok := h.rooms[orderID]
	if !ok {
		room = make(map[*Conn]struct{})
		h.rooms[orderID] = room
	}
	room[conn] = struct{}{}
}

func (h *Hub) leaveOrder(conn *Conn, orderID string) {
	h.roomMu.Lock()
	defer h.roomMu.Unlock()

	if room, ok := h.rooms[orderID]; ok {
		delete(room, conn)
		if len(room) == 0 {
			delete(h.rooms, orderID)
		}
	}
}

func (h *Hub) removeFromRooms(conn *Conn) {
	h.roomMu.Lock()
	defer h.roomMu.Unlock()

	for orderID, room := range h.rooms {
		delete(room, conn)
		if len(room) == 0 {
			delete(h.rooms, orderID)
		}
	}
}

// OrderRoomSize returns the current membership of an order room.
func (h *Hub) OrderRoomSize(orderID string) int {
	h.roomMu.RLock()
	defer h.roomMu.RUnlock()
	return len(h.rooms[orderID])
}

// EmitToUser delivers an event to a single user's live connection. Returns
// false when the user has no live connection (the push channel is the
// backstop) or when marshaling fails.
func (h *Hub) EmitToUser(userID, event string, data interface{}) bool {
	frame, ok := h.encode(event, data)
	if !ok {
		return false
	}

	entry, live := h.registry.Get(userID)
	if !live {
		return false
	}
	return entry.Conn.enqueue(frame)
}

// EmitToRole broadcasts an event to every live connection with the given
// role. No delivery confirmation.
func (h *Hub) EmitToRole(role user.Role, event string, data interface{}) {
	frame, ok := h.encode(event, data)
	if !ok {
		return
	}

	for _, entry := range h.registry.ByRole(role) {
		entry.Conn.enqueue(frame)
	}
}

// EmitToOrder broadcasts an event to every connection that joined the order's
// room. Membership is client-initiated; an emission before anyone joined is
// lost on this channel.
func (h *Hub) EmitToOrder(orderID, event string, data interface{}) {
	frame, ok := h.encode(event, data)
	if !ok {
		return
	}

	h.roomMu.RLock()
	conns := make([]*Conn, 0, len(h.rooms[orderID]))
	for conn := range h.rooms[orderID] {
		conns = append(conns, conn)
	}
	h.roomMu.RUnlock()

	for _, conn := range conns {
		conn.enqueue(frame)
	}
}

// sendTo delivers an event to one specific connection.
func (h *Hub) sendTo(conn *Conn, event string, data interface{}) {
	if frame, ok := h.encode(event, data); ok {
		conn.enqueue(frame)
	}
}

// encode wraps the event in the timestamped envelope. Marshal failures are
// logged and reported as a failed emission, never raised.
func (h *Hub) encode(event string, data interface{}) ([]byte, bool) {
	frame, err := json.Marshal(Envelope{
		Event:     event,
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
	if err != nil {
		h.logger.Error().Err(err).Str("event", event).Msg("failed to encode event")
		return nil, false
	}
	return frame, true
}
