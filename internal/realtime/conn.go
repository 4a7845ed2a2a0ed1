package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/mealdrop/mealdrop/internal/user"
)

const (
	// writeWait is the deadline for a single write to the peer.
	writeWait = 10 * time.Second

	// pongWait is how long to wait for a pong before giving up on the peer.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxCommandSize bounds inbound command frames.
	maxCommandSize = 4 * 1024

	// sendBufferSize is the per-connection outbound queue. A client that
	// cannot drain it fast enough is disconnected rather than blocking the
	// broadcaster.
	sendBufferSize = 64
)

// Conn is one live WebSocket connection. All writes go through the buffered
// send channel and a single write pump; the hub never writes to the socket
// directly.
type Conn struct {
	ws     *websocket.Conn
	hub    *Hub
	logger zerolog.Logger

	userID string
	role   user.Role

	send      chan []byte
	closeOnce sync.Once
}

func newConn(ws *websocket.Conn, hub *Hub, userID string, role user.Role, logger zerolog.Logger) *Conn {
	return &Conn{
		ws:     ws,
		hub:    hub,
		logger: logger,
		userID: userID,
		role:   role,
		send:   make(chan []byte, sendBufferSize),
	}
}

// UserID returns the authenticated user ID for this connection.
func (c *Conn) UserID() string { return c.userID }

// Role returns the authenticated role for this connection.
func (c *Conn) Role() user.Role { return c.role }

// enqueue offers a frame to the send queue. Returns false if the queue is
// full or the connection is closed; in the full case the connection is
// dropped, since a wedged client would otherwise stall broadcasts forever.
func (c *Conn) enqueue(frame []byte) bool {
	defer func() {
		// Racing a concurrent close can panic on send to a closed channel;
		// treat it as a failed enqueue.
		_ = recover()
	}()

	select {
	case c.send <- frame:
		return true
	default:
		c.logger.Warn().
			Str("user_id", c.userID).
			Msg("send buffer full, dropping connection")
		c.hub.disconnect(c)
		return false
	}
}

// close tears the connection down exactly once.
func (c *Conn) close() {
	c.closeOnce.Do(func() {
		close(c.send)
		_ = c.ws.Close()
	})
}

// writePump drains the send queue onto the socket and keeps the peer alive
// with pings. One writePump goroutine per connection.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump consumes client commands until the connection dies, then
// unregisters it. One readPump goroutine per connection.
func (c *Conn) readPump() {
	defer func() {
		c.hub.disconnect(c)
	}()

	c.ws.SetReadLimit(maxCommandSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		// A pong doubles as the presence heartbeat.
		c.hub.markPresence(c, true)
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug().Err(err).Str("user_id", c.userID).Msg("websocket closed unexpectedly")
			}
			return
		}

		var cmd Command
		if err := json.Unmarshal(frame, &cmd); err != nil {
			c.logger.Debug().Err(err).Str("user_id", c.userID).Msg("discarding malformed command")
			continue
		}

		c.hub.handleCommand(c, &cmd)
	}
}
