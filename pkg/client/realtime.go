package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
)

// Server→client event names, mirroring the realtime channel.
const (
	EventOrderNew         = "order:new"
	EventOrderAssigned    = "order:assigned"
	EventOrderStatus      = "order:status:update"
	EventDeliveryStatus   = "delivery:status:update"
	EventDeliveryLocation = "delivery:location:update"
	EventPaymentStatus    = "payment:status:update"
	EventNotification     = "notification:new"
)

// Event is one realtime envelope from the server.
//
// Contract: the socket channel is at-most-once and is not ordered relative
// to push notifications for the same domain event. Treat every event as a
// hint to re-fetch authoritative state, never as an ordered stream.
type Event struct {
	Event     string          `json:"event"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// EventHandler receives dispatched events.
type EventHandler func(Event)

// realtimeCommand is the client→server wire format.
type realtimeCommand struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Realtime is the websocket listener with automatic reconnect. Joined order
// rooms are replayed after every reconnect, so a subscription survives
// connection churn.
type Realtime struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     zerolog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	handlers  map[string][]EventHandler
	onConnect []func()
	rooms     map[string]bool
	closed    bool
	cancel    context.CancelFunc
}

// RealtimeOption configures a Realtime listener.
type RealtimeOption func(*Realtime)

// WithRealtimeHTTPClient sets the HTTP client used for the websocket dial.
func WithRealtimeHTTPClient(hc *http.Client) RealtimeOption {
	return func(r *Realtime) { r.httpClient = hc }
}

// WithRealtimeLogger sets the listener's logger.
func WithRealtimeLogger(l zerolog.Logger) RealtimeOption {
	return func(r *Realtime) { r.logger = l }
}

// NewRealtime creates a realtime listener. Call Connect to start it.
func NewRealtime(baseURL, token string, opts ...RealtimeOption) *Realtime {
	r := &Realtime{
		baseURL:  strings.TrimRight(baseURL, "/"),
		token:    token,
		logger:   zerolog.Nop(),
		handlers: make(map[string][]EventHandler),
		rooms:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// On registers a handler for an event name. Handlers run on the read
// goroutine; long work should be handed off.
func (r *Realtime) On(event string, h EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[event] = append(r.handlers[event], h)
}

// OnConnect registers a callback fired after every successful (re)connect,
// once room joins have been replayed. A typical use is triggering an
// authoritative re-fetch to cover events missed while disconnected.
func (r *Realtime) OnConnect(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onConnect = append(r.onConnect, fn)
}

// Connect dials the server and starts the read loop. The first dial failure
// is returned; afterwards the listener reconnects on its own with
// exponential backoff until Close is called.
func (r *Realtime) Connect(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)

	r.mu.Lock()
	if r.cancel != nil {
		r.mu.Unlock()
		cancel()
		return fmt.Errorf("already connected")
	}
	r.cancel = cancel
	r.mu.Unlock()

	conn, err := r.dial(runCtx)
	if err != nil {
		cancel()
		r.mu.Lock()
		r.cancel = nil
		r.mu.Unlock()
		return err
	}
	r.adopt(runCtx, conn)

	go r.run(runCtx)
	return nil
}

// Close stops the listener and closes the connection.
func (r *Realtime) Close() {
	r.mu.Lock()
	r.closed = true
	cancel := r.cancel
	conn := r.conn
	r.conn = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "client closing")
	}
}

// JoinOrder subscribes to an order's room. The join is replayed on every
// reconnect until LeaveOrder is called.
func (r *Realtime) JoinOrder(ctx context.Context, orderID string) error {
	r.mu.Lock()
	r.rooms[orderID] = true
	r.mu.Unlock()

	return r.send(ctx, realtimeCommand{
		Type:    "join-order",
		Payload: map[string]string{"orderId": orderID},
	})
}

// LeaveOrder unsubscribes from an order's room.
func (r *Realtime) LeaveOrder(ctx context.Context, orderID string) error {
	r.mu.Lock()
	delete(r.rooms, orderID)
	r.mu.Unlock()

	return r.send(ctx, realtimeCommand{
		Type:    "leave-order",
		Payload: map[string]string{"orderId": orderID},
	})
}

func (r *Realtime) send(ctx context.Context, cmd realtimeCommand) error {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("not connected")
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

func (r *Realtime) dial(ctx context.Context) (*websocket.Conn, error) {
	wsURL := strings.Replace(r.baseURL, "https://", "wss://", 1)
	wsURL = strings.Replace(wsURL, "http://", "ws://", 1)
	wsURL += "/v1/ws"

	header := http.Header{}
	if r.token != "" {
		header.Set("Authorization", "Bearer "+r.token)
	}

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPClient: r.httpClient,
		HTTPHeader: header,
	})
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	return conn, nil
}

// adopt installs a fresh connection, replays room joins, and fires connect
// callbacks.
func (r *Realtime) adopt(ctx context.Context, conn *websocket.Conn) {
	r.mu.Lock()
	r.conn = conn
	rooms := make([]string, 0, len(r.rooms))
	for id := range r.rooms {
		rooms = append(rooms, id)
	}
	callbacks := append([]func(){}, r.onConnect...)
	r.mu.Unlock()

	for _, orderID := range rooms {
		err := r.send(ctx, realtimeCommand{
			Type:    "join-order",
			Payload: map[string]string{"orderId": orderID},
		})
		if err != nil {
			r.logger.Warn().Err(err).Str("order_id", orderID).Msg("room rejoin failed")
		}
	}
	for _, fn := range callbacks {
		go fn()
	}
}

// run reads events until the connection drops, then reconnects with
// exponential backoff. It exits only when the listener is closed.
func (r *Realtime) run(ctx context.Context) {
	for {
		r.readLoop(ctx)

		r.mu.Lock()
		closed := r.closed
		r.conn = nil
		r.mu.Unlock()
		if closed || ctx.Err() != nil {
			return
		}

		bo := backoff.NewExponentialBackOff()
		bo.MaxElapsedTime = 0 // retry until closed

		err := backoff.Retry(func() error {
			conn, dialErr := r.dial(ctx)
			if dialErr != nil {
				r.logger.Debug().Err(dialErr).Msg("realtime reconnect attempt failed")
				return dialErr
			}
			r.adopt(ctx, conn)
			return nil
		}, backoff.WithContext(bo, ctx))
		if err != nil {
			return
		}
	}
}

func (r *Realtime) readLoop(ctx context.Context) {
	for {
		r.mu.Lock()
		conn := r.conn
		r.mu.Unlock()
		if conn == nil {
			return
		}

		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			r.logger.Warn().Err(err).Msg("discarding malformed realtime event")
			continue
		}
		r.dispatch(ev)
	}
}

func (r *Realtime) dispatch(ev Event) {
	r.mu.Lock()
	handlers := append([]EventHandler{}, r.handlers[ev.Event]...)
	r.mu.Unlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					r.logger.Error().Interface("panic", rec).Str("event", ev.Event).Msg("event handler panicked")
				}
			}()
			h(ev)
		}()
	}
}
