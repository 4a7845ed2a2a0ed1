// Package realtime provides the live WebSocket channel: a per-process
// connection registry, role/user/order broadcast groups, and the socket
// handshake protocol.
//
// The socket channel is at-most-once: an emission to a user with no live
// connection is dropped (and reported, not raised). Push notifications are the
// durability backstop, and clients are expected to treat every event as a hint
// to re-fetch authoritative state, never as an ordered stream.
package realtime

import (
	"encoding/json"
	"time"
)

// Server→client event names.
const (
	EventOrderNew         = "order:new"
	EventOrderAssigned    = "order:assigned"
	EventOrderStatus      = "order:status:update"
	EventDeliveryStatus   = "delivery:status:update"
	EventDeliveryLocation = "delivery:location:update"
	EventPaymentStatus    = "payment:status:update"
	EventNotification     = "notification:new"
)

// Client→server command types.
const (
	CommandRegister   = "register"
	CommandJoinOrder  = "join-order"
	CommandLeaveOrder = "leave-order"
)

// Envelope is the wire format for every server→client event. Timestamp is
// stamped at emission time.
type Envelope struct {
	Event     string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// Command is the wire format for client→server messages.
type Command struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// JoinOrderPayload carries the order ID for join-order / leave-order commands.
type JoinOrderPayload struct {
	OrderID string `json:"orderId"`
}

// RegisterPayload mirrors the legacy register handshake. Identity is taken
// from the verified token on connect; the payload is accepted for
// compatibility and ignored.
type RegisterPayload struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}
