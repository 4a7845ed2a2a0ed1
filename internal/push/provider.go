// Package push delivers push notifications to registered devices. It is the
// durable backstop for the live socket channel: best effort, at-least-once,
// unordered relative to socket events.
package push

import "context"

// Message is one notification addressed to a single device token.
type Message struct {
	To       string                 `json:"to"`
	Title    string                 `json:"title"`
	Body     string                 `json:"body"`
	Sound    string                 `json:"sound,omitempty"`
	Priority string                 `json:"priority,omitempty"`
	Data     map[string]interface{} `json:"data,omitempty"`
}

// Ticket is the per-message delivery outcome reported by the provider.
type Ticket struct {
	// Token is the device token the ticket refers to.
	Token string

	// OK reports whether the provider accepted the message.
	OK bool

	// TokenInvalid reports that the provider classified the token as
	// permanently invalid (device uninstalled or token revoked). The
	// dispatcher deactivates such tokens.
	TokenInvalid bool

	// Detail carries the provider's error detail for failed tickets.
	Detail string
}

// Provider submits a batch of messages and reports per-message tickets.
// Implementations must respect their backend's batch size limit internally
// or document it for the dispatcher to chunk against.
type Provider interface {
	Send(ctx context.Context, messages []Message) ([]Ticket, error)
}
