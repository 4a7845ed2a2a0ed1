// Package notify routes order lifecycle transitions to the delivery
// channels: live socket emission plus push notification backstop.
//
// Routing is a declarative table, one row per transition. Adding a
// transition means adding a row, not scattering emit calls through handlers.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mealdrop/mealdrop/internal/order"
	"github.com/mealdrop/mealdrop/internal/push"
	"github.com/mealdrop/mealdrop/internal/realtime"
	"github.com/mealdrop/mealdrop/internal/user"
)

// Broadcaster is the socket emission surface. Implemented by realtime.Hub.
type Broadcaster interface {
	EmitToUser(userID, event string, data interface{}) bool
	EmitToRole(role user.Role, event string, data interface{})
	EmitToOrder(orderID, event string, data interface{})
}

// PushSender is the push dispatch surface. Implemented by push.Dispatcher.
type PushSender interface {
	SendToUsers(ctx context.Context, userIDs []string, eventType string, data push.Payload) (push.Result, error)
	SendToRole(ctx context.Context, role user.Role, eventType string, data push.Payload) (push.Result, error)
}

// Directory resolves user display names for notification bodies.
// Implemented by user.Service. May be nil; names are then omitted.
type Directory interface {
	Get(ctx context.Context, id string) (*user.User, error)
}

// target identifies one recipient selector in a routing row. Selectors whose
// key data is missing on the order (no agent assigned yet) are skipped, never
// an error.
type target int

const (
	targetCustomer target = iota
	targetAgent
	targetAdmins
	targetOrderRoom
)

// route is one row of the lifecycle routing table.
type route struct {
	socketEvent   string
	socketTargets []target

	// pushEvent empty means the transition has no push backstop.
	pushEvent   string
	pushTargets []target
}

var routes = map[string]route{
	"order_created": {
		socketEvent:   realtime.EventOrderNew,
		socketTargets: []target{targetAdmins, targetOrderRoom},
		pushEvent:     push.EventOrderNew,
		pushTargets:   []target{targetAdmins},
	},
	"agent_assigned": {
		socketEvent:   realtime.EventOrderAssigned,
		socketTargets: []target{targetAgent, targetCustomer, targetOrderRoom, targetAdmins},
		pushEvent:     push.EventOrderAssigned,
		pushTargets:   []target{targetAgent},
	},
	"order_ready": {
		socketEvent:   realtime.EventOrderStatus,
		socketTargets: []target{targetOrderRoom},
		pushEvent:     push.EventOrderReady,
		pushTargets:   []target{targetCustomer},
	},
	"out_for_delivery": {
		socketEvent:   realtime.EventDeliveryStatus,
		socketTargets: []target{targetCustomer, targetOrderRoom, targetAdmins},
		pushEvent:     push.EventOrderOutForDelivery,
		pushTargets:   []target{targetCustomer},
	},
	"order_delivered": {
		socketEvent:   realtime.EventDeliveryStatus,
		socketTargets: []target{targetCustomer, targetOrderRoom, targetAdmins},
		pushEvent:     push.EventOrderDelivered,
		pushTargets:   []target{targetCustomer},
	},
	"order_cancelled": {
		socketEvent:   realtime.EventOrderStatus,
		socketTargets: []target{targetCustomer, targetAdmins, targetAgent},
	},
	"payment_updated": {
		socketEvent:   realtime.EventPaymentStatus,
		socketTargets: []target{targetAdmins, targetCustomer},
	},
}

// pushTimeout bounds a push dispatch once it is detached from the request.
const pushTimeout = 30 * time.Second

// Emitter implements order.Notifier over the routing table. All delivery
// failures are logged and swallowed; an emitter call never fails the
// triggering business operation.
type Emitter struct {
	broadcaster Broadcaster
	pusher      PushSender
	directory   Directory
	logger      zerolog.Logger

	pushes sync.WaitGroup
}

var _ order.Notifier = (*Emitter)(nil)

// NewEmitter creates a lifecycle emitter. pusher and directory may be nil;
// the corresponding channel or enrichment is then skipped.
func NewEmitter(broadcaster Broadcaster, pusher PushSender, directory Directory, logger zerolog.Logger) *Emitter {
	return &Emitter{
		broadcaster: broadcaster,
		pusher:      pusher,
		directory:   directory,
		logger:      logger,
	}
}

func (e *Emitter) OrderCreated(ctx context.Context, o *order.Order) {
	e.emit(ctx, "order_created", o)
}

func (e *Emitter) OrderAssigned(ctx context.Context, o *order.Order) {
	e.emit(ctx, "agent_assigned", o)
}

func (e *Emitter) OrderReady(ctx context.Context, o *order.Order) {
	e.emit(ctx, "order_ready", o)
}

func (e *Emitter) OrderOutForDelivery(ctx context.Context, o *order.Order) {
	e.emit(ctx, "out_for_delivery", o)
}

func (e *Emitter) OrderDelivered(ctx context.Context, o *order.Order) {
	e.emit(ctx, "order_delivered", o)
}

func (e *Emitter) OrderCancelled(ctx context.Context, o *order.Order) {
	e.emit(ctx, "order_cancelled", o)
}

func (e *Emitter) PaymentUpdated(ctx context.Context, o *order.Order) {
	e.emit(ctx, "payment_updated", o)
}

func (e *Emitter) emit(ctx context.Context, transition string, o *order.Order) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().
				Interface("panic", r).
				Str("transition", transition).
				Msg("recovered panic in lifecycle emitter")
		}
	}()

	rt, ok := routes[transition]
	if !ok {
		e.logger.Warn().Str("transition", transition).Msg("no route for transition")
		return
	}

	payload := e.eventPayload(ctx, o)

	for _, tgt := range rt.socketTargets {
		switch tgt {
		case targetCustomer:
			if o.CustomerID != "" {
				e.broadcaster.EmitToUser(o.CustomerID, rt.socketEvent, payload)
			}
		case targetAgent:
			// Skipped while no agent is assigned.
			if o.AgentID != "" {
				e.broadcaster.EmitToUser(o.AgentID, rt.socketEvent, payload)
			}
		case targetAdmins:
			e.broadcaster.EmitToRole(user.RoleAdmin, rt.socketEvent, payload)
		case targetOrderRoom:
			e.broadcaster.EmitToOrder(o.ID, rt.socketEvent, payload)
		}
	}

	if rt.pushEvent == "" || e.pusher == nil {
		return
	}

	// Push runs off the request path. Socket emission is cheap, but the push
	// provider round-trip (retries included) must never hold up the handler.
	e.pushes.Add(1)
	go func() {
		defer e.pushes.Done()
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error().
					Interface("panic", r).
					Str("order_id", o.ID).
					Msg("recovered panic in push dispatch")
			}
		}()
		e.dispatchPush(ctx, rt, o, payload)
	}()
}

// Flush blocks until in-flight push dispatches complete. Called on shutdown
// so pending notifications are not lost with the process.
func (e *Emitter) Flush() {
	e.pushes.Wait()
}

// dispatchPush runs the push backstop. The context is detached from the
// request so a client disconnect cannot cancel an in-flight dispatch, but a
// deadline still bounds it.
func (e *Emitter) dispatchPush(ctx context.Context, rt route, o *order.Order, payload push.Payload) {
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pushTimeout)
	defer cancel()

	for _, tgt := range rt.pushTargets {
		var err error
		switch tgt {
		case targetCustomer:
			if o.CustomerID == "" {
				continue
			}
			_, err = e.pusher.SendToUsers(pushCtx, []string{o.CustomerID}, rt.pushEvent, payload)
		case targetAgent:
			if o.AgentID == "" {
				continue
			}
			_, err = e.pusher.SendToUsers(pushCtx, []string{o.AgentID}, rt.pushEvent, payload)
		case targetAdmins:
			_, err = e.pusher.SendToRole(pushCtx, user.RoleAdmin, rt.pushEvent, payload)
		case targetOrderRoom:
			// Rooms have no push equivalent.
			continue
		}

		if err != nil {
			e.logger.Warn().Err(err).
				Str("event_type", rt.pushEvent).
				Str("order_id", o.ID).
				Msg("push dispatch failed")
		}
	}
}

// eventPayload builds the wire payload shared by both channels. Name
// enrichment is best effort; a failed lookup just omits the field.
func (e *Emitter) eventPayload(ctx context.Context, o *order.Order) push.Payload {
	payload := push.Payload{
		"orderId":       o.ID,
		"orderNumber":   o.OrderNumber,
		"status":        string(o.Status),
		"customerId":    o.CustomerID,
		"itemCount":     o.ItemCount(),
		"totalAmount":   o.TotalAmount,
		"paymentStatus": string(o.PaymentStatus),
	}
	if o.AgentID != "" {
		payload["agentId"] = o.AgentID
		if e.directory != nil {
			if agent, err := e.directory.Get(ctx, o.AgentID); err == nil {
				payload["agentName"] = agent.Name
			}
		}
	}
	if e.directory != nil && o.CustomerID != "" {
		if customer, err := e.directory.Get(ctx, o.CustomerID); err == nil {
			payload["customerName"] = customer.Name
		}
	}
	return payload
}
