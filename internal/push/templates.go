package push

import "fmt"

// Event types carried by push notifications. One per order-lifecycle
// transition that reaches the push channel.
const (
	EventOrderNew            = "ORDER_NEW"
	EventOrderAssigned       = "ORDER_ASSIGNED"
	EventOrderReady          = "ORDER_READY"
	EventOrderOutForDelivery = "ORDER_OUT_FOR_DELIVERY"
	EventOrderDelivered      = "ORDER_DELIVERED"
)

// Payload is the event data a template renders from. Values come from the
// order domain; templates must tolerate any field being absent.
type Payload map[string]interface{}

// Rendered is the display content for one event.
type Rendered struct {
	Title    string
	Body     string
	Sound    string
	Priority string
}

const genericBody = "You have an update on your order."

// templates maps event type to title, body renderer, sound and priority.
// Renderers are pure functions of the payload and never panic.
var templates = map[string]struct {
	title    string
	body     func(Payload) string
	sound    string
	priority string
}{
	EventOrderNew: {
		title: "New Order",
		body: func(p Payload) string {
			num, ok := p.str("orderNumber")
			if !ok {
				return "A new order has been placed."
			}
			if total, ok := p.str("totalAmount"); ok {
				return fmt.Sprintf("Order #%s placed, total %s.", num, total)
			}
			return fmt.Sprintf("Order #%s has been placed.", num)
		},
		sound:    "default",
		priority: "high",
	},
	EventOrderAssigned: {
		title: "Order Assigned",
		body: func(p Payload) string {
			num, ok := p.str("orderNumber")
			if !ok {
				return genericBody
			}
			if agent, ok := p.str("agentName"); ok {
				return fmt.Sprintf("%s is handling your order #%s.", agent, num)
			}
			return fmt.Sprintf("A delivery agent has been assigned to order #%s.", num)
		},
		sound:    "default",
		priority: "default",
	},
	EventOrderReady: {
		title: "Order Ready",
		body: func(p Payload) string {
			num, ok := p.str("orderNumber")
			if !ok {
				return genericBody
			}
			return fmt.Sprintf("Order #%s is ready for pickup.", num)
		},
		sound:    "default",
		priority: "high",
	},
	EventOrderOutForDelivery: {
		title: "Out for Delivery",
		body: func(p Payload) string {
			num, ok := p.str("orderNumber")
			if !ok {
				return genericBody
			}
			if eta, ok := p.str("eta"); ok {
				return fmt.Sprintf("Order #%s is on its way, arriving around %s.", num, eta)
			}
			return fmt.Sprintf("Order #%s is on its way.", num)
		},
		sound:    "default",
		priority: "high",
	},
	EventOrderDelivered: {
		title: "Order Delivered",
		body: func(p Payload) string {
			num, ok := p.str("orderNumber")
			if !ok {
				return genericBody
			}
			return fmt.Sprintf("Order #%s has been delivered. Enjoy your meal!", num)
		},
		sound:    "default",
		priority: "default",
	},
}

// Render produces the display content for an event. Unknown event types get
// a neutral notification rather than an error; the dispatcher still attaches
// the raw payload for the client to act on.
func Render(eventType string, data Payload) Rendered {
	tpl, ok := templates[eventType]
	if !ok {
		return Rendered{
			Title:    "MealDrop",
			Body:     genericBody,
			Sound:    "default",
			Priority: "default",
		}
	}
	return Rendered{
		Title:    tpl.title,
		Body:     tpl.body(data),
		Sound:    tpl.sound,
		Priority: tpl.priority,
	}
}

// str extracts a non-empty string-ish field from the payload.
func (p Payload) str(key string) (string, bool) {
	v, ok := p[key]
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, t != ""
	case fmt.Stringer:
		return t.String(), true
	case float64:
		return fmt.Sprintf("%g", t), true
	case int:
		return fmt.Sprintf("%d", t), true
	default:
		return "", false
	}
}
