// Package order holds the order lifecycle: the status machine, persistence,
// and the transition hooks the notification layer listens on.
package order

import (
	"errors"
	"time"
)

// Domain errors.
var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid order status transition")
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPlaced         Status = "placed"
	StatusAssigned       Status = "assigned"
	StatusReady          Status = "ready"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
	StatusCancelled      Status = "cancelled"
)

// PaymentStatus tracks the payment side independently of delivery progress.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentCaptured PaymentStatus = "captured"
	PaymentFailed   PaymentStatus = "failed"
)

// transitions holds the allowed status machine edges. An order out for
// delivery can no longer be cancelled.
var transitions = map[Status][]Status{
	StatusPlaced:         {StatusAssigned, StatusCancelled},
	StatusAssigned:       {StatusReady, StatusCancelled},
	StatusReady:          {StatusOutForDelivery, StatusCancelled},
	StatusOutForDelivery: {StatusDelivered},
}

// CanTransition reports whether from → to is a legal status machine edge.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Item is one order line.
type Item struct {
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

// Order is the aggregate the notification core revolves around.
type Order struct {
	ID              string        `json:"id"`
	OrderNumber     string        `json:"orderNumber"`
	Status          Status        `json:"status"`
	CustomerID      string        `json:"customerId"`
	AgentID         string        `json:"agentId,omitempty"` // empty until assigned
	Items           []Item        `json:"items"`
	TotalAmount     float64       `json:"totalAmount"`
	DeliveryAddress string        `json:"deliveryAddress"`
	PaymentStatus   PaymentStatus `json:"paymentStatus"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

// ItemCount is the total quantity across all lines.
func (o *Order) ItemCount() int {
	n := 0
	for _, item := range o.Items {
		n += item.Quantity
	}
	return n
}
