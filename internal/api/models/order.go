package models

import "github.com/mealdrop/mealdrop/internal/order"

// OrderCreateRequest is the request body for placing an order.
type OrderCreateRequest struct {
	Items           []order.Item `json:"items" validate:"required,min=1,dive"`
	DeliveryAddress string       `json:"deliveryAddress" validate:"required"`
}

// OrderAssignRequest is the request body for assigning a delivery agent.
type OrderAssignRequest struct {
	AgentID string `json:"agentId" validate:"required"`
}

// OrderPaymentRequest is the request body for recording a payment outcome.
type OrderPaymentRequest struct {
	Status string `json:"status" validate:"required,oneof=pending captured failed"`
}

// DeliveryLocationRequest is the request body for an agent location update.
type DeliveryLocationRequest struct {
	Lat float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	Lng float64 `json:"lng" validate:"required,gte=-180,lte=180"`
}

// PagedOrders represents a list of orders.
type PagedOrders struct {
	Items []*order.Order    `json:"items"`
	Meta  PagedResponseMeta `json:"meta"`
}
