package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/mealdrop/mealdrop/internal/api/models"
	"github.com/mealdrop/mealdrop/internal/api/response"
	"github.com/mealdrop/mealdrop/internal/order"
	"github.com/mealdrop/mealdrop/internal/realtime"
	"github.com/mealdrop/mealdrop/internal/user"
)

// OrderHandler handles order lifecycle endpoints.
type OrderHandler struct {
	orders      *order.Service
	broadcaster LocationBroadcaster
	logger      zerolog.Logger
}

// LocationBroadcaster pushes live courier coordinates into an order's room.
// Implemented by realtime.Hub.
type LocationBroadcaster interface {
	EmitToOrder(orderID, event string, data interface{})
}

// NewOrderHandler creates a new OrderHandler. broadcaster may be nil; the
// location endpoint is then a no-op.
func NewOrderHandler(orders *order.Service, broadcaster LocationBroadcaster, logger zerolog.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, broadcaster: broadcaster, logger: logger}
}

// CreateOrder handles POST /v1/orders - place an order.
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var input models.OrderCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	o, err := h.orders.Create(r.Context(), order.CreateInput{
		CustomerID:      GetUserID(r.Context()),
		Items:           input.Items,
		DeliveryAddress: input.DeliveryAddress,
	})
	if err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}

	response.Created(w, r, "/v1/orders/"+o.ID, o)
}

// GetOrder handles GET /v1/orders/{orderId}.
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, ok := h.loadVisibleOrder(w, r)
	if !ok {
		return
	}
	response.JSON(w, r, http.StatusOK, o)
}

// ListOrders handles GET /v1/orders. Customers see their own orders; admins
// see all orders, optionally filtered by status.
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	role := GetUserRole(r.Context())

	if role == user.RoleAdmin {
		var orders []*order.Order
		var err error
		if status := order.Status(r.URL.Query().Get("status")); status != "" {
			orders, err = h.orders.ListByStatus(r.Context(), status, 50)
		} else {
			orders, err = h.orders.ListRecent(r.Context(), 50)
		}
		if err != nil {
			h.logger.Error().Err(err).Msg("failed to list orders")
			response.InternalError(w, r, "failed to list orders")
			return
		}
		response.JSON(w, r, http.StatusOK, models.PagedOrders{
			Items: orders,
			Meta:  models.PagedResponseMeta{Limit: 50},
		})
		return
	}

	orders, err := h.orders.ListByCustomer(r.Context(), GetUserID(r.Context()), 50)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list orders")
		response.InternalError(w, r, "failed to list orders")
		return
	}
	response.JSON(w, r, http.StatusOK, models.PagedOrders{
		Items: orders,
		Meta:  models.PagedResponseMeta{Limit: 50},
	})
}

// AssignOrder handles POST /v1/orders/{orderId}/assign - admin only.
func (h *OrderHandler) AssignOrder(w http.ResponseWriter, r *http.Request) {
	var input models.OrderAssignRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil || input.AgentID == "" {
		response.BadRequest(w, r, "agentId is required", nil)
		return
	}

	o, err := h.orders.Assign(r.Context(), chi.URLParam(r, "orderId"), input.AgentID)
	if err != nil {
		h.writeTransitionError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, o)
}

// MarkReady handles POST /v1/orders/{orderId}/ready - admin only.
func (h *OrderHandler) MarkReady(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.MarkReady(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		h.writeTransitionError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, o)
}

// StartDelivery handles POST /v1/orders/{orderId}/out-for-delivery - the
// assigned agent only.
func (h *OrderHandler) StartDelivery(w http.ResponseWriter, r *http.Request) {
	if !h.requireAssignedAgent(w, r) {
		return
	}

	o, err := h.orders.StartDelivery(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		h.writeTransitionError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, o)
}

// MarkDelivered handles POST /v1/orders/{orderId}/delivered - the assigned
// agent only.
func (h *OrderHandler) MarkDelivered(w http.ResponseWriter, r *http.Request) {
	if !h.requireAssignedAgent(w, r) {
		return
	}

	o, err := h.orders.MarkDelivered(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		h.writeTransitionError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, o)
}

// CancelOrder handles POST /v1/orders/{orderId}/cancel. Customers may cancel
// their own orders; admins may cancel any.
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	role := GetUserRole(r.Context())

	if role != user.RoleAdmin {
		existing, err := h.orders.Get(r.Context(), orderID)
		if err != nil {
			h.writeTransitionError(w, r, err)
			return
		}
		if existing.CustomerID != GetUserID(r.Context()) {
			response.Forbidden(w, r, "order belongs to another customer")
			return
		}
	}

	o, err := h.orders.Cancel(r.Context(), orderID)
	if err != nil {
		h.writeTransitionError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, o)
}

// UpdatePayment handles POST /v1/orders/{orderId}/payment - admin only.
func (h *OrderHandler) UpdatePayment(w http.ResponseWriter, r *http.Request) {
	var input models.OrderPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	o, err := h.orders.UpdatePayment(r.Context(), chi.URLParam(r, "orderId"), order.PaymentStatus(input.Status))
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			response.NotFound(w, r, "order not found")
			return
		}
		response.BadRequest(w, r, err.Error(), nil)
		return
	}
	response.JSON(w, r, http.StatusOK, o)
}

// UpdateLocation handles POST /v1/orders/{orderId}/location - the assigned
// agent streams courier coordinates into the order room. The update is
// ephemeral: delivered to whoever is watching now, never persisted.
func (h *OrderHandler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	var input models.DeliveryLocationRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if input.Lat < -90 || input.Lat > 90 || input.Lng < -180 || input.Lng > 180 {
		response.BadRequest(w, r, "coordinates out of range", nil)
		return
	}

	if !h.requireAssignedAgent(w, r) {
		return
	}

	if h.broadcaster != nil {
		h.broadcaster.EmitToOrder(chi.URLParam(r, "orderId"), realtime.EventDeliveryLocation, map[string]interface{}{
			"orderId": chi.URLParam(r, "orderId"),
			"lat":     input.Lat,
			"lng":     input.Lng,
			"agentId": GetUserID(r.Context()),
		})
	}
	response.NoContent(w, r)
}

// loadVisibleOrder fetches the order and enforces that the caller may see
// it: the customer who placed it, the agent assigned to it, or an admin.
func (h *OrderHandler) loadVisibleOrder(w http.ResponseWriter, r *http.Request) (*order.Order, bool) {
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			response.NotFound(w, r, "order not found")
		} else {
			h.logger.Error().Err(err).Msg("failed to load order")
			response.InternalError(w, r, "failed to load order")
		}
		return nil, false
	}

	userID := GetUserID(r.Context())
	switch GetUserRole(r.Context()) {
	case user.RoleAdmin:
	case user.RoleAgent:
		if o.AgentID != userID {
			response.Forbidden(w, r, "order is assigned to another agent")
			return nil, false
		}
	default:
		if o.CustomerID != userID {
			response.Forbidden(w, r, "order belongs to another customer")
			return nil, false
		}
	}
	return o, true
}

// requireAssignedAgent verifies that the caller is the agent assigned to the
// order in the path. Admins pass as well.
func (h *OrderHandler) requireAssignedAgent(w http.ResponseWriter, r *http.Request) bool {
	if GetUserRole(r.Context()) == user.RoleAdmin {
		return true
	}

	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			response.NotFound(w, r, "order not found")
		} else {
			h.logger.Error().Err(err).Msg("failed to load order")
			response.InternalError(w, r, "failed to load order")
		}
		return false
	}
	if o.AgentID != GetUserID(r.Context()) {
		response.Forbidden(w, r, "order is assigned to another agent")
		return false
	}
	return true
}

func (h *OrderHandler) writeTransitionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, order.ErrOrderNotFound):
		response.NotFound(w, r, "order not found")
	case errors.Is(err, order.ErrInvalidTransition):
		response.Conflict(w, r, "order is not in a state that allows this transition")
	default:
		h.logger.Error().Err(err).Msg("order transition failed")
		response.InternalError(w, r, "order transition failed")
	}
}
