package order

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Notifier receives lifecycle transitions after they are persisted. The
// notification layer implements this; implementations must never return an
// error or panic into the caller, delivery failure cannot roll back an order.
type Notifier interface {
	OrderCreated(ctx context.Context, o *Order)
	OrderAssigned(ctx context.Context, o *Order)
	OrderReady(ctx context.Context, o *Order)
	OrderOutForDelivery(ctx context.Context, o *Order)
	OrderDelivered(ctx context.Context, o *Order)
	OrderCancelled(ctx context.Context, o *Order)
	PaymentUpdated(ctx context.Context, o *Order)
}

// NopNotifier discards all transitions.
type NopNotifier struct{}

func (NopNotifier) OrderCreated(context.Context, *Order)        {}
func (NopNotifier) OrderAssigned(context.Context, *Order)       {}
func (NopNotifier) OrderReady(context.Context, *Order)          {}
func (NopNotifier) OrderOutForDelivery(context.Context, *Order) {}
func (NopNotifier) OrderDelivered(context.Context, *Order)      {}
func (NopNotifier) OrderCancelled(context.Context, *Order)      {}
func (NopNotifier) PaymentUpdated(context.Context, *Order)      {}

// CreateInput holds the fields a customer submits when placing an order.
type CreateInput struct {
	CustomerID      string
	Items           []Item
	DeliveryAddress string
}

// Service provides order lifecycle operations. Every mutation persists first,
// then hands the updated order to the notifier.
type Service struct {
	repo     Repository
	notifier Notifier
	logger   zerolog.Logger
}

// NewService creates a new order service. notifier may be NopNotifier.
func NewService(repo Repository, notifier Notifier, logger zerolog.Logger) *Service {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Service{repo: repo, notifier: notifier, logger: logger}
}

// Create places a new order in status placed with payment pending.
func (s *Service) Create(ctx context.Context, input CreateInput) (*Order, error) {
	if input.CustomerID == "" {
		return nil, fmt.Errorf("customer ID is required")
	}
	if len(input.Items) == 0 {
		return nil, fmt.Errorf("order must contain at least one item")
	}

	total := 0.0
	for _, item := range input.Items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("item %q has non-positive quantity", item.Name)
		}
		total += item.Price * float64(item.Quantity)
	}

	now := time.Now()
	o := &Order{
		ID:              uuid.New().String(),
		OrderNumber:     newOrderNumber(),
		Status:          StatusPlaced,
		CustomerID:      input.CustomerID,
		Items:           input.Items,
		TotalAmount:     total,
		DeliveryAddress: input.DeliveryAddress,
		PaymentStatus:   PaymentPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.repo.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	s.logger.Info().
		Str("order_id", o.ID).
		Str("order_number", o.OrderNumber).
		Str("customer_id", o.CustomerID).
		Float64("total", o.TotalAmount).
		Msg("order placed")

	s.notifier.OrderCreated(ctx, o)
	return o, nil
}

// Get retrieves an order by ID.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	return s.repo.Get(ctx, id)
}

// ListByCustomer retrieves a customer's orders, newest first.
func (s *Service) ListByCustomer(ctx context.Context, customerID string, limit int) ([]*Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.ListByCustomer(ctx, customerID, limit)
}

// ListByStatus retrieves orders in a given status, oldest first.
func (s *Service) ListByStatus(ctx context.Context, status Status, limit int) ([]*Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.ListByStatus(ctx, status, limit)
}

// ListRecent retrieves orders across all statuses, newest first.
func (s *Service) ListRecent(ctx context.Context, limit int) ([]*Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.ListRecent(ctx, limit)
}

// Assign attaches a delivery agent to a placed order.
func (s *Service) Assign(ctx context.Context, id, agentID string) (*Order, error) {
	if agentID == "" {
		return nil, fmt.Errorf("agent ID is required")
	}

	o, err := s.repo.UpdateStatus(ctx, id, StatusPlaced, StatusAssigned, agentID)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("order_id", o.ID).
		Str("agent_id", agentID).
		Msg("order assigned")

	s.notifier.OrderAssigned(ctx, o)
	return o, nil
}

// MarkReady marks an assigned order as ready for pickup.
func (s *Service) MarkReady(ctx context.Context, id string) (*Order, error) {
	o, err := s.repo.UpdateStatus(ctx, id, StatusAssigned, StatusReady, "")
	if err != nil {
		return nil, err
	}

	s.notifier.OrderReady(ctx, o)
	return o, nil
}

// StartDelivery marks a ready order as out for delivery.
func (s *Service) StartDelivery(ctx context.Context, id string) (*Order, error) {
	o, err := s.repo.UpdateStatus(ctx, id, StatusReady, StatusOutForDelivery, "")
	if err != nil {
		return nil, err
	}

	s.notifier.OrderOutForDelivery(ctx, o)
	return o, nil
}

// MarkDelivered completes an order that is out for delivery.
func (s *Service) MarkDelivered(ctx context.Context, id string) (*Order, error) {
	o, err := s.repo.UpdateStatus(ctx, id, StatusOutForDelivery, StatusDelivered, "")
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("order_id", o.ID).
		Str("order_number", o.OrderNumber).
		Msg("order delivered")

	s.notifier.OrderDelivered(ctx, o)
	return o, nil
}

// Cancel cancels an order that has not left for delivery yet.
func (s *Service) Cancel(ctx context.Context, id string) (*Order, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(current.Status, StatusCancelled) {
		return nil, ErrInvalidTransition
	}

	// The from status in the WHERE clause keeps this safe against a racing
	// transition between the read above and this update.
	o, err := s.repo.UpdateStatus(ctx, id, current.Status, StatusCancelled, "")
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("order_id", o.ID).
		Str("order_number", o.OrderNumber).
		Msg("order cancelled")

	s.notifier.OrderCancelled(ctx, o)
	return o, nil
}

// UpdatePayment records a payment capture or failure.
func (s *Service) UpdatePayment(ctx context.Context, id string, status PaymentStatus) (*Order, error) {
	switch status {
	case PaymentPending, PaymentCaptured, PaymentFailed:
	default:
		return nil, fmt.Errorf("unknown payment status %q", status)
	}

	o, err := s.repo.UpdatePayment(ctx, id, status)
	if err != nil {
		return nil, err
	}

	s.notifier.PaymentUpdated(ctx, o)
	return o, nil
}

// newOrderNumber generates a short human-readable order reference.
func newOrderNumber() string {
	id := uuid.New()
	return fmt.Sprintf("MD-%X", id[:4])
}
