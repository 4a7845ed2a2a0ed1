package order

import "context"

// Repository defines the interface for order persistence.
type Repository interface {
	// Create stores a new order.
	Create(ctx context.Context, o *Order) error

	// Get retrieves an order by ID.
	Get(ctx context.Context, id string) (*Order, error)

	// ListByCustomer retrieves a customer's orders, newest first.
	ListByCustomer(ctx context.Context, customerID string, limit int) ([]*Order, error)

	// ListByStatus retrieves orders in a given status, oldest first.
	ListByStatus(ctx context.Context, status Status, limit int) ([]*Order, error)

	// ListRecent retrieves orders across all statuses, newest first.
	ListRecent(ctx context.Context, limit int) ([]*Order, error)

	// UpdateStatus moves an order from one status to another atomically.
	// agentID is applied when non-empty (the assignment transition).
	// Returns ErrInvalidTransition when the order is no longer in the
	// expected from status, ErrOrderNotFound when it does not exist.
	UpdateStatus(ctx context.Context, id string, from, to Status, agentID string) (*Order, error)

	// UpdatePayment sets the payment status.
	UpdatePayment(ctx context.Context, id string, status PaymentStatus) (*Order, error)
}
