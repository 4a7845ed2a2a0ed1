package order

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryRepository is an in-memory implementation of Repository for tests.
type InMemoryRepository struct {
	mu     sync.RWMutex
	orders map[string]*Order
}

// NewInMemoryRepository creates a new in-memory order repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{orders: make(map[string]*Order)}
}

// Create stores a new order.
func (r *InMemoryRepository) Create(_ context.Context, o *Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.orders[o.ID] = clone(o)
	return nil
}

// Get retrieves an order by ID.
func (r *InMemoryRepository) Get(_ context.Context, id string) (*Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return clone(o), nil
}

// ListByCustomer retrieves a customer's orders, newest first.
func (r *InMemoryRepository) ListByCustomer(_ context.Context, customerID string, limit int) ([]*Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*Order
	for _, o := range r.orders {
		if o.CustomerID == customerID {
			result = append(result, clone(o))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// ListByStatus retrieves orders in a given status, oldest first.
func (r *InMemoryRepository) ListByStatus(_ context.Context, status Status, limit int) ([]*Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*Order
	for _, o := range r.orders {
		if o.Status == status {
			result = append(result, clone(o))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// ListRecent retrieves orders across all statuses, newest first.
func (r *InMemoryRepository) ListRecent(_ context.Context, limit int) ([]*Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Order, 0, len(r.orders))
	for _, o := range r.orders {
		result = append(result, clone(o))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// UpdateStatus moves an order from one status to another atomically.
func (r *InMemoryRepository) UpdateStatus(_ context.Context, id string, from, to Status, agentID string) (*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	if o.Status != from {
		return nil, ErrInvalidTransition
	}

	o.Status = to
	if agentID != "" {
		o.AgentID = agentID
	}
	o.UpdatedAt = time.Now()
	return clone(o), nil
}

// UpdatePayment sets the payment status.
func (r *InMemoryRepository) UpdatePayment(_ context.Context, id string, status PaymentStatus) (*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}

	o.PaymentStatus = status
	o.UpdatedAt = time.Now()
	return clone(o), nil
}

func clone(o *Order) *Order {
	c := *o
	c.Items = append([]Item(nil), o.Items...)
	return &c
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
