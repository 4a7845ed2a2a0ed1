package order

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL order repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const orderColumns = `id, order_number, status, customer_id, agent_id, items, total_amount, delivery_address, payment_status, created_at, updated_at`

// Create stores a new order. Items are stored as a JSONB column.
func (r *PostgresRepository) Create(ctx context.Context, o *Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, $10, $11)
	`

	_, err = r.pool.Exec(ctx, query,
		o.ID,
		o.OrderNumber,
		o.Status,
		o.CustomerID,
		o.AgentID,
		items,
		o.TotalAmount,
		o.DeliveryAddress,
		o.PaymentStatus,
		o.CreatedAt,
		o.UpdatedAt,
	)
	return err
}

// Get retrieves an order by ID.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE id = $1
	`

	o, err := scanOrder(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return o, nil
}

// ListByCustomer retrieves a customer's orders, newest first.
func (r *PostgresRepository) ListByCustomer(ctx context.Context, customerID string, limit int) ([]*Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE customer_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, customerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanOrders(rows)
}

// ListByStatus retrieves orders in a given status, oldest first.
func (r *PostgresRepository) ListByStatus(ctx context.Context, status Status, limit int) ([]*Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE status = $1
		ORDER BY created_at
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanOrders(rows)
}

// ListRecent retrieves orders across all statuses, newest first.
func (r *PostgresRepository) ListRecent(ctx context.Context, limit int) ([]*Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanOrders(rows)
}

// UpdateStatus moves an order from one status to another atomically. The
// WHERE clause carries the expected from status so a concurrent transition
// loses cleanly instead of overwriting.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, from, to Status, agentID string) (*Order, error) {
	query := `
		UPDATE orders
		SET status = $3,
		    agent_id = COALESCE(NULLIF($4, ''), agent_id),
		    updated_at = $5
		WHERE id = $1 AND status = $2
		RETURNING ` + orderColumns + `
	`

	o, err := scanOrder(r.pool.QueryRow(ctx, query, id, from, to, agentID, time.Now()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Disambiguate missing order from wrong current status.
			if _, getErr := r.Get(ctx, id); getErr != nil {
				return nil, getErr
			}
			return nil, ErrInvalidTransition
		}
		return nil, err
	}
	return o, nil
}

// UpdatePayment sets the payment status.
func (r *PostgresRepository) UpdatePayment(ctx context.Context, id string, status PaymentStatus) (*Order, error) {
	query := `
		UPDATE orders
		SET payment_status = $2, updated_at = $3
		WHERE id = $1
		RETURNING ` + orderColumns + `
	`

	o, err := scanOrder(r.pool.QueryRow(ctx, query, id, status, time.Now()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return o, nil
}

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	var agentID *string
	var items []byte

	err := row.Scan(
		&o.ID,
		&o.OrderNumber,
		&o.Status,
		&o.CustomerID,
		&agentID,
		&items,
		&o.TotalAmount,
		&o.DeliveryAddress,
		&o.PaymentStatus,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if agentID != nil {
		o.AgentID = *agentID
	}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &o.Items); err != nil {
			return nil, err
		}
	}
	return &o, nil
}

func scanOrders(rows pgx.Rows) ([]*Order, error) {
	var orders []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
