package user

import "context"

// Repository defines the interface for user lookup.
type Repository interface {
	// Get retrieves a user by ID.
	Get(ctx context.Context, id string) (*User, error)

	// ListByRole retrieves all users with the given role.
	ListByRole(ctx context.Context, role Role) ([]*User, error)
}
