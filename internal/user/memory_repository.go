package user

import (
	"context"
	"sync"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing. Production should use PostgresRepository.
type InMemoryRepository struct {
	mu    sync.RWMutex
	users map[string]*User
}

// NewInMemoryRepository creates a new in-memory user repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		users: make(map[string]*User),
	}
}

// Put stores a user; test setup helper.
func (r *InMemoryRepository) Put(u *User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cpy := *u
	r.users[u.ID] = &cpy
}

// Get retrieves a user by ID.
func (r *InMemoryRepository) Get(_ context.Context, id string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}

	cpy := *u
	return &cpy, nil
}

// ListByRole retrieves all users with the given role.
func (r *InMemoryRepository) ListByRole(_ context.Context, role Role) ([]*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var users []*User
	for _, u := range r.users {
		if u.Role == role {
			cpy := *u
			users = append(users, &cpy)
		}
	}
	return users, nil
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
