package device

import (
	"context"
	"sync"
	"time"

	"github.com/mealdrop/mealdrop/internal/user"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing. Production should use PostgresRepository.
type InMemoryRepository struct {
	mu     sync.RWMutex
	tokens map[string]*Token
}

// NewInMemoryRepository creates a new in-memory device-token repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		tokens: make(map[string]*Token),
	}
}

// GetByToken retrieves a token record by token value.
func (r *InMemoryRepository) GetByToken(_ context.Context, token string) (*Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tokens[token]
	if !ok {
		return nil, ErrTokenNotFound
	}

	cpy := *t
	return &cpy, nil
}

// Upsert creates or updates a token record keyed by token value.
func (r *InMemoryRepository) Upsert(_ context.Context, t *Token) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, exists := r.tokens[t.Token]
	cpy := *t
	r.tokens[t.Token] = &cpy
	return !exists, nil
}

// ListActiveByUsers retrieves all active tokens for the given user IDs.
func (r *InMemoryRepository) ListActiveByUsers(_ context.Context, userIDs []string) ([]*Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wanted := make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		wanted[id] = true
	}

	var tokens []*Token
	for _, t := range r.tokens {
		if t.IsActive && wanted[t.UserID] {
			cpy := *t
			tokens = append(tokens, &cpy)
		}
	}
	return tokens, nil
}

// ListActiveByRole retrieves all active tokens whose stored role matches.
func (r *InMemoryRepository) ListActiveByRole(_ context.Context, role user.Role) ([]*Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var tokens []*Token
	for _, t := range r.tokens {
		if t.IsActive && t.Role == role {
			cpy := *t
			tokens = append(tokens, &cpy)
		}
	}
	return tokens, nil
}

// SetActive flips the isActive flag for a token.
func (r *InMemoryRepository) SetActive(_ context.Context, token string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tokens[token]
	if !ok {
		return ErrTokenNotFound
	}

	t.IsActive = active
	t.UpdatedAt = time.Now()
	return nil
}

// TouchLastUsed bumps lastUsedAt for the given tokens.
func (r *InMemoryRepository) TouchLastUsed(_ context.Context, tokens []string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, token := range tokens {
		if t, ok := r.tokens[token]; ok {
			ts := at
			t.LastUsedAt = &ts
		}
	}
	return nil
}

// DeleteInactiveBefore hard-deletes inactive tokens not used since the cutoff.
func (r *InMemoryRepository) DeleteInactiveBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for token, t := range r.tokens {
		if t.IsActive || !t.UpdatedAt.Before(cutoff) {
			continue
		}
		if t.LastUsedAt != nil && !t.LastUsedAt.Before(cutoff) {
			continue
		}
		delete(r.tokens, token)
		deleted++
	}
	return deleted, nil
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
