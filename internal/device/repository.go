package device

import (
	"context"
	"time"

	"github.com/mealdrop/mealdrop/internal/user"
)

// Repository defines the interface for device-token persistence.
type Repository interface {
	// GetByToken retrieves a token record by token value.
	GetByToken(ctx context.Context, token string) (*Token, error)

	// Upsert creates or updates a token record keyed by token value.
	// Returns true if a new record was created, false if updated.
	Upsert(ctx context.Context, t *Token) (created bool, err error)

	// ListActiveByUsers retrieves all active tokens for the given user IDs.
	ListActiveByUsers(ctx context.Context, userIDs []string) ([]*Token, error)

	// ListActiveByRole retrieves all active tokens whose stored role matches.
	ListActiveByRole(ctx context.Context, role user.Role) ([]*Token, error)

	// SetActive flips the isActive flag for a token.
	SetActive(ctx context.Context, token string, active bool) error

	// TouchLastUsed bumps lastUsedAt for the given tokens.
	TouchLastUsed(ctx context.Context, tokens []string, at time.Time) error

	// DeleteInactiveBefore hard-deletes inactive tokens not used since the
	// cutoff. Maintenance only. Returns the number of deleted records.
	DeleteInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
