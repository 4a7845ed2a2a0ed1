package device

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mealdrop/mealdrop/internal/user"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL device-token repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const tokenColumns = `token, user_id, role, device_type, is_active, last_used_at, created_at, updated_at`

// GetByToken retrieves a token record by token value.
func (r *PostgresRepository) GetByToken(ctx context.Context, token string) (*Token, error) {
	query := `
		SELECT ` + tokenColumns + `
		FROM device_tokens
		WHERE token = $1
	`

	var t Token
	err := r.pool.QueryRow(ctx, query, token).Scan(
		&t.Token,
		&t.UserID,
		&t.Role,
		&t.DeviceType,
		&t.IsActive,
		&t.LastUsedAt,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}

	return &t, nil
}

// Upsert creates or updates a token record keyed by token value.
// Re-registration reassigns the token to the registering user and reactivates it.
func (r *PostgresRepository) Upsert(ctx context.Context, t *Token) (bool, error) {
	query := `
		INSERT INTO device_tokens (token, user_id, role, device_type, is_active, last_used_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (token) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			role = EXCLUDED.role,
			device_type = EXCLUDED.device_type,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at
		RETURNING (xmax = 0) AS inserted
	`

	var inserted bool
	err := r.pool.QueryRow(ctx, query,
		t.Token,
		t.UserID,
		t.Role,
		t.DeviceType,
		t.IsActive,
		t.LastUsedAt,
		t.CreatedAt,
		t.UpdatedAt,
	).Scan(&inserted)

	if err != nil {
		return false, err
	}

	return inserted, nil
}

// ListActiveByUsers retrieves all active tokens for the given user IDs.
func (r *PostgresRepository) ListActiveByUsers(ctx context.Context, userIDs []string) ([]*Token, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT ` + tokenColumns + `
		FROM device_tokens
		WHERE user_id = ANY($1) AND is_active
		ORDER BY created_at
	`

	rows, err := r.pool.Query(ctx, query, userIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTokens(rows)
}

// ListActiveByRole retrieves all active tokens whose stored role matches.
func (r *PostgresRepository) ListActiveByRole(ctx context.Context, role user.Role) ([]*Token, error) {
	query := `
		SELECT ` + tokenColumns + `
		FROM device_tokens
		WHERE role = $1 AND is_active
		ORDER BY created_at
	`

	rows, err := r.pool.Query(ctx, query, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTokens(rows)
}

// SetActive flips the isActive flag for a token.
func (r *PostgresRepository) SetActive(ctx context.Context, token string, active bool) error {
	query := `
		UPDATE device_tokens SET is_active = $2, updated_at = $3
		WHERE token = $1
	`

	result, err := r.pool.Exec(ctx, query, token, active, time.Now())
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return ErrTokenNotFound
	}

	return nil
}

// TouchLastUsed bumps lastUsedAt for the given tokens.
func (r *PostgresRepository) TouchLastUsed(ctx context.Context, tokens []string, at time.Time) error {
	if len(tokens) == 0 {
		return nil
	}

	query := `UPDATE device_tokens SET last_used_at = $2 WHERE token = ANY($1)`
	_, err := r.pool.Exec(ctx, query, tokens, at)
	return err
}

// DeleteInactiveBefore hard-deletes inactive tokens not used since the cutoff.
func (r *PostgresRepository) DeleteInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM device_tokens
		WHERE NOT is_active
		  AND updated_at < $1
		  AND (last_used_at IS NULL OR last_used_at < $1)
	`

	result, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected(), nil
}

func scanTokens(rows pgx.Rows) ([]*Token, error) {
	var tokens []*Token
	for rows.Next() {
		var t Token
		err := rows.Scan(
			&t.Token,
			&t.UserID,
			&t.Role,
			&t.DeviceType,
			&t.IsActive,
			&t.LastUsedAt,
			&t.CreatedAt,
			&t.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return tokens, nil
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
