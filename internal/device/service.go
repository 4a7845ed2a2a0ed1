package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mealdrop/mealdrop/internal/user"
)

// Service errors.
var (
	ErrNotTokenOwner = errors.New("token belongs to another user")
)

// RegisterInput holds the fields a client submits when registering a token.
type RegisterInput struct {
	Token      string
	DeviceType DeviceType
}

// Service provides device-token operations.
type Service struct {
	repo   Repository
	logger zerolog.Logger
}

// NewService creates a new device-token service.
func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Register upserts a token for the given user, reactivating it if it was
// previously deactivated. The role is stored alongside the token so role-wide
// push dispatch does not need a user lookup per token.
func (s *Service) Register(ctx context.Context, userID string, role user.Role, input RegisterInput) (*Token, bool, error) {
	if input.Token == "" {
		return nil, false, fmt.Errorf("token is required")
	}

	now := time.Now()
	t := &Token{
		Token:      input.Token,
		UserID:     userID,
		Role:       role,
		DeviceType: input.DeviceType,
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	created, err := s.repo.Upsert(ctx, t)
	if err != nil {
		return nil, false, err
	}

	s.logger.Debug().
		Str("user_id", userID).
		Str("role", string(role)).
		Str("token_last4", t.TokenLast4()).
		Bool("created", created).
		Msg("device token registered")

	return t, created, nil
}

// Unregister deactivates a token on explicit logout. The record is kept so
// maintenance cleanup can account for it; it is never hard-deleted here.
func (s *Service) Unregister(ctx context.Context, userID, token string) error {
	t, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		return err
	}

	if t.UserID != userID {
		return ErrNotTokenOwner
	}

	return s.repo.SetActive(ctx, token, false)
}

// GetOwned retrieves a token after verifying it belongs to the given user.
func (s *Service) GetOwned(ctx context.Context, userID, token string) (*Token, error) {
	t, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if t.UserID != userID {
		return nil, ErrNotTokenOwner
	}
	return t, nil
}

// ListActiveByUsers retrieves active tokens for the given users.
func (s *Service) ListActiveByUsers(ctx context.Context, userIDs []string) ([]*Token, error) {
	return s.repo.ListActiveByUsers(ctx, userIDs)
}

// ListActiveByRole retrieves active tokens whose stored role matches.
func (s *Service) ListActiveByRole(ctx context.Context, role user.Role) ([]*Token, error) {
	return s.repo.ListActiveByRole(ctx, role)
}

// Deactivate marks a token inactive. Outside explicit logout, this is called
// only by the push dispatcher when the provider reports the token permanently
// invalid (device uninstalled or token revoked).
func (s *Service) Deactivate(ctx context.Context, token string) error {
	err := s.repo.SetActive(ctx, token, false)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return nil
		}
		return err
	}

	s.logger.Info().
		Str("token_last4", last4(token)).
		Msg("device token deactivated")
	return nil
}

// Touch bumps lastUsedAt for tokens that just received a delivery.
func (s *Service) Touch(ctx context.Context, tokens []string) {
	if len(tokens) == 0 {
		return
	}
	if err := s.repo.TouchLastUsed(ctx, tokens, time.Now()); err != nil {
		s.logger.Warn().Err(err).Int("count", len(tokens)).Msg("failed to touch device tokens")
	}
}

// CleanupInactive hard-deletes inactive tokens older than the given age.
// Invoked from the maintenance worker only.
func (s *Service) CleanupInactive(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	deleted, err := s.repo.DeleteInactiveBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	if deleted > 0 {
		s.logger.Info().
			Int64("deleted", deleted).
			Time("cutoff", cutoff).
			Msg("cleaned up inactive device tokens")
	}
	return deleted, nil
}

func last4(token string) string {
	if len(token) < 4 {
		return token
	}
	return token[len(token)-4:]
}
