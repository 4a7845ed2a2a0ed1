package user

import "context"

// Service provides user lookup operations.
type Service struct {
	repo Repository
}

// NewService creates a new user service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Get retrieves a user by ID.
func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	return s.repo.Get(ctx, id)
}

// GetRole retrieves the role for a user.
func (s *Service) GetRole(ctx context.Context, id string) (Role, error) {
	u, err := s.repo.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return u.Role, nil
}

// ListByRole retrieves all users with the given role.
func (s *Service) ListByRole(ctx context.Context, role Role) ([]*User, error) {
	return s.repo.ListByRole(ctx, role)
}
