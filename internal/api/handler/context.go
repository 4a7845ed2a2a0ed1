package handler

import (
	"context"

	"github.com/mealdrop/mealdrop/internal/api/middleware"
	"github.com/mealdrop/mealdrop/internal/user"
)

// GetUserID retrieves the authenticated user ID from the context.
// This is a convenience wrapper around middleware.GetUserID.
func GetUserID(ctx context.Context) string {
	return middleware.GetUserID(ctx)
}

// GetUserRole retrieves the authenticated user's role from the context.
func GetUserRole(ctx context.Context) user.Role {
	return middleware.GetUserRole(ctx)
}
