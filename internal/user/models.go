// Package user provides user and role lookup for the notification core.
package user

import (
	"errors"
	"time"
)

// Repository errors.
var (
	ErrUserNotFound = errors.New("user not found")
)

// Role represents a user's role in the platform.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAgent    Role = "agent"
	RoleAdmin    Role = "admin"
)

// Valid reports whether the role is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleAgent, RoleAdmin:
		return true
	}
	return false
}

// User represents a platform user as the notification core sees it.
type User struct {
	ID        string
	Name      string
	Role      Role
	CreatedAt time.Time
	UpdatedAt time.Time
}
