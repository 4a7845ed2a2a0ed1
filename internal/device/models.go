// Package device provides the push-token registry.
//
// One record per token; a user may hold several tokens (several devices).
// Tokens are soft-deactivated on logout or when the push provider reports them
// permanently invalid, and only hard-deleted by maintenance cleanup.
package device

import (
	"errors"
	"time"

	"github.com/mealdrop/mealdrop/internal/user"
)

// Repository errors.
var (
	ErrTokenNotFound = errors.New("device token not found")
)

// DeviceType represents the kind of device a token belongs to.
type DeviceType string

const (
	DeviceTypeIOS     DeviceType = "ios"
	DeviceTypeAndroid DeviceType = "android"
	DeviceTypeWeb     DeviceType = "web"
)

// Token represents a registered push-notification token.
type Token struct {
	Token      string
	UserID     string
	Role       user.Role
	DeviceType DeviceType
	IsActive   bool
	LastUsedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TokenLast4 returns the last 4 characters of the token for display and logging.
func (t *Token) TokenLast4() string {
	if len(t.Token) < 4 {
		return t.Token
	}
	return t.Token[len(t.Token)-4:]
}
