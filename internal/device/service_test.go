package device_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mealdrop/mealdrop/internal/device"
	"github.com/mealdrop/mealdrop/internal/user"
)

func newTestService() (*device.Service, *device.InMemoryRepository) {
	repo := device.NewInMemoryRepository()
	return device.NewService(repo, zerolog.Nop()), repo
}

func TestService_Register(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	tok, created, err := svc.Register(ctx, "usr_1", user.RoleCustomer, device.RegisterInput{
		Token:      "ExponentPushToken[abc123]",
		DeviceType: device.DeviceTypeIOS,
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, tok.IsActive)
	assert.Equal(t, user.RoleCustomer, tok.Role)

	// Re-registering the same token updates rather than creates.
	_, created, err = svc.Register(ctx, "usr_1", user.RoleCustomer, device.RegisterInput{
		Token:      "ExponentPushToken[abc123]",
		DeviceType: device.DeviceTypeIOS,
	})
	require.NoError(t, err)
	assert.False(t, created)
}

func TestService_Register_EmptyToken(t *testing.T) {
	svc, _ := newTestService()

	_, _, err := svc.Register(context.Background(), "usr_1", user.RoleCustomer, device.RegisterInput{})
	assert.Error(t, err)
}

func TestService_Register_ReactivatesToken(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, _, err := svc.Register(ctx, "usr_1", user.RoleCustomer, device.RegisterInput{Token: "tok-1"})
	require.NoError(t, err)
	require.NoError(t, svc.Unregister(ctx, "usr_1", "tok-1"))

	tokens, err := svc.ListActiveByUsers(ctx, []string{"usr_1"})
	require.NoError(t, err)
	assert.Empty(t, tokens)

	_, _, err = svc.Register(ctx, "usr_1", user.RoleCustomer, device.RegisterInput{Token: "tok-1"})
	require.NoError(t, err)

	tokens, err = svc.ListActiveByUsers(ctx, []string{"usr_1"})
	require.NoError(t, err)
	assert.Len(t, tokens, 1)
}

func TestService_Unregister_WrongOwner(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, _, err := svc.Register(ctx, "usr_1", user.RoleCustomer, device.RegisterInput{Token: "tok-1"})
	require.NoError(t, err)

	err = svc.Unregister(ctx, "usr_2", "tok-1")
	assert.ErrorIs(t, err, device.ErrNotTokenOwner)
}

func TestService_GetOwned(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, _, err := svc.Register(ctx, "usr_1", user.RoleCustomer, device.RegisterInput{
		Token:      "ExponentPushToken[owned]",
		DeviceType: device.DeviceTypeIOS,
	})
	require.NoError(t, err)

	tok, err := svc.GetOwned(ctx, "usr_1", "ExponentPushToken[owned]")
	require.NoError(t, err)
	assert.Equal(t, "usr_1", tok.UserID)

	_, err = svc.GetOwned(ctx, "usr_2", "ExponentPushToken[owned]")
	assert.ErrorIs(t, err, device.ErrNotTokenOwner)

	_, err = svc.GetOwned(ctx, "usr_1", "ExponentPushToken[missing]")
	assert.ErrorIs(t, err, device.ErrTokenNotFound)
}

func TestService_ListActiveByRole_ExcludesDeactivated(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, _, err := svc.Register(ctx, "admin_1", user.RoleAdmin, device.RegisterInput{Token: "tok-a"})
	require.NoError(t, err)
	_, _, err = svc.Register(ctx, "admin_2", user.RoleAdmin, device.RegisterInput{Token: "tok-b"})
	require.NoError(t, err)

	require.NoError(t, svc.Deactivate(ctx, "tok-b"))

	tokens, err := svc.ListActiveByRole(ctx, user.RoleAdmin)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, "tok-a", tokens[0].Token)
}

func TestService_Deactivate_UnknownTokenIsNoop(t *testing.T) {
	svc, _ := newTestService()

	err := svc.Deactivate(context.Background(), "never-registered")
	assert.NoError(t, err)
}

func TestService_CleanupInactive(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	old := time.Now().Add(-60 * 24 * time.Hour)
	_, err := repo.Upsert(ctx, &device.Token{
		Token:     "stale",
		UserID:    "usr_1",
		Role:      user.RoleCustomer,
		IsActive:  false,
		CreatedAt: old,
		UpdatedAt: old,
	})
	require.NoError(t, err)

	_, _, err = svc.Register(ctx, "usr_1", user.RoleCustomer, device.RegisterInput{Token: "fresh"})
	require.NoError(t, err)

	deleted, err := svc.CleanupInactive(ctx, 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	// The active token survives.
	tokens, err := svc.ListActiveByUsers(ctx, []string{"usr_1"})
	require.NoError(t, err)
	assert.Len(t, tokens, 1)
}
