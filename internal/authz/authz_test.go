package authz

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRoleReader struct {
	mock.Mock
}

func (m *mockRoleReader) UserRole(ctx context.Context, userID uuid.UUID) (string, error) {
	args := m.Called(ctx, userID)
	return args.String(0), args.Error(1)
}

func TestAuthorizeAdminAllowed(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	roles := new(mockRoleReader)
	roles.On("UserRole", ctx, userID).Return("admin", nil)

	decision, err := NewService(roles).Authorize(ctx, userID)

	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, "admin", decision.Role)
}

func TestAuthorizeNonAdminDenied(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	roles := new(mockRoleReader)
	roles.On("UserRole", ctx, userID).Return("seller", nil)

	decision, err := NewService(roles).Authorize(ctx, userID)

	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, "seller", decision.Role)
}

func TestAuthorizeUnknownUserDenied(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	roles := new(mockRoleReader)
	roles.On("UserRole", ctx, userID).Return("", pgx.ErrNoRows)

	decision, err := NewService(roles).Authorize(ctx, userID)

	require.NoError(t, err)
	assert.False(t, decision.Allowed)
}

func TestAuthorizeNilUserDeniedWithoutLookup(t *testing.T) {
	roles := new(mockRoleReader)

	decision, err := NewService(roles).Authorize(context.Background(), uuid.Nil)

	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	roles.AssertNotCalled(t, "UserRole", mock.Anything, mock.Anything)
}

func TestAuthorizeLookupErrorPropagates(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	roles := new(mockRoleReader)
	roles.On("UserRole", ctx, userID).Return("", errors.New("connection reset"))

	decision, err := NewService(roles).Authorize(ctx, userID)

	require.Error(t, err)
	assert.False(t, decision.Allowed)
}
