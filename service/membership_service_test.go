package service_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookhaven/book-lending-go/lending"
	"github.com/bookhaven/book-lending-go/service"
)

func givenMembershipService(t *testing.T) (*service.MembershipService, *service.LendingService, *service.CatalogService) {
	t.Helper()

	store := givenStore(t)
	hasher := service.NewBcryptHasher(4) // MinCost keeps the tests fast

	return service.NewMembershipService(store, hasher, fixedClock),
		service.NewLendingService(store, fixedClock),
		service.NewCatalogService(store, fixedClock)
}

func Test_MembershipService_Register_CreatesMember(t *testing.T) {
	// arrange
	ctx := context.Background()
	membership, _, _ := givenMembershipService(t)

	// act
	user, err := membership.Register(ctx, "Ada Lovelace", "ada@example.com", "s3cret!")

	// assert
	require.NoError(t, err)
	assert.Equal(t, lending.RoleMember, user.Role)
	assert.NotEqual(t, "s3cret!", user.PasswordHash)
	assert.Equal(t, fixedClock(), user.CreatedAt)
}

func Test_MembershipService_Register_Fails_WhenEmailTaken(t *testing.T) {
	// arrange
	ctx := context.Background()
	membership, _, _ := givenMembershipService(t)

	_, err := membership.Register(ctx, "Ada", "ada@example.com", "s3cret!")
	require.NoError(t, err)

	// act
	_, err = membership.Register(ctx, "Imposter", "ada@example.com", "other-pass")

	// assert
	assert.ErrorIs(t, err, lending.ErrEmailTaken)
}

func Test_MembershipService_Authenticate_ReturnsUser_WithCorrectCredentials(t *testing.T) {
	// arrange
	ctx := context.Background()
	membership, _, _ := givenMembershipService(t)

	registered, err := membership.Register(ctx, "Ada", "ada@example.com", "s3cret!")
	require.NoError(t, err)

	// act
	user, err := membership.Authenticate(ctx, "ada@example.com", "s3cret!")

	// assert
	require.NoError(t, err)
	assert.Equal(t, registered.ID, user.ID)
}

func Test_MembershipService_Authenticate_Fails_WithWrongPassword(t *testing.T) {
	// arrange
	ctx := context.Background()
	membership, _, _ := givenMembershipService(t)

	_, err := membership.Register(ctx, "Ada", "ada@example.com", "s3cret!")
	require.NoError(t, err)

	// act
	_, err = membership.Authenticate(ctx, "ada@example.com", "wrong")

	// assert
	assert.ErrorIs(t, err, lending.ErrInvalidCredentials)
}

func Test_MembershipService_Authenticate_Fails_WithUnknownEmail(t *testing.T) {
	// arrange
	ctx := context.Background()
	membership, _, _ := givenMembershipService(t)

	// act: unknown email reads exactly like a wrong password
	_, err := membership.Authenticate(ctx, "nobody@example.com", "whatever")

	// assert
	assert.ErrorIs(t, err, lending.ErrInvalidCredentials)
}

func Test_MembershipService_PromoteUser_ChangesRole(t *testing.T) {
	// arrange
	ctx := context.Background()
	membership, _, _ := givenMembershipService(t)

	registered, err := membership.Register(ctx, "Ada", "ada@example.com", "s3cret!")
	require.NoError(t, err)

	// act
	promoted, err := membership.PromoteUser(ctx, registered.ID, lending.RoleAdmin)

	// assert
	require.NoError(t, err)
	assert.Equal(t, lending.RoleAdmin, promoted.Role)
}

func Test_MembershipService_DeleteUser_Fails_WhileOpenBorrowExists(t *testing.T) {
	// arrange
	ctx := context.Background()
	membership, lendingService, catalog := givenMembershipService(t)

	registered, err := membership.Register(ctx, "Ada", "ada@example.com", "s3cret!")
	require.NoError(t, err)

	book, err := catalog.AddBook(ctx, "SICP", "Abelson and Sussman", "")
	require.NoError(t, err)

	caller := lending.Identity{UserID: registered.ID, Role: registered.Role}
	borrow, err := lendingService.Borrow(ctx, caller, book.ID)
	require.NoError(t, err)

	// act
	err = membership.DeleteUser(ctx, registered.ID)

	// assert
	assert.ErrorIs(t, err, lending.ErrOpenBorrowConflict)

	// act: after the return, the delete goes through and the closed
	// borrow survives as audit trail
	_, err = lendingService.Return(ctx, caller, borrow.ID)
	require.NoError(t, err)

	err = membership.DeleteUser(ctx, registered.ID)

	// assert
	assert.NoError(t, err)

	_, err = membership.GetUser(ctx, registered.ID)
	assert.ErrorIs(t, err, lending.ErrUserNotFound)
}

func Test_MembershipService_DeleteUser_Fails_WhenUnknown(t *testing.T) {
	// arrange
	ctx := context.Background()
	membership, _, _ := givenMembershipService(t)

	// act
	err := membership.DeleteUser(ctx, uuid.New())

	// assert
	assert.ErrorIs(t, err, lending.ErrUserNotFound)
}
