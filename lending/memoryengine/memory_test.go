package memoryengine_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookhaven/book-lending-go/lending"
	"github.com/bookhaven/book-lending-go/lending/memoryengine"
	"github.com/bookhaven/book-lending-go/service"
)

// The store must be usable wherever the Postgres engine is.
var (
	_ service.LendingStore    = (*memoryengine.Store)(nil)
	_ service.CatalogStore    = (*memoryengine.Store)(nil)
	_ service.MembershipStore = (*memoryengine.Store)(nil)
)

func Test_Store_InsertUser_TreatsEmailCaseInsensitively(t *testing.T) {
	// arrange
	ctx := context.Background()
	store := memoryengine.NewStore()
	now := time.Now().UTC()

	require.NoError(t, store.InsertUser(ctx, lending.BuildUser(uuid.New(), "Ada", "Ada@Example.com", "hash", now)))

	// act
	err := store.InsertUser(ctx, lending.BuildUser(uuid.New(), "Imposter", "ada@example.com", "hash", now))

	// assert
	assert.ErrorIs(t, err, lending.ErrEmailTaken)

	found, lookupErr := store.GetUserByEmail(ctx, "ADA@EXAMPLE.COM")
	require.NoError(t, lookupErr)
	assert.Equal(t, "Ada", found.Name)
}

func Test_Store_ReturnBook_LeavesClosedBorrowUntouched(t *testing.T) {
	// arrange
	ctx := context.Background()
	store := memoryengine.NewStore()
	now := time.Now().UTC()

	user := lending.BuildUser(uuid.New(), "Reader", "reader@example.com", "hash", now)
	require.NoError(t, store.InsertUser(ctx, user))

	book := lending.BuildBook(uuid.New(), "Round Trip", "Author", "", now)
	require.NoError(t, store.InsertBook(ctx, book))

	borrow, err := store.BorrowBook(ctx, uuid.New(), user.ID, book.ID, now)
	require.NoError(t, err)

	firstReturn := now.Add(time.Hour)
	closed, err := store.ReturnBook(ctx, borrow.ID, user.ID, true, firstReturn)
	require.NoError(t, err)
	require.NotNil(t, closed.ReturnedAt)

	// act: a later second return must not move ReturnedAt
	_, err = store.ReturnBook(ctx, borrow.ID, user.ID, true, now.Add(2*time.Hour))

	// assert
	assert.ErrorIs(t, err, lending.ErrAlreadyReturned)
}
