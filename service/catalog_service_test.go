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

func Test_CatalogService_AddBook_StartsAvailable(t *testing.T) {
	// arrange
	ctx := context.Background()
	store := givenStore(t)
	catalog := service.NewCatalogService(store, fixedClock)

	// act
	book, err := catalog.AddBook(ctx, "The Pragmatic Programmer", "Hunt and Thomas", "20th anniversary edition")

	// assert
	require.NoError(t, err)
	assert.True(t, book.Available)
	assert.Equal(t, fixedClock(), book.CreatedAt)

	stored, getErr := catalog.GetBook(ctx, book.ID)
	require.NoError(t, getErr)
	assert.Equal(t, book, stored)
}

func Test_CatalogService_UpdateBook_NeverTouchesAvailability(t *testing.T) {
	// arrange
	ctx := context.Background()
	store := givenStore(t)
	member := givenMember(t, store)
	catalog := service.NewCatalogService(store, fixedClock)
	lendingService := service.NewLendingService(store, fixedClock)

	book, err := catalog.AddBook(ctx, "Tpyo Hunter", "Anonymous", "")
	require.NoError(t, err)

	_, err = lendingService.Borrow(ctx, member, book.ID)
	require.NoError(t, err)

	// act: fixing the title while the book is lent out
	updated, err := catalog.UpdateBook(ctx, book.ID, "Typo Hunter", "Anonymous", "")

	// assert
	require.NoError(t, err)
	assert.Equal(t, "Typo Hunter", updated.Title)
	assert.False(t, updated.Available)
}

func Test_CatalogService_UpdateBook_Fails_WhenUnknown(t *testing.T) {
	// arrange
	ctx := context.Background()
	catalog := service.NewCatalogService(givenStore(t), fixedClock)

	// act
	_, err := catalog.UpdateBook(ctx, uuid.New(), "Ghost", "Nobody", "")

	// assert
	assert.ErrorIs(t, err, lending.ErrBookNotFound)
}

func Test_CatalogService_DeleteBook_Fails_WhileOpenBorrowExists(t *testing.T) {
	// arrange
	ctx := context.Background()
	store := givenStore(t)
	member := givenMember(t, store)
	catalog := service.NewCatalogService(store, fixedClock)
	lendingService := service.NewLendingService(store, fixedClock)

	book, err := catalog.AddBook(ctx, "Hard To Let Go", "Keeper", "")
	require.NoError(t, err)

	borrow, err := lendingService.Borrow(ctx, member, book.ID)
	require.NoError(t, err)

	// act
	err = catalog.DeleteBook(ctx, book.ID)

	// assert
	assert.ErrorIs(t, err, lending.ErrOpenBorrowConflict)

	// act: once returned, the delete goes through
	_, err = lendingService.Return(ctx, member, borrow.ID)
	require.NoError(t, err)

	err = catalog.DeleteBook(ctx, book.ID)

	// assert
	assert.NoError(t, err)

	_, err = catalog.GetBook(ctx, book.ID)
	assert.ErrorIs(t, err, lending.ErrBookNotFound)
}

func Test_CatalogService_ListBooks_AppliesFilters(t *testing.T) {
	// arrange
	ctx := context.Background()
	store := givenStore(t)
	member := givenMember(t, store)
	catalog := service.NewCatalogService(store, fixedClock)
	lendingService := service.NewLendingService(store, fixedClock)

	golang, err := catalog.AddBook(ctx, "The Go Programming Language", "Donovan and Kernighan", "")
	require.NoError(t, err)

	_, err = catalog.AddBook(ctx, "The C Programming Language", "Kernighan and Ritchie", "")
	require.NoError(t, err)

	lisp, err := catalog.AddBook(ctx, "Practical Common Lisp", "Seibel", "")
	require.NoError(t, err)

	_, err = lendingService.Borrow(ctx, member, lisp.ID)
	require.NoError(t, err)

	// act + assert: title substring, case-insensitive
	byTitle, err := catalog.ListBooks(ctx, lending.BookFilter{Title: "go programming"})
	require.NoError(t, err)
	require.Len(t, byTitle, 1)
	assert.Equal(t, golang.ID, byTitle[0].ID)

	// act + assert: author substring
	byAuthor, err := catalog.ListBooks(ctx, lending.BookFilter{Author: "kernighan"})
	require.NoError(t, err)
	assert.Len(t, byAuthor, 2)

	// act + assert: availability filter hides the lent-out book
	available, err := catalog.ListBooks(ctx, lending.BookFilter{AvailableOnly: true})
	require.NoError(t, err)
	assert.Len(t, available, 2)

	for _, book := range available {
		assert.NotEqual(t, lisp.ID, book.ID)
	}
}
