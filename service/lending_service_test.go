package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookhaven/book-lending-go/lending"
	"github.com/bookhaven/book-lending-go/lending/memoryengine"
	"github.com/bookhaven/book-lending-go/service"
)

var fixedClock = func() time.Time {
	return time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
}

func givenStore(t *testing.T) *memoryengine.Store {
	t.Helper()
	return memoryengine.NewStore()
}

func givenMember(t *testing.T, store *memoryengine.Store) lending.Identity {
	t.Helper()

	user := lending.BuildUser(uuid.New(), "Reader", uuid.NewString()+"@example.com", "hash", fixedClock())
	require.NoError(t, store.InsertUser(context.Background(), user))

	return lending.Identity{UserID: user.ID, Role: lending.RoleMember}
}

func givenAdmin(t *testing.T, store *memoryengine.Store) lending.Identity {
	t.Helper()

	user := lending.BuildUser(uuid.New(), "Librarian", uuid.NewString()+"@example.com", "hash", fixedClock())
	require.NoError(t, store.InsertUser(context.Background(), user))
	require.NoError(t, store.UpdateUserRole(context.Background(), user.ID, lending.RoleAdmin))

	return lending.Identity{UserID: user.ID, Role: lending.RoleAdmin}
}

func givenBook(t *testing.T, store *memoryengine.Store, title string) lending.Book {
	t.Helper()

	book := lending.BuildBook(uuid.New(), title, "Author", "", fixedClock())
	require.NoError(t, store.InsertBook(context.Background(), book))

	return book
}

func Test_LendingService_Borrow_CreatesOpenBorrow_AndFlipsAvailability(t *testing.T) {
	// arrange
	ctx := context.Background()
	store := givenStore(t)
	member := givenMember(t, store)
	book := givenBook(t, store, "The Go Programming Language")
	lendingService := service.NewLendingService(store, fixedClock)

	// act
	borrow, err := lendingService.Borrow(ctx, member, book.ID)

	// assert
	require.NoError(t, err)
	assert.Equal(t, member.UserID, borrow.UserID)
	assert.Equal(t, book.ID, borrow.BookID)
	assert.Equal(t, fixedClock(), borrow.BorrowedAt)
	assert.True(t, borrow.IsOpen())

	stored, getErr := store.GetBook(ctx, book.ID)
	require.NoError(t, getErr)
	assert.False(t, stored.Available)
}

func Test_LendingService_Borrow_Fails_WhenBookUnavailable(t *testing.T) {
	// arrange
	ctx := context.Background()
	store := givenStore(t)
	first := givenMember(t, store)
	second := givenMember(t, store)
	book := givenBook(t, store, "Clean Architecture")
	lendingService := service.NewLendingService(store, fixedClock)

	_, err := lendingService.Borrow(ctx, first, book.ID)
	require.NoError(t, err)

	// act
	_, err = lendingService.Borrow(ctx, second, book.ID)

	// assert
	assert.ErrorIs(t, err, lending.ErrBookUnavailable)
}

func Test_LendingService_Borrow_Fails_WhenSameUserBorrowsTwice(t *testing.T) {
	// arrange
	ctx := context.Background()
	store := givenStore(t)
	member := givenMember(t, store)
	book := givenBook(t, store, "Domain-Driven Design")
	lendingService := service.NewLendingService(store, fixedClock)

	_, err := lendingService.Borrow(ctx, member, book.ID)
	require.NoError(t, err)

	// act: the idempotency guard must win over the availability check
	_, err = lendingService.Borrow(ctx, member, book.ID)

	// assert
	assert.ErrorIs(t, err, lending.ErrAlreadyBorrowed)
}

func Test_LendingService_Borrow_Fails_WhenUserAtLimit(t *testing.T) {
	// arrange
	ctx := context.Background()
	store := givenStore(t)
	member := givenMember(t, store)
	lendingService := service.NewLendingService(store, fixedClock)

	for i := 0; i < lending.MaxOpenBorrowsPerUser; i++ {
		book := givenBook(t, store, "Volume")
		_, err := lendingService.Borrow(ctx, member, book.ID)
		require.NoError(t, err)
	}

	extra := givenBook(t, store, "One Too Many")

	// act
	_, err := lendingService.Borrow(ctx, member, extra.ID)

	// assert
	assert.ErrorIs(t, err, lending.ErrBorrowLimitExceeded)
}

func Test_LendingService_Borrow_SucceedsAgain_AfterReturn(t *testing.T) {
	// arrange
	ctx := context.Background()
	store := givenStore(t)
	member := givenMember(t, store)
	lendingService := service.NewLendingService(store, fixedClock)

	books := make([]lending.Book, 0, lending.MaxOpenBorrowsPerUser)
	borrows := make([]lending.Borrow, 0, lending.MaxOpenBorrowsPerUser)

	for i := 0; i < lending.MaxOpenBorrowsPerUser; i++ {
		book := givenBook(t, store, "Volume")
		borrow, err := lendingService.Borrow(ctx, member, book.ID)
		require.NoError(t, err)
		books = append(books, book)
		borrows = append(borrows, borrow)
	}

	_, returnErr := lendingService.Return(ctx, member, borrows[0].ID)
	require.NoError(t, returnErr)

	extra := givenBook(t, store, "Back Under The Limit")

	// act
	_, err := lendingService.Borrow(ctx, member, extra.ID)

	// assert: the returned book is borrowable again too
	assert.NoError(t, err)

	_, err = lendingService.Borrow(ctx, givenMember(t, store), books[0].ID)
	assert.NoError(t, err)
}

func Test_LendingService_Borrow_Fails_WhenBookUnknown(t *testing.T) {
	// arrange
	ctx := context.Background()
	store := givenStore(t)
	member := givenMember(t, store)
	lendingService := service.NewLendingService(store, fixedClock)

	// act
	_, err := lendingService.Borrow(ctx, member, uuid.New())

	// assert
	assert.ErrorIs(t, err, lending.ErrBookNotFound)
}

func Test_LendingService_Return_ClosesBorrow_AndRestoresAvailability(t *testing.T) {
	// arrange
	ctx := context.Background()
	store := givenStore(t)
	member := givenMember(t, store)
	book := givenBook(t, store, "Working Effectively with Legacy Code")
	lendingService := service.NewLendingService(store, fixedClock)

	borrow, err := lendingService.Borrow(ctx, member, book.ID)
	require.NoError(t, err)

	// act
	closed, err := lendingService.Return(ctx, member, borrow.ID)

	// assert
	require.NoError(t, err)
	assert.False(t, closed.IsOpen())

	stored, getErr := store.GetBook(ctx, book.ID)
	require.NoError(t, getErr)
	assert.True(t, stored.Available)
}

func Test_LendingService_Return_Fails_WhenAlreadyReturned(t *testing.T) {
	// arrange
	ctx := context.Background()
	store := givenStore(t)
	member := givenMember(t, store)
	book := givenBook(t, store, "Refactoring")
	lendingService := service.NewLendingService(store, fixedClock)

	borrow, err := lendingService.Borrow(ctx, member, book.ID)
	require.NoError(t, err)

	_, err = lendingService.Return(ctx, member, borrow.ID)
	require.NoError(t, err)

	// act
	_, err = lendingService.Return(ctx, member, borrow.ID)

	// assert
	assert.ErrorIs(t, err, lending.ErrAlreadyReturned)
}

func Test_LendingService_Return_ReadsAsNotFound_ForForeignBorrow(t *testing.T) {
	// arrange
	ctx := context.Background()
	store := givenStore(t)
	owner := givenMember(t, store)
	other := givenMember(t, store)
	book := givenBook(t, store, "A Philosophy of Software Design")
	lendingService := service.NewLendingService(store, fixedClock)

	borrow, err := lendingService.Borrow(ctx, owner, book.ID)
	require.NoError(t, err)

	// act
	_, err = lendingService.Return(ctx, other, borrow.ID)

	// assert
	assert.ErrorIs(t, err, lending.ErrBorrowNotFound)
}

func Test_LendingService_Return_Succeeds_ForAdminOnForeignBorrow(t *testing.T) {
	// arrange
	ctx := context.Background()
	store := givenStore(t)
	owner := givenMember(t, store)
	admin := givenAdmin(t, store)
	book := givenBook(t, store, "The Mythical Man-Month")
	lendingService := service.NewLendingService(store, fixedClock)

	borrow, err := lendingService.Borrow(ctx, owner, book.ID)
	require.NoError(t, err)

	// act: a walk-up return handled at the desk
	closed, err := lendingService.Return(ctx, admin, borrow.ID)

	// assert
	require.NoError(t, err)
	assert.False(t, closed.IsOpen())
}

func Test_LendingService_ListActiveBorrows_ReturnsOnlyOpenBorrowsWithBooks(t *testing.T) {
	// arrange
	ctx := context.Background()
	store := givenStore(t)
	member := givenMember(t, store)
	kept := givenBook(t, store, "Kept")
	returned := givenBook(t, store, "Returned")
	lendingService := service.NewLendingService(store, fixedClock)

	_, err := lendingService.Borrow(ctx, member, kept.ID)
	require.NoError(t, err)

	borrow, err := lendingService.Borrow(ctx, member, returned.ID)
	require.NoError(t, err)

	_, err = lendingService.Return(ctx, member, borrow.ID)
	require.NoError(t, err)

	// act
	borrowed, err := lendingService.ListActiveBorrows(ctx, member.UserID)

	// assert
	require.NoError(t, err)
	require.Len(t, borrowed, 1)
	assert.Equal(t, kept.ID, borrowed[0].Book.ID)
	assert.True(t, borrowed[0].Borrow.IsOpen())
}

func Test_LendingService_Borrow_ExactlyOneWinner_UnderContention(t *testing.T) {
	// arrange
	ctx := context.Background()
	store := givenStore(t)
	book := givenBook(t, store, "The Contested Volume")
	lendingService := service.NewLendingService(store, fixedClock)

	const contenders = 16

	members := make([]lending.Identity, contenders)
	for i := range members {
		members[i] = givenMember(t, store)
	}

	// act: all members race to borrow the same book
	var wg sync.WaitGroup
	results := make([]error, contenders)

	for i := 0; i < contenders; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()
			_, results[i] = lendingService.Borrow(ctx, members[i], book.ID)
		}(i)
	}

	wg.Wait()

	// assert: exactly one success, everyone else rejected by a rule
	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
		} else {
			assert.True(t, lending.IsBusinessError(err), "unexpected error kind: %v", err)
		}
	}

	assert.Equal(t, 1, successes)

	stored, getErr := store.GetBook(ctx, book.ID)
	require.NoError(t, getErr)
	assert.False(t, stored.Available)
}

func Test_LendingService_Borrow_NeverExceedsLimit_UnderContention(t *testing.T) {
	// arrange
	ctx := context.Background()
	store := givenStore(t)
	member := givenMember(t, store)
	lendingService := service.NewLendingService(store, fixedClock)

	const bookCount = 10

	books := make([]lending.Book, bookCount)
	for i := range books {
		books[i] = givenBook(t, store, "Volume")
	}

	// act: one member races to borrow many different books
	var wg sync.WaitGroup
	results := make([]error, bookCount)

	for i := 0; i < bookCount; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()
			_, results[i] = lendingService.Borrow(ctx, member, books[i].ID)
		}(i)
	}

	wg.Wait()

	// assert: successes never exceed the limit
	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, lending.ErrBorrowLimitExceeded)
		}
	}

	assert.Equal(t, lending.MaxOpenBorrowsPerUser, successes)

	borrowed, listErr := lendingService.ListActiveBorrows(ctx, member.UserID)
	require.NoError(t, listErr)
	assert.Len(t, borrowed, lending.MaxOpenBorrowsPerUser)
}
