package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/bookhaven/book-lending-go/lending"
)

// LendingService handles borrowing and returning books.
type LendingService struct {
	store LendingStore
	clock Clock
}

// NewLendingService creates a LendingService. A nil clock defaults to
// time.Now.
func NewLendingService(store LendingStore, clock Clock) *LendingService {
	if clock == nil {
		clock = time.Now
	}

	return &LendingService{store: store, clock: clock}
}

// Borrow lends the book to the caller. The store runs the full
// check-then-act sequence atomically; this layer only supplies the
// borrow ID and timestamp.
func (s *LendingService) Borrow(ctx context.Context, caller lending.Identity, bookID uuid.UUID) (lending.Borrow, error) {
	return s.store.BorrowBook(ctx, uuid.New(), caller.UserID, bookID, s.clock().UTC())
}

// Return closes the borrow. Members may only return their own borrows;
// admins may return any borrow, which covers walk-up returns handled at
// the desk.
func (s *LendingService) Return(ctx context.Context, caller lending.Identity, borrowID uuid.UUID) (lending.Borrow, error) {
	requireOwnership := !caller.IsAdmin()

	return s.store.ReturnBook(ctx, borrowID, caller.UserID, requireOwnership, s.clock().UTC())
}

// ListActiveBorrows returns the user's open borrows with their books.
// Whether the caller may read another user's borrows is decided at the
// HTTP boundary. The read retries on transient store failures.
func (s *LendingService) ListActiveBorrows(ctx context.Context, userID uuid.UUID) ([]lending.BorrowedBook, error) {
	var borrowed []lending.BorrowedBook

	err := RetryOnStoreUnavailable(ctx, func(ctx context.Context) error {
		var readErr error
		borrowed, readErr = s.store.ActiveBorrowsForUser(ctx, userID)

		return readErr
	})
	if err != nil {
		return nil, err
	}

	return borrowed, nil
}
