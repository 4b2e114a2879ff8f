package lending

import (
	"time"

	"github.com/google/uuid"
)

// Borrow links a user to a book over an open or closed time interval.
// A Borrow is open while ReturnedAt is nil. Borrows are never deleted,
// they form the audit trail of the ledger.
type Borrow struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	BookID     uuid.UUID
	BorrowedAt time.Time
	ReturnedAt *time.Time
}

// BuildBorrow creates a new open Borrow.
func BuildBorrow(id uuid.UUID, userID uuid.UUID, bookID uuid.UUID, borrowedAt time.Time) Borrow {
	return Borrow{
		ID:         id,
		UserID:     userID,
		BookID:     bookID,
		BorrowedAt: borrowedAt,
		ReturnedAt: nil,
	}
}

// IsOpen reports whether the borrow has not been returned yet.
func (b Borrow) IsOpen() bool {
	return b.ReturnedAt == nil
}

// Close marks the borrow as returned at the given time.
// A borrow is closed exactly once; closing a closed borrow fails with
// ErrAlreadyReturned and leaves the original ReturnedAt untouched.
func (b Borrow) Close(at time.Time) (Borrow, error) {
	if b.ReturnedAt != nil {
		return b, ErrAlreadyReturned
	}

	b.ReturnedAt = &at

	return b, nil
}

// BorrowedBook pairs an open Borrow with the Book it references.
type BorrowedBook struct {
	Borrow Borrow
	Book   Book
}
