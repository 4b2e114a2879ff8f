package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/bookhaven/book-lending-go/lending"
)

// Clock supplies the current time. Production wiring uses time.Now;
// tests inject a fixed clock.
type Clock func() time.Time

// LendingStore persists borrows and executes the transactional
// borrow/return sequences.
type LendingStore interface {
	BorrowBook(ctx context.Context, borrowID, userID, bookID uuid.UUID, now time.Time) (lending.Borrow, error)
	ReturnBook(ctx context.Context, borrowID, requestingUserID uuid.UUID, requireOwnership bool, now time.Time) (lending.Borrow, error)
	ActiveBorrowsForUser(ctx context.Context, userID uuid.UUID) ([]lending.BorrowedBook, error)
}

// CatalogStore persists books.
type CatalogStore interface {
	InsertBook(ctx context.Context, book lending.Book) error
	GetBook(ctx context.Context, bookID uuid.UUID) (lending.Book, error)
	ListBooks(ctx context.Context, filter lending.BookFilter) ([]lending.Book, error)
	UpdateBook(ctx context.Context, book lending.Book) error
	DeleteBook(ctx context.Context, bookID uuid.UUID) error
}

// MembershipStore persists users.
type MembershipStore interface {
	InsertUser(ctx context.Context, user lending.User) error
	GetUser(ctx context.Context, userID uuid.UUID) (lending.User, error)
	GetUserByEmail(ctx context.Context, email string) (lending.User, error)
	ListUsers(ctx context.Context, filter lending.UserFilter) ([]lending.User, error)
	UpdateUserRole(ctx context.Context, userID uuid.UUID, role lending.Role) error
	DeleteUser(ctx context.Context, userID uuid.UUID) error
}

// PasswordHasher hashes and verifies user passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(hash string, password string) error
}
