package lending

import "errors"

var (
	// ErrBookNotFound is returned when a referenced book does not exist.
	ErrBookNotFound = errors.New("book not found")

	// ErrBorrowNotFound is returned when a referenced borrow does not exist
	// or is not visible to the requesting user.
	ErrBorrowNotFound = errors.New("borrow not found")

	// ErrUserNotFound is returned when a referenced user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrBookUnavailable is returned when the book is currently lent out.
	ErrBookUnavailable = errors.New("book is not available")

	// ErrAlreadyBorrowed is returned when the requesting user already has
	// an open borrow for this exact book.
	ErrAlreadyBorrowed = errors.New("book is already borrowed by this user")

	// ErrBorrowLimitExceeded is returned when the user is at the
	// concurrent-borrow cap.
	ErrBorrowLimitExceeded = errors.New("user has reached the borrow limit")

	// ErrAlreadyReturned is returned when a return is requested on a
	// closed borrow.
	ErrAlreadyReturned = errors.New("borrow is already returned")

	// ErrOpenBorrowConflict is returned when a delete is requested against
	// a book or user that an open borrow still references.
	ErrOpenBorrowConflict = errors.New("entity is referenced by an open borrow")

	// ErrEmailTaken is returned when registering with an email that
	// already belongs to a user.
	ErrEmailTaken = errors.New("email is already registered")

	// ErrInvalidCredentials is returned when authentication fails.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrStoreUnavailable is returned when the underlying store failed or
	// timed out. The cause is joined onto it, callers branch with errors.Is.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// IsBusinessError reports whether err is one of the terminal business-rule
// errors, as opposed to a transient store failure.
func IsBusinessError(err error) bool {
	for _, kind := range []error{
		ErrBookNotFound,
		ErrBorrowNotFound,
		ErrUserNotFound,
		ErrBookUnavailable,
		ErrAlreadyBorrowed,
		ErrBorrowLimitExceeded,
		ErrAlreadyReturned,
		ErrOpenBorrowConflict,
		ErrEmailTaken,
		ErrInvalidCredentials,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}

	return false
}
