package lending

// MaxOpenBorrowsPerUser is the concurrent-borrow cap per user.
const MaxOpenBorrowsPerUser = 3

// BorrowState captures everything a borrow decision depends on, projected
// from the store for one specific book and one specific user. The store
// must assemble it and apply the decision within a single serializable
// scope for that book/user pair.
type BorrowState struct {
	BookExists      bool
	BookAvailable   bool
	UserExists      bool
	BorrowedByUser  bool // the user already has an open borrow for this book
	UserOpenBorrows int
}

// DecideBorrow determines whether a borrow may proceed.
// It returns nil when all preconditions hold, otherwise the error kind
// describing the violated rule.
//
// Business rules:
//
//	GIVEN: a book and a user
//	WHEN: the user requests to borrow the book
//	THEN: the borrow is created and the book becomes unavailable
//	ERROR: ErrBookNotFound if the book does not exist
//	ERROR: ErrUserNotFound if the user does not exist
//	ERROR: ErrAlreadyBorrowed if this user already holds this book
//	ERROR: ErrBookUnavailable if the book is lent to someone else
//	ERROR: ErrBorrowLimitExceeded if the user holds MaxOpenBorrowsPerUser books
//
// ErrAlreadyBorrowed is checked before ErrBookUnavailable: an open borrow
// by the same user implies the book is unavailable, so the duplicate-request
// guard would otherwise be unreachable.
func DecideBorrow(s BorrowState) error {
	switch {
	case !s.BookExists:
		return ErrBookNotFound

	case !s.UserExists:
		return ErrUserNotFound

	case s.BorrowedByUser:
		return ErrAlreadyBorrowed

	case !s.BookAvailable:
		return ErrBookUnavailable

	case s.UserOpenBorrows >= MaxOpenBorrowsPerUser:
		return ErrBorrowLimitExceeded
	}

	return nil
}

// ReturnState captures everything a return decision depends on.
type ReturnState struct {
	BorrowExists    bool
	OwnedByCaller   bool // ownership check is waived for admins
	AlreadyReturned bool
}

// DecideReturn determines whether a return may proceed.
// A borrow that exists but is not owned by the caller reads as not found,
// so the error does not leak other users' ledger entries.
func DecideReturn(s ReturnState) error {
	switch {
	case !s.BorrowExists:
		return ErrBorrowNotFound

	case !s.OwnedByCaller:
		return ErrBorrowNotFound

	case s.AlreadyReturned:
		return ErrAlreadyReturned
	}

	return nil
}

// DecideDelete guards deletion of a book or user against open borrows
// that still reference it.
func DecideDelete(openBorrows int) error {
	if openBorrows > 0 {
		return ErrOpenBorrowConflict
	}

	return nil
}
