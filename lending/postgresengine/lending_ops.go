package postgresengine

import (
	"context"
	"database/sql"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"

	"github.com/bookhaven/book-lending-go/lending"
	"github.com/bookhaven/book-lending-go/lending/postgresengine/internal/adapters"
)

const (
	opBorrowBook    = "borrow_book"
	opReturnBook    = "return_book"
	opActiveBorrows = "active_borrows"

	logMsgBorrowCompleted = "borrow completed"
	logMsgReturnCompleted = "return completed"
	logMsgBorrowRejected  = "borrow rejected"
	logMsgReturnRejected  = "return rejected"
	logAttrReason         = "reason"
	logAttrBorrowID       = "borrow_id"
	logAttrBookID         = "book_id"
	logAttrUserID         = "user_id"
)

// BorrowBook creates an open borrow for the given user and book and flips
// the book to unavailable, both inside one transaction.
//
// The transaction locks the book row and then the user row (always in that
// order, so concurrent operations cannot deadlock), re-checks every
// precondition under those locks via lending.DecideBorrow, and applies both
// writes. Concurrent borrows of the same book or by the same user serialize
// on the row locks; operations on disjoint books and users run in parallel.
func (s *Store) BorrowBook(
	ctx context.Context,
	borrowID uuid.UUID,
	userID uuid.UUID,
	bookID uuid.UUID,
	now time.Time,
) (lending.Borrow, error) {

	ctx, span := s.startOperationSpan(ctx, opBorrowBook)
	start := time.Now()

	var borrow lending.Borrow

	txErr := s.inTransaction(ctx, func(tx adapters.DBTx) error {
		state, stateErr := s.loadBorrowState(ctx, tx, userID, bookID)
		if stateErr != nil {
			return stateErr
		}

		if decideErr := lending.DecideBorrow(state); decideErr != nil {
			return decideErr
		}

		if insertErr := s.insertBorrow(ctx, tx, borrowID, userID, bookID, now); insertErr != nil {
			return insertErr
		}

		if flipErr := s.flipAvailability(ctx, tx, bookID, false); flipErr != nil {
			return flipErr
		}

		borrow = lending.BuildBorrow(borrowID, userID, bookID, now)

		return nil
	})

	s.observeOperation(opBorrowBook, start, span, outcomeStatus(txErr))

	if txErr != nil {
		if lending.IsBusinessError(txErr) {
			s.logOperation(ctx, logMsgBorrowRejected,
				logAttrBookID, bookID.String(), logAttrUserID, userID.String(), logAttrReason, txErr.Error())
		}

		return lending.Borrow{}, txErr
	}

	s.logOperation(ctx, logMsgBorrowCompleted,
		logAttrBorrowID, borrowID.String(), logAttrBookID, bookID.String(), logAttrUserID, userID.String())

	return borrow, nil
}

// ReturnBook closes the borrow and flips the book back to available, both
// inside one transaction. When requireOwnership is set, a borrow owned by
// another user reads as not found.
func (s *Store) ReturnBook(
	ctx context.Context,
	borrowID uuid.UUID,
	requestingUserID uuid.UUID,
	requireOwnership bool,
	now time.Time,
) (lending.Borrow, error) {

	ctx, span := s.startOperationSpan(ctx, opReturnBook)
	start := time.Now()

	var borrow lending.Borrow

	txErr := s.inTransaction(ctx, func(tx adapters.DBTx) error {
		existing, found, lookupErr := s.lockBorrow(ctx, tx, borrowID)
		if lookupErr != nil {
			return lookupErr
		}

		state := lending.ReturnState{
			BorrowExists:    found,
			OwnedByCaller:   found && (!requireOwnership || existing.UserID == requestingUserID),
			AlreadyReturned: found && !existing.IsOpen(),
		}

		if decideErr := lending.DecideReturn(state); decideErr != nil {
			return decideErr
		}

		closed, closeErr := existing.Close(now)
		if closeErr != nil {
			return closeErr
		}

		if applyErr := s.closeBorrow(ctx, tx, borrowID, now); applyErr != nil {
			return applyErr
		}

		if flipErr := s.flipAvailability(ctx, tx, existing.BookID, true); flipErr != nil {
			return flipErr
		}

		borrow = closed

		return nil
	})

	s.observeOperation(opReturnBook, start, span, outcomeStatus(txErr))

	if txErr != nil {
		if lending.IsBusinessError(txErr) {
			s.logOperation(ctx, logMsgReturnRejected,
				logAttrBorrowID, borrowID.String(), logAttrReason, txErr.Error())
		}

		return lending.Borrow{}, txErr
	}

	s.logOperation(ctx, logMsgReturnCompleted,
		logAttrBorrowID, borrowID.String(), logAttrBookID, borrow.BookID.String(), logAttrUserID, borrow.UserID.String())

	return borrow, nil
}

// ActiveBorrowsForUser returns every open borrow for the user joined with
// its book. The result is eagerly materialized; a fresh call re-queries.
func (s *Store) ActiveBorrowsForUser(ctx context.Context, userID uuid.UUID) ([]lending.BorrowedBook, error) {
	ctx, span := s.startOperationSpan(ctx, opActiveBorrows)
	start := time.Now()

	stmt := builder().
		From(tableBorrows).
		Join(goqu.T(tableBooks), goqu.On(goqu.I(tableBorrows+"."+colBookID).Eq(goqu.I(tableBooks+"."+colID)))).
		Select(
			goqu.I(tableBorrows+"."+colID),
			goqu.I(tableBorrows+"."+colUserID),
			goqu.I(tableBorrows+"."+colBookID),
			goqu.I(tableBorrows+"."+colBorrowedAt),
			goqu.I(tableBooks+"."+colTitle),
			goqu.I(tableBooks+"."+colAuthor),
			goqu.I(tableBooks+"."+colDescription),
			goqu.I(tableBooks+"."+colAvailable),
			goqu.I(tableBooks+"."+colCreatedAt),
		).
		Where(
			goqu.I(tableBorrows+"."+colUserID).Eq(userID.String()),
			goqu.I(tableBorrows+"."+colReturnedAt).IsNull(),
		).
		Order(goqu.I(tableBorrows + "." + colBorrowedAt).Asc())

	sqlQuery, buildErr := s.toSQL(ctx, stmt)
	if buildErr != nil {
		s.observeOperation(opActiveBorrows, start, span, statusError)
		return nil, buildErr
	}

	rows, queryErr := s.executeQuery(ctx, s.db, sqlQuery)
	if queryErr != nil {
		s.observeOperation(opActiveBorrows, start, span, statusError)
		return nil, queryErr
	}
	defer s.closeRows(ctx, rows)

	borrowed := make([]lending.BorrowedBook, 0)

	for rows.Next() {
		var (
			borrowIDStr, userIDStr, bookIDStr string
			borrowedAt                        time.Time
			book                              lending.Book
		)

		scanErr := rows.Scan(
			&borrowIDStr, &userIDStr, &bookIDStr, &borrowedAt,
			&book.Title, &book.Author, &book.Description, &book.Available, &book.CreatedAt,
		)
		if scanErr != nil {
			s.logError(ctx, logMsgScanRowFailed, scanErr)
			s.observeOperation(opActiveBorrows, start, span, statusError)

			return nil, s.storeError(scanErr)
		}

		borrowUUID, userUUID, bookUUID, parseErr := parseIDs(borrowIDStr, userIDStr, bookIDStr)
		if parseErr != nil {
			s.observeOperation(opActiveBorrows, start, span, statusError)
			return nil, s.storeError(parseErr)
		}

		book.ID = bookUUID

		borrowed = append(borrowed, lending.BorrowedBook{
			Borrow: lending.BuildBorrow(borrowUUID, userUUID, bookUUID, borrowedAt),
			Book:   book,
		})
	}

	s.observeOperation(opActiveBorrows, start, span, statusSuccess)

	return borrowed, nil
}

// loadBorrowState assembles the state DecideBorrow needs, locking the book
// row first and the user row second.
func (s *Store) loadBorrowState(
	ctx context.Context,
	tx adapters.DBTx,
	userID uuid.UUID,
	bookID uuid.UUID,
) (lending.BorrowState, error) {

	var state lending.BorrowState

	available, bookFound, bookErr := s.lockBookRow(ctx, tx, bookID)
	if bookErr != nil {
		return state, bookErr
	}

	state.BookExists = bookFound
	state.BookAvailable = available

	if !bookFound {
		return state, nil
	}

	userFound, userErr := s.lockUserRow(ctx, tx, userID)
	if userErr != nil {
		return state, userErr
	}

	state.UserExists = userFound

	if !userFound {
		return state, nil
	}

	openForBook, openErr := s.countOpenBorrows(ctx, tx, goqu.Ex{colUserID: userID.String(), colBookID: bookID.String()})
	if openErr != nil {
		return state, openErr
	}

	state.BorrowedByUser = openForBook > 0

	openForUser, countErr := s.countOpenBorrows(ctx, tx, goqu.Ex{colUserID: userID.String()})
	if countErr != nil {
		return state, countErr
	}

	state.UserOpenBorrows = openForUser

	return state, nil
}

// lockBookRow takes a row lock on the book and returns its availability.
func (s *Store) lockBookRow(ctx context.Context, tx adapters.DBTx, bookID uuid.UUID) (available bool, found bool, err error) {
	stmt := builder().
		From(tableBooks).
		Select(colAvailable).
		Where(goqu.Ex{colID: bookID.String()}).
		ForUpdate(exp.Wait)

	sqlQuery, buildErr := s.toSQL(ctx, stmt)
	if buildErr != nil {
		return false, false, buildErr
	}

	rows, queryErr := s.executeQuery(ctx, tx, sqlQuery)
	if queryErr != nil {
		return false, false, queryErr
	}
	defer s.closeRows(ctx, rows)

	if !rows.Next() {
		return false, false, nil
	}

	if scanErr := rows.Scan(&available); scanErr != nil {
		s.logError(ctx, logMsgScanRowFailed, scanErr)
		return false, false, s.storeError(scanErr)
	}

	return available, true, nil
}

// lockUserRow takes a row lock on the user.
func (s *Store) lockUserRow(ctx context.Context, tx adapters.DBTx, userID uuid.UUID) (found bool, err error) {
	stmt := builder().
		From(tableUsers).
		Select(colID).
		Where(goqu.Ex{colID: userID.String()}).
		ForUpdate(exp.Wait)

	sqlQuery, buildErr := s.toSQL(ctx, stmt)
	if buildErr != nil {
		return false, buildErr
	}

	rows, queryErr := s.executeQuery(ctx, tx, sqlQuery)
	if queryErr != nil {
		return false, queryErr
	}
	defer s.closeRows(ctx, rows)

	return rows.Next(), nil
}

// countOpenBorrows counts open borrows matching the given criteria.
func (s *Store) countOpenBorrows(ctx context.Context, exec queryExecutor, criteria goqu.Ex) (int, error) {
	stmt := builder().
		From(tableBorrows).
		Select(goqu.COUNT(goqu.Star())).
		Where(criteria, goqu.C(colReturnedAt).IsNull())

	sqlQuery, buildErr := s.toSQL(ctx, stmt)
	if buildErr != nil {
		return 0, buildErr
	}

	rows, queryErr := s.executeQuery(ctx, exec, sqlQuery)
	if queryErr != nil {
		return 0, queryErr
	}
	defer s.closeRows(ctx, rows)

	count := 0

	if rows.Next() {
		if scanErr := rows.Scan(&count); scanErr != nil {
			s.logError(ctx, logMsgScanRowFailed, scanErr)
			return 0, s.storeError(scanErr)
		}
	}

	return count, nil
}

// lockBorrow takes a row lock on the borrow and returns it.
func (s *Store) lockBorrow(ctx context.Context, tx adapters.DBTx, borrowID uuid.UUID) (lending.Borrow, bool, error) {
	stmt := builder().
		From(tableBorrows).
		Select(colID, colUserID, colBookID, colBorrowedAt, colReturnedAt).
		Where(goqu.Ex{colID: borrowID.String()}).
		ForUpdate(exp.Wait)

	sqlQuery, buildErr := s.toSQL(ctx, stmt)
	if buildErr != nil {
		return lending.Borrow{}, false, buildErr
	}

	rows, queryErr := s.executeQuery(ctx, tx, sqlQuery)
	if queryErr != nil {
		return lending.Borrow{}, false, queryErr
	}
	defer s.closeRows(ctx, rows)

	if !rows.Next() {
		return lending.Borrow{}, false, nil
	}

	var (
		idStr, userIDStr, bookIDStr string
		borrowedAt                  time.Time
		returnedAt                  sql.NullTime
	)

	if scanErr := rows.Scan(&idStr, &userIDStr, &bookIDStr, &borrowedAt, &returnedAt); scanErr != nil {
		s.logError(ctx, logMsgScanRowFailed, scanErr)
		return lending.Borrow{}, false, s.storeError(scanErr)
	}

	idUUID, userUUID, bookUUID, parseErr := parseIDs(idStr, userIDStr, bookIDStr)
	if parseErr != nil {
		return lending.Borrow{}, false, s.storeError(parseErr)
	}

	borrow := lending.BuildBorrow(idUUID, userUUID, bookUUID, borrowedAt)
	if returnedAt.Valid {
		at := returnedAt.Time
		borrow.ReturnedAt = &at
	}

	return borrow, true, nil
}

// insertBorrow writes a new open borrow row.
func (s *Store) insertBorrow(
	ctx context.Context,
	tx adapters.DBTx,
	borrowID uuid.UUID,
	userID uuid.UUID,
	bookID uuid.UUID,
	now time.Time,
) error {

	stmt := builder().
		Insert(tableBorrows).
		Rows(goqu.Record{
			colID:         borrowID.String(),
			colUserID:     userID.String(),
			colBookID:     bookID.String(),
			colBorrowedAt: now,
			colReturnedAt: nil,
		})

	sqlQuery, buildErr := s.toSQL(ctx, stmt)
	if buildErr != nil {
		return buildErr
	}

	rowsAffected, execErr := s.executeStatement(ctx, tx, sqlQuery)
	if execErr != nil {
		return execErr
	}

	return s.validateSingleRow(ctx, rowsAffected, lending.ErrBookUnavailable)
}

// closeBorrow sets returned_at on an open borrow. The returned_at IS NULL
// condition makes the close a no-op on a closed borrow, which the
// row-count validation turns into an error.
func (s *Store) closeBorrow(ctx context.Context, tx adapters.DBTx, borrowID uuid.UUID, now time.Time) error {
	stmt := builder().
		Update(tableBorrows).
		Set(goqu.Record{colReturnedAt: now}).
		Where(goqu.Ex{colID: borrowID.String()}, goqu.C(colReturnedAt).IsNull())

	sqlQuery, buildErr := s.toSQL(ctx, stmt)
	if buildErr != nil {
		return buildErr
	}

	rowsAffected, execErr := s.executeStatement(ctx, tx, sqlQuery)
	if execErr != nil {
		return execErr
	}

	return s.validateSingleRow(ctx, rowsAffected, lending.ErrAlreadyReturned)
}

// flipAvailability conditionally transitions the book's availability flag.
// The WHERE clause only matches the opposite state, so the row count
// validates that the transition actually happened.
func (s *Store) flipAvailability(ctx context.Context, tx adapters.DBTx, bookID uuid.UUID, available bool) error {
	stmt := builder().
		Update(tableBooks).
		Set(goqu.Record{colAvailable: available}).
		Where(goqu.Ex{colID: bookID.String(), colAvailable: !available})

	sqlQuery, buildErr := s.toSQL(ctx, stmt)
	if buildErr != nil {
		return buildErr
	}

	rowsAffected, execErr := s.executeStatement(ctx, tx, sqlQuery)
	if execErr != nil {
		return execErr
	}

	conflictKind := lending.ErrBookUnavailable
	if available {
		conflictKind = lending.ErrAlreadyReturned
	}

	return s.validateSingleRow(ctx, rowsAffected, conflictKind)
}

// validateSingleRow checks that a conditional write affected exactly one
// row. Under the row locks this cannot fail; it is the second line of
// defense mirroring the availability compare-and-set.
func (s *Store) validateSingleRow(ctx context.Context, rowsAffected int64, conflictKind error) error {
	if rowsAffected == 1 {
		return nil
	}

	s.logOperation(ctx, logMsgRowCountUnexpect, logAttrRowsAffected, rowsAffected)

	return conflictKind
}

// outcomeStatus maps an operation error to a metrics status.
func outcomeStatus(err error) string {
	switch {
	case err == nil:
		return statusSuccess
	case lending.IsBusinessError(err):
		return statusConflict
	default:
		return statusError
	}
}

// parseIDs converts three stored identity columns back to UUIDs.
func parseIDs(first string, second string, third string) (uuid.UUID, uuid.UUID, uuid.UUID, error) {
	firstUUID, err := uuid.Parse(first)
	if err != nil {
		return uuid.Nil, uuid.Nil, uuid.Nil, err
	}

	secondUUID, err := uuid.Parse(second)
	if err != nil {
		return uuid.Nil, uuid.Nil, uuid.Nil, err
	}

	thirdUUID, err := uuid.Parse(third)
	if err != nil {
		return uuid.Nil, uuid.Nil, uuid.Nil, err
	}

	return firstUUID, secondUUID, thirdUUID, nil
}
