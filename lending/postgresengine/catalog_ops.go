package postgresengine

import (
	"context"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"

	"github.com/bookhaven/book-lending-go/lending"
	"github.com/bookhaven/book-lending-go/lending/postgresengine/internal/adapters"
)

const (
	opInsertBook = "insert_book"
	opGetBook    = "get_book"
	opListBooks  = "list_books"
	opUpdateBook = "update_book"
	opDeleteBook = "delete_book"
)

// InsertBook adds a new book to the catalog.
func (s *Store) InsertBook(ctx context.Context, book lending.Book) error {
	ctx, span := s.startOperationSpan(ctx, opInsertBook)
	start := time.Now()

	stmt := builder().
		Insert(tableBooks).
		Rows(goqu.Record{
			colID:          book.ID.String(),
			colTitle:       book.Title,
			colAuthor:      book.Author,
			colDescription: book.Description,
			colAvailable:   book.Available,
			colCreatedAt:   book.CreatedAt,
		})

	err := s.execSingleRowStatement(ctx, stmt, lending.ErrBookNotFound)
	s.observeOperation(opInsertBook, start, span, outcomeStatus(err))

	return err
}

// GetBook looks up one book by ID.
func (s *Store) GetBook(ctx context.Context, bookID uuid.UUID) (lending.Book, error) {
	ctx, span := s.startOperationSpan(ctx, opGetBook)
	start := time.Now()

	book, err := s.getBook(ctx, s.db, bookID)
	s.observeOperation(opGetBook, start, span, outcomeStatus(err))

	return book, err
}

// ListBooks returns the catalog, optionally narrowed by title/author
// substring and availability.
func (s *Store) ListBooks(ctx context.Context, filter lending.BookFilter) ([]lending.Book, error) {
	ctx, span := s.startOperationSpan(ctx, opListBooks)
	start := time.Now()

	stmt := builder().
		From(tableBooks).
		Select(colID, colTitle, colAuthor, colDescription, colAvailable, colCreatedAt).
		Order(goqu.C(colCreatedAt).Asc())

	if filter.Title != "" {
		stmt = stmt.Where(goqu.C(colTitle).ILike("%" + filter.Title + "%"))
	}

	if filter.Author != "" {
		stmt = stmt.Where(goqu.C(colAuthor).ILike("%" + filter.Author + "%"))
	}

	if filter.AvailableOnly {
		stmt = stmt.Where(goqu.C(colAvailable).IsTrue())
	}

	sqlQuery, buildErr := s.toSQL(ctx, stmt)
	if buildErr != nil {
		s.observeOperation(opListBooks, start, span, statusError)
		return nil, buildErr
	}

	rows, queryErr := s.executeQuery(ctx, s.db, sqlQuery)
	if queryErr != nil {
		s.observeOperation(opListBooks, start, span, statusError)
		return nil, queryErr
	}
	defer s.closeRows(ctx, rows)

	books := make([]lending.Book, 0)

	for rows.Next() {
		book, scanErr := scanBook(rows)
		if scanErr != nil {
			s.logError(ctx, logMsgScanRowFailed, scanErr)
			s.observeOperation(opListBooks, start, span, statusError)

			return nil, s.storeError(scanErr)
		}

		books = append(books, book)
	}

	s.observeOperation(opListBooks, start, span, statusSuccess)

	return books, nil
}

// UpdateBook updates a book's descriptive fields. Availability is owned by
// the lending operations and never changed here.
func (s *Store) UpdateBook(ctx context.Context, book lending.Book) error {
	ctx, span := s.startOperationSpan(ctx, opUpdateBook)
	start := time.Now()

	stmt := builder().
		Update(tableBooks).
		Set(goqu.Record{
			colTitle:       book.Title,
			colAuthor:      book.Author,
			colDescription: book.Description,
		}).
		Where(goqu.Ex{colID: book.ID.String()})

	err := s.execSingleRowStatement(ctx, stmt, lending.ErrBookNotFound)
	s.observeOperation(opUpdateBook, start, span, outcomeStatus(err))

	return err
}

// DeleteBook removes a book from the catalog. The delete is rejected with
// ErrOpenBorrowConflict while an open borrow references the book. Closed
// borrows referencing the book survive as audit trail.
func (s *Store) DeleteBook(ctx context.Context, bookID uuid.UUID) error {
	ctx, span := s.startOperationSpan(ctx, opDeleteBook)
	start := time.Now()

	txErr := s.inTransaction(ctx, func(tx adapters.DBTx) error {
		_, found, lookupErr := s.lockBookRow(ctx, tx, bookID)
		if lookupErr != nil {
			return lookupErr
		}

		if !found {
			return lending.ErrBookNotFound
		}

		openBorrows, countErr := s.countOpenBorrows(ctx, tx, goqu.Ex{colBookID: bookID.String()})
		if countErr != nil {
			return countErr
		}

		if decideErr := lending.DecideDelete(openBorrows); decideErr != nil {
			return decideErr
		}

		deleteStmt := builder().Delete(tableBooks).Where(goqu.Ex{colID: bookID.String()})

		sqlQuery, buildErr := s.toSQL(ctx, deleteStmt)
		if buildErr != nil {
			return buildErr
		}

		rowsAffected, execErr := s.executeStatement(ctx, tx, sqlQuery)
		if execErr != nil {
			return execErr
		}

		return s.validateSingleRow(ctx, rowsAffected, lending.ErrBookNotFound)
	})

	s.observeOperation(opDeleteBook, start, span, outcomeStatus(txErr))

	return txErr
}

// getBook looks a book up through the given executor so it works both
// inside and outside transactions.
func (s *Store) getBook(ctx context.Context, exec queryExecutor, bookID uuid.UUID) (lending.Book, error) {
	stmt := builder().
		From(tableBooks).
		Select(colID, colTitle, colAuthor, colDescription, colAvailable, colCreatedAt).
		Where(goqu.Ex{colID: bookID.String()})

	sqlQuery, buildErr := s.toSQL(ctx, stmt)
	if buildErr != nil {
		return lending.Book{}, buildErr
	}

	rows, queryErr := s.executeQuery(ctx, exec, sqlQuery)
	if queryErr != nil {
		return lending.Book{}, queryErr
	}
	defer s.closeRows(ctx, rows)

	if !rows.Next() {
		return lending.Book{}, lending.ErrBookNotFound
	}

	book, scanErr := scanBook(rows)
	if scanErr != nil {
		s.logError(ctx, logMsgScanRowFailed, scanErr)
		return lending.Book{}, s.storeError(scanErr)
	}

	return book, nil
}

// scanBook reads one book row.
func scanBook(rows adapters.DBRows) (lending.Book, error) {
	var (
		idStr string
		book  lending.Book
	)

	if err := rows.Scan(&idStr, &book.Title, &book.Author, &book.Description, &book.Available, &book.CreatedAt); err != nil {
		return lending.Book{}, err
	}

	bookID, parseErr := uuid.Parse(idStr)
	if parseErr != nil {
		return lending.Book{}, parseErr
	}

	book.ID = bookID

	return book, nil
}

// execSingleRowStatement builds, runs, and row-count-validates a statement
// that must affect exactly one row.
func (s *Store) execSingleRowStatement(ctx context.Context, stmt sqlGenerator, missingKind error) error {
	sqlQuery, buildErr := s.toSQL(ctx, stmt)
	if buildErr != nil {
		return buildErr
	}

	rowsAffected, execErr := s.executeStatement(ctx, s.db, sqlQuery)
	if execErr != nil {
		return execErr
	}

	return s.validateSingleRow(ctx, rowsAffected, missingKind)
}
