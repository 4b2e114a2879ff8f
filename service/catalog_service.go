package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/bookhaven/book-lending-go/lending"
)

// CatalogService handles the book catalog.
type CatalogService struct {
	store CatalogStore
	clock Clock
}

// NewCatalogService creates a CatalogService. A nil clock defaults to
// time.Now.
func NewCatalogService(store CatalogStore, clock Clock) *CatalogService {
	if clock == nil {
		clock = time.Now
	}

	return &CatalogService{store: store, clock: clock}
}

// AddBook registers a new book. New books start available.
func (s *CatalogService) AddBook(ctx context.Context, title, author, description string) (lending.Book, error) {
	book := lending.BuildBook(uuid.New(), title, author, description, s.clock().UTC())

	if err := s.store.InsertBook(ctx, book); err != nil {
		return lending.Book{}, err
	}

	return book, nil
}

// GetBook returns one book, retrying on transient store failures.
func (s *CatalogService) GetBook(ctx context.Context, bookID uuid.UUID) (lending.Book, error) {
	var book lending.Book

	err := RetryOnStoreUnavailable(ctx, func(ctx context.Context) error {
		var readErr error
		book, readErr = s.store.GetBook(ctx, bookID)

		return readErr
	})
	if err != nil {
		return lending.Book{}, err
	}

	return book, nil
}

// ListBooks returns the catalog, retrying on transient store failures.
func (s *CatalogService) ListBooks(ctx context.Context, filter lending.BookFilter) ([]lending.Book, error) {
	var books []lending.Book

	err := RetryOnStoreUnavailable(ctx, func(ctx context.Context) error {
		var readErr error
		books, readErr = s.store.ListBooks(ctx, filter)

		return readErr
	})
	if err != nil {
		return nil, err
	}

	return books, nil
}

// UpdateBook changes a book's descriptive fields and returns the updated
// book. Availability is owned by the lending operations.
func (s *CatalogService) UpdateBook(ctx context.Context, bookID uuid.UUID, title, author, description string) (lending.Book, error) {
	book := lending.Book{
		ID:          bookID,
		Title:       title,
		Author:      author,
		Description: description,
	}

	if err := s.store.UpdateBook(ctx, book); err != nil {
		return lending.Book{}, err
	}

	return s.store.GetBook(ctx, bookID)
}

// DeleteBook removes a book from the catalog. Deletion is rejected while
// an open borrow references the book.
func (s *CatalogService) DeleteBook(ctx context.Context, bookID uuid.UUID) error {
	return s.store.DeleteBook(ctx, bookID)
}
