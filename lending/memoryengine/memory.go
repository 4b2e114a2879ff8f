// Package memoryengine provides an in-memory store with the same
// behavior as the Postgres engine. It backs hermetic tests of the
// service and HTTP layers; a single mutex gives it the same
// serializable check-then-act semantics the Postgres engine gets from
// row locks.
package memoryengine

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bookhaven/book-lending-go/lending"
)

// Store is an in-memory implementation of the catalog, membership, and
// borrow-ledger persistence. Safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	books   map[uuid.UUID]lending.Book
	users   map[uuid.UUID]lending.User
	borrows map[uuid.UUID]lending.Borrow
	order   []uuid.UUID // borrow insertion order, for stable listings
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		books:   make(map[uuid.UUID]lending.Book),
		users:   make(map[uuid.UUID]lending.User),
		borrows: make(map[uuid.UUID]lending.Borrow),
	}
}

// BorrowBook creates an open borrow and flips the book to unavailable,
// atomically under the store mutex.
func (s *Store) BorrowBook(
	_ context.Context,
	borrowID uuid.UUID,
	userID uuid.UUID,
	bookID uuid.UUID,
	now time.Time,
) (lending.Borrow, error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	book, bookFound := s.books[bookID]
	_, userFound := s.users[userID]

	state := lending.BorrowState{
		BookExists:      bookFound,
		BookAvailable:   book.Available,
		UserExists:      userFound,
		BorrowedByUser:  s.hasOpenBorrowLocked(userID, bookID),
		UserOpenBorrows: s.openBorrowCountLocked(userID),
	}

	if err := lending.DecideBorrow(state); err != nil {
		return lending.Borrow{}, err
	}

	borrow := lending.BuildBorrow(borrowID, userID, bookID, now)
	s.borrows[borrowID] = borrow
	s.order = append(s.order, borrowID)

	book.Available = false
	s.books[bookID] = book

	return borrow, nil
}

// ReturnBook closes the borrow and flips the book back to available,
// atomically under the store mutex.
func (s *Store) ReturnBook(
	_ context.Context,
	borrowID uuid.UUID,
	requestingUserID uuid.UUID,
	requireOwnership bool,
	now time.Time,
) (lending.Borrow, error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, found := s.borrows[borrowID]

	state := lending.ReturnState{
		BorrowExists:    found,
		OwnedByCaller:   found && (!requireOwnership || existing.UserID == requestingUserID),
		AlreadyReturned: found && !existing.IsOpen(),
	}

	if err := lending.DecideReturn(state); err != nil {
		return lending.Borrow{}, err
	}

	closed, err := existing.Close(now)
	if err != nil {
		return lending.Borrow{}, err
	}

	s.borrows[borrowID] = closed

	book := s.books[closed.BookID]
	book.Available = true
	s.books[closed.BookID] = book

	return closed, nil
}

// ActiveBorrowsForUser returns every open borrow for the user joined with
// its book, in insertion order.
func (s *Store) ActiveBorrowsForUser(_ context.Context, userID uuid.UUID) ([]lending.BorrowedBook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	borrowed := make([]lending.BorrowedBook, 0)

	for _, id := range s.order {
		borrow := s.borrows[id]
		if borrow.UserID != userID || !borrow.IsOpen() {
			continue
		}

		borrowed = append(borrowed, lending.BorrowedBook{
			Borrow: borrow,
			Book:   s.books[borrow.BookID],
		})
	}

	return borrowed, nil
}

// InsertBook adds a new book to the catalog.
func (s *Store) InsertBook(_ context.Context, book lending.Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.books[book.ID] = book

	return nil
}

// GetBook looks up one book by ID.
func (s *Store) GetBook(_ context.Context, bookID uuid.UUID) (lending.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	book, found := s.books[bookID]
	if !found {
		return lending.Book{}, lending.ErrBookNotFound
	}

	return book, nil
}

// ListBooks returns the catalog, optionally narrowed by the filter.
func (s *Store) ListBooks(_ context.Context, filter lending.BookFilter) ([]lending.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	books := make([]lending.Book, 0, len(s.books))

	for _, book := range s.books {
		if filter.Title != "" && !containsFold(book.Title, filter.Title) {
			continue
		}

		if filter.Author != "" && !containsFold(book.Author, filter.Author) {
			continue
		}

		if filter.AvailableOnly && !book.Available {
			continue
		}

		books = append(books, book)
	}

	sort.Slice(books, func(i, j int) bool { return books[i].CreatedAt.Before(books[j].CreatedAt) })

	return books, nil
}

// UpdateBook updates a book's descriptive fields, never its availability.
func (s *Store) UpdateBook(_ context.Context, book lending.Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, found := s.books[book.ID]
	if !found {
		return lending.ErrBookNotFound
	}

	existing.Title = book.Title
	existing.Author = book.Author
	existing.Description = book.Description
	s.books[book.ID] = existing

	return nil
}

// DeleteBook removes a book unless an open borrow references it.
func (s *Store) DeleteBook(_ context.Context, bookID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, found := s.books[bookID]; !found {
		return lending.ErrBookNotFound
	}

	if err := lending.DecideDelete(s.openBorrowCountForBookLocked(bookID)); err != nil {
		return err
	}

	delete(s.books, bookID)

	return nil
}

// InsertUser adds a new user unless the email is already registered.
func (s *Store) InsertUser(_ context.Context, user lending.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return lending.ErrEmailTaken
		}
	}

	s.users[user.ID] = user

	return nil
}

// GetUser looks up one user by ID.
func (s *Store) GetUser(_ context.Context, userID uuid.UUID) (lending.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, found := s.users[userID]
	if !found {
		return lending.User{}, lending.ErrUserNotFound
	}

	return user, nil
}

// GetUserByEmail looks up one user by email.
func (s *Store) GetUserByEmail(_ context.Context, email string) (lending.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, user := range s.users {
		if strings.EqualFold(user.Email, email) {
			return user, nil
		}
	}

	return lending.User{}, lending.ErrUserNotFound
}

// ListUsers returns registered users, optionally narrowed by the filter.
func (s *Store) ListUsers(_ context.Context, filter lending.UserFilter) ([]lending.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := make([]lending.User, 0, len(s.users))

	for _, user := range s.users {
		if filter.Name != "" && !containsFold(user.Name, filter.Name) {
			continue
		}

		if filter.Email != "" && !containsFold(user.Email, filter.Email) {
			continue
		}

		users = append(users, user)
	}

	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.Before(users[j].CreatedAt) })

	return users, nil
}

// UpdateUserRole changes a user's role.
func (s *Store) UpdateUserRole(_ context.Context, userID uuid.UUID, role lending.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, found := s.users[userID]
	if !found {
		return lending.ErrUserNotFound
	}

	user.Role = role
	s.users[userID] = user

	return nil
}

// DeleteUser removes a user unless they hold an open borrow.
func (s *Store) DeleteUser(_ context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, found := s.users[userID]; !found {
		return lending.ErrUserNotFound
	}

	if err := lending.DecideDelete(s.openBorrowCountLocked(userID)); err != nil {
		return err
	}

	delete(s.users, userID)

	return nil
}

// Ping reports the store as always reachable.
func (s *Store) Ping(_ context.Context) error {
	return nil
}

func (s *Store) hasOpenBorrowLocked(userID uuid.UUID, bookID uuid.UUID) bool {
	for _, borrow := range s.borrows {
		if borrow.UserID == userID && borrow.BookID == bookID && borrow.IsOpen() {
			return true
		}
	}

	return false
}

func (s *Store) openBorrowCountLocked(userID uuid.UUID) int {
	count := 0

	for _, borrow := range s.borrows {
		if borrow.UserID == userID && borrow.IsOpen() {
			count++
		}
	}

	return count
}

func (s *Store) openBorrowCountForBookLocked(bookID uuid.UUID) int {
	count := 0

	for _, borrow := range s.borrows {
		if borrow.BookID == bookID && borrow.IsOpen() {
			count++
		}
	}

	return count
}

func containsFold(haystack string, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
