package lending

import (
	"time"

	"github.com/google/uuid"
)

// Book represents a single lendable title in the catalog.
// Available is true exactly when no open Borrow references the book.
type Book struct {
	ID          uuid.UUID
	Title       string
	Author      string
	Description string
	Available   bool
	CreatedAt   time.Time
}

// BuildBook creates a new Book. New books enter the catalog available.
func BuildBook(id uuid.UUID, title string, author string, description string, createdAt time.Time) Book {
	return Book{
		ID:          id,
		Title:       title,
		Author:      author,
		Description: description,
		Available:   true,
		CreatedAt:   createdAt,
	}
}
