package httpapi

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/bookhaven/book-lending-go/lending"
)

const minPasswordLength = 6

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// validationError marks request-shape problems so they map to 400.
type validationError struct {
	message string
}

func (e validationError) Error() string { return e.message }

func invalidField(format string, args ...any) error {
	return validationError{message: fmt.Sprintf(format, args...)}
}

// isValidationError reports whether err came from request validation.
func isValidationError(err error) bool {
	var v validationError
	return errors.As(err, &v)
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r *registerRequest) validate() error {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))

	if r.Name == "" {
		return invalidField("name must not be empty")
	}

	if !emailPattern.MatchString(r.Email) {
		return invalidField("email is not valid")
	}

	if len(r.Password) < minPasswordLength {
		return invalidField("password must have at least %d characters", minPasswordLength)
	}

	return nil
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r *loginRequest) validate() error {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))

	if r.Email == "" || r.Password == "" {
		return invalidField("email and password must not be empty")
	}

	return nil
}

type bookRequest struct {
	Title       string `json:"title"`
	Author      string `json:"author"`
	Description string `json:"description"`
}

func (r *bookRequest) validate() error {
	r.Title = strings.TrimSpace(r.Title)
	r.Author = strings.TrimSpace(r.Author)
	r.Description = strings.TrimSpace(r.Description)

	if r.Title == "" {
		return invalidField("title must not be empty")
	}

	if r.Author == "" {
		return invalidField("author must not be empty")
	}

	return nil
}

type borrowRequest struct {
	BookID string `json:"book_id"`
}

type changeRoleRequest struct {
	Role string `json:"role"`
}

func (r *changeRoleRequest) validate() (lending.Role, error) {
	role := lending.Role(strings.TrimSpace(r.Role))
	if !role.IsValid() {
		return "", invalidField("role must be one of: %s, %s", lending.RoleMember, lending.RoleAdmin)
	}

	return role, nil
}

type authResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func toUserResponse(user lending.User) userResponse {
	return userResponse{
		ID:        user.ID.String(),
		Name:      user.Name,
		Email:     user.Email,
		Role:      string(user.Role),
		CreatedAt: user.CreatedAt,
	}
}

type bookResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Author      string    `json:"author"`
	Description string    `json:"description"`
	Available   bool      `json:"available"`
	CreatedAt   time.Time `json:"created_at"`
}

func toBookResponse(book lending.Book) bookResponse {
	return bookResponse{
		ID:          book.ID.String(),
		Title:       book.Title,
		Author:      book.Author,
		Description: book.Description,
		Available:   book.Available,
		CreatedAt:   book.CreatedAt,
	}
}

type borrowResponse struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	BookID     string     `json:"book_id"`
	BorrowedAt time.Time  `json:"borrowed_at"`
	ReturnedAt *time.Time `json:"returned_at,omitempty"`
}

func toBorrowResponse(borrow lending.Borrow) borrowResponse {
	return borrowResponse{
		ID:         borrow.ID.String(),
		UserID:     borrow.UserID.String(),
		BookID:     borrow.BookID.String(),
		BorrowedAt: borrow.BorrowedAt,
		ReturnedAt: borrow.ReturnedAt,
	}
}

type borrowedBookResponse struct {
	Borrow borrowResponse `json:"borrow"`
	Book   bookResponse   `json:"book"`
}

func toBorrowedBookResponses(borrowed []lending.BorrowedBook) []borrowedBookResponse {
	out := make([]borrowedBookResponse, 0, len(borrowed))

	for _, entry := range borrowed {
		out = append(out, borrowedBookResponse{
			Borrow: toBorrowResponse(entry.Borrow),
			Book:   toBookResponse(entry.Book),
		})
	}

	return out
}
