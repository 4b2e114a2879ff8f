package service

import (
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/bookhaven/book-lending-go/lending"
)

const defaultBcryptCost = 10

// BcryptHasher is the production PasswordHasher.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher creates a hasher with the given cost. A cost outside
// bcrypt's valid range falls back to the default.
func NewBcryptHasher(cost int) BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = defaultBcryptCost
	}

	return BcryptHasher{cost: cost}
}

// Hash derives a bcrypt hash from the plaintext password.
func (h BcryptHasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}

	return string(hash), nil
}

// Verify compares the stored hash against the plaintext password. A
// mismatch reads as invalid credentials; any other bcrypt failure is
// passed through.
func (h BcryptHasher) Verify(hash string, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err == nil {
		return nil
	}

	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return lending.ErrInvalidCredentials
	}

	return err
}
