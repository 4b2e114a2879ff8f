package lending

import (
	"time"

	"github.com/google/uuid"
)

// Role determines what a user may do at the service boundary.
type Role string

const (
	// RoleMember is the default role for registered users.
	RoleMember Role = "member"

	// RoleAdmin grants catalog and membership management.
	RoleAdmin Role = "admin"
)

// IsValid reports whether the role is one of the known values.
func (r Role) IsValid() bool {
	return r == RoleMember || r == RoleAdmin
}

// User represents a registered member of the library.
type User struct {
	ID           uuid.UUID
	Name         string
	Email        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
}

// BuildUser creates a new User with the member role.
func BuildUser(id uuid.UUID, name string, email string, passwordHash string, createdAt time.Time) User {
	return User{
		ID:           id,
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         RoleMember,
		CreatedAt:    createdAt,
	}
}

// Identity is an already-authenticated caller as seen by the services.
// The HTTP boundary verifies credentials/tokens and passes an Identity
// down; the core never sees raw tokens.
type Identity struct {
	UserID uuid.UUID
	Role   Role
}

// IsAdmin reports whether the identity carries the admin role.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}
