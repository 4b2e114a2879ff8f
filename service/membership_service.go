package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/bookhaven/book-lending-go/lending"
)

// MembershipService handles registration, credential verification, and
// user administration.
type MembershipService struct {
	store  MembershipStore
	hasher PasswordHasher
	clock  Clock
}

// NewMembershipService creates a MembershipService. A nil clock defaults
// to time.Now.
func NewMembershipService(store MembershipStore, hasher PasswordHasher, clock Clock) *MembershipService {
	if clock == nil {
		clock = time.Now
	}

	return &MembershipService{store: store, hasher: hasher, clock: clock}
}

// Register creates a new member account. The email must not be
// registered yet.
func (s *MembershipService) Register(ctx context.Context, name, email, password string) (lending.User, error) {
	hash, hashErr := s.hasher.Hash(password)
	if hashErr != nil {
		return lending.User{}, hashErr
	}

	user := lending.BuildUser(uuid.New(), name, email, hash, s.clock().UTC())

	if err := s.store.InsertUser(ctx, user); err != nil {
		return lending.User{}, err
	}

	return user, nil
}

// Authenticate verifies the credentials and returns the matching user.
// An unknown email and a wrong password both read as invalid
// credentials, so callers cannot probe which emails are registered.
func (s *MembershipService) Authenticate(ctx context.Context, email, password string) (lending.User, error) {
	user, lookupErr := s.store.GetUserByEmail(ctx, email)
	if lookupErr != nil {
		if errors.Is(lookupErr, lending.ErrUserNotFound) {
			return lending.User{}, lending.ErrInvalidCredentials
		}

		return lending.User{}, lookupErr
	}

	if verifyErr := s.hasher.Verify(user.PasswordHash, password); verifyErr != nil {
		return lending.User{}, verifyErr
	}

	return user, nil
}

// GetUser returns one user, retrying on transient store failures.
func (s *MembershipService) GetUser(ctx context.Context, userID uuid.UUID) (lending.User, error) {
	var user lending.User

	err := RetryOnStoreUnavailable(ctx, func(ctx context.Context) error {
		var readErr error
		user, readErr = s.store.GetUser(ctx, userID)

		return readErr
	})
	if err != nil {
		return lending.User{}, err
	}

	return user, nil
}

// ListUsers returns registered users, retrying on transient store
// failures.
func (s *MembershipService) ListUsers(ctx context.Context, filter lending.UserFilter) ([]lending.User, error) {
	var users []lending.User

	err := RetryOnStoreUnavailable(ctx, func(ctx context.Context) error {
		var readErr error
		users, readErr = s.store.ListUsers(ctx, filter)

		return readErr
	})
	if err != nil {
		return nil, err
	}

	return users, nil
}

// PromoteUser changes a user's role.
func (s *MembershipService) PromoteUser(ctx context.Context, userID uuid.UUID, role lending.Role) (lending.User, error) {
	if err := s.store.UpdateUserRole(ctx, userID, role); err != nil {
		return lending.User{}, err
	}

	return s.store.GetUser(ctx, userID)
}

// DeleteUser removes a user account. Deletion is rejected while the user
// holds an open borrow.
func (s *MembershipService) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	return s.store.DeleteUser(ctx, userID)
}
