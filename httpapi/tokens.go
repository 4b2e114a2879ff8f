package httpapi

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/bookhaven/book-lending-go/lending"
)

// DefaultTokenTTL is how long issued tokens stay valid.
const DefaultTokenTTL = 7 * 24 * time.Hour

// ErrInvalidToken is returned for tokens that are malformed, expired, or
// carry a bad signature.
var ErrInvalidToken = errors.New("invalid or expired token")

// Claims is the JWT payload carried by issued tokens.
type Claims struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies bearer tokens with an HMAC secret.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	clock  func() time.Time
}

// NewTokenIssuer creates a TokenIssuer. A non-positive ttl falls back to
// DefaultTokenTTL; a nil clock defaults to time.Now.
func NewTokenIssuer(secret []byte, ttl time.Duration, clock func() time.Time) TokenIssuer {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	if clock == nil {
		clock = time.Now
	}

	return TokenIssuer{secret: secret, ttl: ttl, clock: clock}
}

// Issue signs a token for the user.
func (t TokenIssuer) Issue(user lending.User) (string, error) {
	now := t.clock().UTC()

	claims := Claims{
		Name:  user.Name,
		Email: user.Email,
		Role:  string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Verify parses the token and returns the identity it asserts.
func (t TokenIssuer) Verify(tokenString string) (lending.Identity, error) {
	claims := &Claims{}

	token, parseErr := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(_ *jwt.Token) (any, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.clock),
	)
	if parseErr != nil || !token.Valid {
		return lending.Identity{}, ErrInvalidToken
	}

	userID, idErr := uuid.Parse(claims.Subject)
	if idErr != nil {
		return lending.Identity{}, ErrInvalidToken
	}

	role := lending.Role(claims.Role)
	if !role.IsValid() {
		return lending.Identity{}, ErrInvalidToken
	}

	return lending.Identity{UserID: userID, Role: role}, nil
}
