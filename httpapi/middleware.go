package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bookhaven/book-lending-go/lending"
)

type contextKey string

const identityContextKey contextKey = "identity"

// identityFrom returns the authenticated identity stored by the auth
// middleware.
func identityFrom(ctx context.Context) (lending.Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(lending.Identity)
	return identity, ok
}

// statusRecorder captures the response status for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// requestLogging logs one line per request with method, path, status,
// and duration.
func requestLogging(logger zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(recorder, r)

		logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("request handled")
	})
}

// authenticated verifies the bearer token and stores the identity in the
// request context.
func (s *Server) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")

		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || token == "" {
			respondError(w, ErrInvalidToken)
			return
		}

		identity, err := s.tokens.Verify(token)
		if err != nil {
			respondError(w, err)
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), identityContextKey, identity)))
	}
}

// adminOnly rejects non-admin callers with 403. It wraps authenticated
// handlers only.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return s.authenticated(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := identityFrom(r.Context())
		if !ok || !identity.IsAdmin() {
			respondJSON(w, http.StatusForbidden, errorResponse{Error: "admin role required"})
			return
		}

		next(w, r)
	})
}

// canReadBorrowsOf is the authorization policy for reading another
// user's borrows: self always, admins everyone.
func canReadBorrowsOf(caller lending.Identity, userID uuid.UUID) bool {
	return caller.UserID == userID || caller.IsAdmin()
}
