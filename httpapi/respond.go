package httpapi

import (
	"errors"
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"github.com/bookhaven/book-lending-go/lending"
)

var json = jsoniter.ConfigFastest

// errorResponse is the uniform error body.
type errorResponse struct {
	Error string `json:"error"`
}

// respondJSON writes the payload with the given status. Encoding errors
// at this point cannot be reported to the client anymore and are logged
// by the caller's middleware via the response status.
func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

// respondError maps the error kind to an HTTP status and writes the
// uniform error body.
func respondError(w http.ResponseWriter, err error) {
	respondJSON(w, statusForError(err), errorResponse{Error: publicMessage(err)})
}

// statusForError maps the lending error taxonomy to HTTP status codes.
func statusForError(err error) int {
	switch {
	case isValidationError(err):
		return http.StatusBadRequest

	case errors.Is(err, lending.ErrBookNotFound),
		errors.Is(err, lending.ErrBorrowNotFound),
		errors.Is(err, lending.ErrUserNotFound):
		return http.StatusNotFound

	case errors.Is(err, lending.ErrBookUnavailable),
		errors.Is(err, lending.ErrAlreadyBorrowed),
		errors.Is(err, lending.ErrBorrowLimitExceeded),
		errors.Is(err, lending.ErrAlreadyReturned),
		errors.Is(err, lending.ErrOpenBorrowConflict),
		errors.Is(err, lending.ErrEmailTaken):
		return http.StatusConflict

	case errors.Is(err, lending.ErrInvalidCredentials),
		errors.Is(err, ErrInvalidToken):
		return http.StatusUnauthorized

	case errors.Is(err, lending.ErrStoreUnavailable):
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}

// publicMessage keeps internal details (driver errors, stack context) out
// of responses: business errors speak for themselves, everything else is
// generic.
func publicMessage(err error) string {
	if lending.IsBusinessError(err) || isValidationError(err) || errors.Is(err, ErrInvalidToken) {
		return err.Error()
	}

	if errors.Is(err, lending.ErrStoreUnavailable) {
		return lending.ErrStoreUnavailable.Error()
	}

	return "internal error"
}

// decodeJSON reads the request body into dst.
func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}
