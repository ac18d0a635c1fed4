package shared

import (
	"errors"

	"github.com/odyssey-erp/roster/internal/platform/httpx"
)

var (
	// ErrSessionMissing indicates the request carries no session.
	ErrSessionMissing = errors.New("session missing")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// UserSafeMessage converts an error into text that can be shown to the user.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, httpx.ErrNotFound):
		return "The requested item could not be found."
	case errors.Is(err, httpx.ErrValidation):
		return "Some of the submitted values are invalid."
	case errors.Is(err, httpx.ErrForbidden), errors.Is(err, ErrSessionMissing):
		return "Your session has expired. Please reload the page."
	default:
		return "Something went wrong. Please try again."
	}
}
