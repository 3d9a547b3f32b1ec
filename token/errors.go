package token

import "errors"

// Authentication failures. Callers answer all of them with the same 401
// response; the distinction exists for logs and diagnostics.
var (
	ErrTokenMissing   = errors.New("token missing")
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenMalformed = errors.New("token malformed")
	ErrUserNotFound   = errors.New("token user not found")
	ErrForbidden      = errors.New("admin privileges required")
)

// Reason returns a short, log-safe label for an authentication failure.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrTokenMissing):
		return "missing"
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	case errors.Is(err, ErrTokenMalformed):
		return "malformed"
	case errors.Is(err, ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	default:
		return "internal"
	}
}

// IsAuthFailure reports whether err is one of the failures above.
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrTokenMissing) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrTokenMalformed) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrForbidden)
}
