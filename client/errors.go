package client

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthorized is returned when the API answers 401.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrUnavailable is returned when the API cannot be reached or answers
	// with a gateway or availability failure.
	ErrUnavailable = errors.New("service unavailable")
	// ErrBadRequest is returned when the API rejects the request body.
	ErrBadRequest = errors.New("bad request")
	// ErrNotFound is returned for 404 responses.
	ErrNotFound = errors.New("not found")
	// ErrNotAuthenticated is returned by operations that need a session
	// when there is none.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrDismissed is returned when the shopper closes the checkout surface
	// without paying.
	ErrDismissed = errors.New("checkout dismissed")
	// ErrAttemptSpent is returned when a checkout attempt is reused.
	ErrAttemptSpent = errors.New("checkout attempt already used")
	// ErrVerificationFailed is returned when the server rejects the payment
	// callback. Checkout must restart from Begin.
	ErrVerificationFailed = errors.New("payment verification failed")
)

// APIError is a non-2xx response from the storefront API.
type APIError struct {
	Status    int
	Message   string
	Retryable bool
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: HTTP %d", e.Status)
	}
	return fmt.Sprintf("api: HTTP %d: %s", e.Status, e.Message)
}

// Unwrap maps the status onto the package sentinels.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return ErrUnavailable
	}
	return nil
}
