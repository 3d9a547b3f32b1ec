package payment

import (
	"errors"
	"fmt"
)

var (
	// ErrGateway reports that the payment gateway failed or answered with
	// something unusable. Intent creation failures are safe to retry.
	ErrGateway = errors.New("payment gateway error")
	// ErrSignatureMismatch reports a callback whose signature does not match
	// the expected HMAC. The intent must not be reused.
	ErrSignatureMismatch = errors.New("payment signature mismatch")
	// ErrInvalidRequest reports a malformed intent or verification request.
	ErrInvalidRequest = errors.New("invalid payment request")
)

// GatewayError carries the status and error body returned by the gateway.
type GatewayError struct {
	Op          string
	Status      int
	Code        string
	Description string
}

func (e *GatewayError) Error() string {
	if e.Code == "" && e.Description == "" {
		return fmt.Sprintf("%s: gateway returned HTTP %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: gateway returned HTTP %d: %s: %s", e.Op, e.Status, e.Code, e.Description)
}

// Unwrap lets callers match any GatewayError with errors.Is(err, ErrGateway).
func (e *GatewayError) Unwrap() error { return ErrGateway }
