package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jmcleod/storefront/payment"
	"github.com/jmcleod/storefront/token"
	"github.com/jmcleod/storefront/users"
)

const (
	maxAuthBodySize    = 4 << 10
	maxPaymentBodySize = 16 << 10
)

// Messages for the uniform 401 answer. The failure kind only goes to logs.
const (
	msgNotAuthorized   = "Not authorized, please login again"
	msgAdminRequired   = "Not authorized as an admin"
	msgPaymentRejected = "Payment verification failed"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeInternalError logs err and answers 500 with a generic message so
// internals never reach the client.
func writeInternalError(w http.ResponseWriter, msg string, err error) {
	slog.Error(msg, "error", err)
	writeError(w, http.StatusInternalServerError, msg)
}

func mapError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, token.ErrForbidden):
		writeError(w, http.StatusUnauthorized, msgAdminRequired)
	case token.IsAuthFailure(err):
		writeError(w, http.StatusUnauthorized, msgNotAuthorized)
	case errors.Is(err, users.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
	case errors.Is(err, users.ErrEmailTaken):
		writeError(w, http.StatusConflict, "Email already registered")
	case errors.Is(err, users.ErrNotFound):
		writeError(w, http.StatusNotFound, "User not found")
	case errors.Is(err, payment.ErrSignatureMismatch):
		writeJSON(w, http.StatusBadRequest, PaymentFailureResponse{Status: "error", Message: msgPaymentRejected})
	case errors.Is(err, payment.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, payment.ErrGateway):
		slog.Warn("payment gateway failure", "error", err)
		writeJSON(w, http.StatusBadGateway, ErrorResponse{Error: "Payment gateway unavailable, please try again", Retryable: true})
	default:
		writeInternalError(w, "internal server error", err)
	}
}

// decodeJSON reads a size-limited JSON body into T. On failure it writes a
// 400 and returns false.
func decodeJSON[T any](w http.ResponseWriter, r *http.Request, limit int64) (T, bool) {
	var v T
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		writeError(w, http.StatusUnsupportedMediaType, "content type must be application/json")
		return v, false
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	if err := dec.Decode(&v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		case errors.Is(err, io.EOF):
			writeError(w, http.StatusBadRequest, "request body is required")
		default:
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		}
		return v, false
	}
	return v, true
}
