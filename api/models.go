package api

import "github.com/jmcleod/storefront/payment"

// ErrorResponse is the body of every error answer except a rejected payment.
type ErrorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

// MessageResponse carries a human-readable confirmation.
type MessageResponse struct {
	Message string `json:"message"`
}

// LoginRequest is the JSON body for POST /users/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Remember bool   `json:"remember"`
}

// SessionResponse is returned by login, refresh and profile calls.
// Times are epoch milliseconds; expiresAt is the token's real expiry and is
// what the client uses as its expiry marker.
type SessionResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	IsAdmin   bool   `json:"isAdmin"`
	Remember  bool   `json:"remember"`
	IssuedAt  int64  `json:"issuedAt,omitempty"`
	ExpiresAt int64  `json:"expiresAt,omitempty"`
}

// UpdateProfileRequest is the JSON body for PUT /users/profile. Empty
// fields are left unchanged.
type UpdateProfileRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserSummary is one entry of the admin user listing.
type UserSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	IsAdmin   bool   `json:"isAdmin"`
	CreatedAt string `json:"createdAt"`
}

// ListUsersResponse is returned from GET /users.
type ListUsersResponse struct {
	Users []UserSummary `json:"users"`
	PaginationMeta
}

// PaymentConfigResponse is returned from GET /payment/config. It carries
// only the public key id.
type PaymentConfigResponse struct {
	RazorpayKeyID string `json:"razorpayKeyId"`
}

// CreateOrderRequest is the JSON body for POST /payment/order. Amount is in
// minor units (paise for INR).
type CreateOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes"`
	Prefill  *PrefillRequest   `json:"prefill"`
}

// PrefillRequest is optional shopper data for the checkout surface.
type PrefillRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Contact string `json:"contact"`
}

// ValidatePaymentRequest is the JSON body for POST /payment/validate, in the
// gateway's callback field names.
type ValidatePaymentRequest struct {
	OrderID   string `json:"razorpay_order_id"`
	PaymentID string `json:"razorpay_payment_id"`
	Signature string `json:"razorpay_signature"`
}

// PaymentFailureResponse is the 400 body for a rejected payment.
type PaymentFailureResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// HealthResponse is returned from GET /health.
type HealthResponse struct {
	Status      string  `json:"status"`
	Timestamp   string  `json:"timestamp"`
	Environment string  `json:"environment"`
	Uptime      float64 `json:"uptime"`
}

// PaymentOrderResponse is the 201 body of POST /payment/order: the gateway
// order plus the checkout display config and prefill.
type PaymentOrderResponse struct {
	payment.Order
	Config  payment.OrderConfig `json:"config"`
	Prefill payment.Prefill     `json:"prefill"`
}

// PaymentResultResponse is the 201 body of a verified payment.
type PaymentResultResponse struct {
	ID            string                 `json:"id"`
	Status        string                 `json:"status"`
	Message       string                 `json:"message"`
	PaymentMethod string                 `json:"payment_method"`
	Details       payment.PaymentDetails `json:"payment_details"`
}
