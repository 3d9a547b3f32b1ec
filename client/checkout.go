package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/jmcleod/storefront/payment"
)

// CheckoutRequest starts a checkout. Amount is in minor units.
type CheckoutRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt,omitempty"`
	Notes    map[string]string `json:"notes,omitempty"`
	Prefill  payment.Prefill   `json:"prefill"`
}

// PaymentOrder is the server's answer to an order request.
type PaymentOrder struct {
	ID       string            `json:"id"`
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Status   string            `json:"status"`
	Notes    map[string]string `json:"notes"`
	Config   struct {
		Display payment.Display `json:"display"`
	} `json:"config"`
	Prefill payment.Prefill `json:"prefill"`
}

// CheckoutOptions is everything the gateway checkout surface needs.
type CheckoutOptions struct {
	KeyID    string
	OrderID  string
	Amount   int64
	Currency string
	Display  payment.Display
	Prefill  payment.Prefill
}

// Callback is the triple the checkout surface hands back after payment.
type Callback struct {
	OrderID   string `json:"razorpay_order_id"`
	PaymentID string `json:"razorpay_payment_id"`
	Signature string `json:"razorpay_signature"`
}

// CheckoutSurface is the gateway's client-side checkout UI. Open returns
// ErrDismissed when the shopper closes it without paying.
type CheckoutSurface interface {
	Open(ctx context.Context, opts CheckoutOptions) (Callback, error)
}

// PaymentResult is a verified payment.
type PaymentResult struct {
	ID            string                 `json:"id"`
	Status        string                 `json:"status"`
	Message       string                 `json:"message"`
	PaymentMethod string                 `json:"payment_method"`
	Details       payment.PaymentDetails `json:"payment_details"`
}

// Checkout runs the three-step payment handshake against the API.
type Checkout struct {
	api *APIClient

	mu    sync.Mutex
	keyID string
}

// NewCheckout returns a Checkout using api.
func NewCheckout(api *APIClient) *Checkout {
	return &Checkout{api: api}
}

func (c *Checkout) gatewayKey(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.keyID != "" {
		return c.keyID, nil
	}
	var out struct {
		KeyID string `json:"razorpayKeyId"`
	}
	if err := c.api.do(ctx, http.MethodGet, "/payment/config", nil, &out); err != nil {
		return "", err
	}
	c.keyID = out.KeyID
	return c.keyID, nil
}

// Begin asks the server for a new payment intent. A gateway failure comes
// back as an *APIError with Retryable set.
func (c *Checkout) Begin(ctx context.Context, req CheckoutRequest) (*Attempt, error) {
	key, err := c.gatewayKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading payment config: %w", err)
	}
	var order PaymentOrder
	if err := c.api.do(ctx, http.MethodPost, "/payment/order", req, &order); err != nil {
		return nil, fmt.Errorf("creating payment order: %w", err)
	}
	if order.ID == "" {
		return nil, fmt.Errorf("creating payment order: %w: empty order id", ErrUnavailable)
	}
	return &Attempt{checkout: c, keyID: key, order: order}, nil
}

// Run is Begin, Open and Complete in sequence.
func (c *Checkout) Run(ctx context.Context, req CheckoutRequest, surface CheckoutSurface) (*PaymentResult, error) {
	attempt, err := c.Begin(ctx, req)
	if err != nil {
		return nil, err
	}
	cb, err := attempt.Open(ctx, surface)
	if err != nil {
		return nil, err
	}
	return attempt.Complete(ctx, cb)
}

// Attempt is one checkout against one payment intent. It is single-use:
// once dismissed or completed, success or not, it cannot be used again.
type Attempt struct {
	checkout *Checkout
	keyID    string
	order    PaymentOrder

	mu    sync.Mutex
	spent bool
}

// Order returns the intent behind the attempt.
func (a *Attempt) Order() PaymentOrder { return a.order }

// Options returns the parameters handed to the checkout surface.
func (a *Attempt) Options() CheckoutOptions {
	return CheckoutOptions{
		KeyID:    a.keyID,
		OrderID:  a.order.ID,
		Amount:   a.order.Amount,
		Currency: a.order.Currency,
		Display:  a.order.Config.Display,
		Prefill:  a.order.Prefill,
	}
}

func (a *Attempt) spend() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.spent {
		return ErrAttemptSpent
	}
	a.spent = true
	return nil
}

func (a *Attempt) isSpent() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.spent
}

// Open shows the checkout surface. Dismissal abandons the attempt.
func (a *Attempt) Open(ctx context.Context, surface CheckoutSurface) (Callback, error) {
	if a.isSpent() {
		return Callback{}, ErrAttemptSpent
	}
	cb, err := surface.Open(ctx, a.Options())
	if err != nil {
		if errors.Is(err, ErrDismissed) {
			_ = a.spend()
		}
		return Callback{}, err
	}
	return cb, nil
}

// Complete forwards the callback to the server for verification.
func (a *Attempt) Complete(ctx context.Context, cb Callback) (*PaymentResult, error) {
	if err := a.spend(); err != nil {
		return nil, err
	}
	if cb.OrderID != a.order.ID {
		return nil, fmt.Errorf("%w: callback is for order %q, not %q", ErrVerificationFailed, cb.OrderID, a.order.ID)
	}
	var res PaymentResult
	if err := a.checkout.api.do(ctx, http.MethodPost, "/payment/validate", cb, &res); err != nil {
		if errors.Is(err, ErrBadRequest) {
			return nil, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
		}
		return nil, err
	}
	return &res, nil
}
