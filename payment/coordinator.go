package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Prefill is passed through to the checkout surface. Absent fields are
// echoed as empty strings.
type Prefill struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Contact string `json:"contact"`
}

// IntentRequest asks for a new payment intent. Amount is in minor units.
type IntentRequest struct {
	Amount   int64
	Currency string
	Receipt  string
	Notes    map[string]string
	Prefill  Prefill
}

// Intent is a created gateway order together with the checkout parameters
// the client needs. An Intent is never modified after creation; every
// checkout attempt gets a new one.
type Intent struct {
	GatewayOrderID string
	Amount         int64
	Currency       string
	Receipt        string
	Notes          map[string]string
	Status         string
	Display        Display
	Prefill        Prefill
	Order          *Order
	CreatedAt      time.Time
}

// VerificationRecord is the callback triple returned by the checkout
// surface. It is consumed by Verify and never stored.
type VerificationRecord struct {
	OrderID   string
	PaymentID string
	Signature string
}

// PaymentDetails holds the method plus the one sub-detail matching it.
type PaymentDetails struct {
	Method string  `json:"method"`
	Card   *Card   `json:"card"`
	Bank   *string `json:"bank"`
	Wallet *string `json:"wallet"`
	VPA    *string `json:"vpa"`
}

// VerifiedPayment is the result of a successful verification.
type VerifiedPayment struct {
	PaymentID string
	OrderID   string
	Status    string
	Details   PaymentDetails
}

// Coordinator creates intents and verifies callbacks.
type Coordinator struct {
	cfg     Config
	gateway Gateway
	logger  *slog.Logger
	now     func() time.Time
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithLogger sets the logger. Verification records are never logged;
// only order ids are.
func WithLogger(l *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) { c.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) { c.now = now }
}

// NewCoordinator returns a Coordinator using cfg's secret for signatures.
func NewCoordinator(cfg Config, gw Gateway, opts ...CoordinatorOption) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Coordinator{
		cfg:     cfg,
		gateway: gw,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "payment")
	return c, nil
}

// KeyID returns the public gateway key id for the checkout surface.
func (c *Coordinator) KeyID() string { return c.cfg.KeyID }

// CreateIntent creates a gateway order with automatic capture and the
// default display configuration.
func (c *Coordinator) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		return nil, fmt.Errorf("%w: currency is required", ErrInvalidRequest)
	}
	receipt := req.Receipt
	if receipt == "" {
		receipt = "rcpt_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	}
	notes := make(map[string]string, len(req.Notes))
	for k, v := range req.Notes {
		notes[k] = v
	}

	display := DefaultDisplay()
	order, err := c.gateway.CreateOrder(ctx, OrderRequest{
		Amount:         req.Amount,
		Currency:       currency,
		Receipt:        receipt,
		Notes:          notes,
		PaymentCapture: 1,
		Config:         &OrderConfig{Display: display},
	})
	if err != nil {
		c.logger.WarnContext(ctx, "order creation failed", "error", err)
		return nil, fmt.Errorf("creating order: %w", wrapGateway(err))
	}
	if order == nil || order.ID == "" {
		return nil, fmt.Errorf("creating order: %w: gateway returned no order id", ErrGateway)
	}

	c.logger.InfoContext(ctx, "order created", "order_id", order.ID, "amount", order.Amount, "currency", order.Currency)
	return &Intent{
		GatewayOrderID: order.ID,
		Amount:         req.Amount,
		Currency:       currency,
		Receipt:        receipt,
		Notes:          notes,
		Status:         order.Status,
		Display:        display,
		Prefill:        req.Prefill,
		Order:          order,
		CreatedAt:      c.now(),
	}, nil
}

// Verify checks the callback signature and, when it matches, fetches the
// payment from the gateway. Any signature other than the exact lowercase hex
// HMAC fails with ErrSignatureMismatch.
func (c *Coordinator) Verify(ctx context.Context, rec VerificationRecord) (*VerifiedPayment, error) {
	if rec.OrderID == "" || rec.PaymentID == "" || rec.Signature == "" {
		return nil, fmt.Errorf("%w: order id, payment id and signature are required", ErrInvalidRequest)
	}

	var expected string
	if err := c.cfg.withSecret(func(secret []byte) error {
		expected = Sign(secret, rec.OrderID, rec.PaymentID)
		return nil
	}); err != nil {
		return nil, err
	}
	if !signatureMatches(expected, rec.Signature) {
		c.logger.WarnContext(ctx, "signature mismatch", "order_id", rec.OrderID)
		return nil, ErrSignatureMismatch
	}

	p, err := c.gateway.FetchPayment(ctx, rec.PaymentID)
	if err != nil {
		return nil, fmt.Errorf("fetching payment: %w", wrapGateway(err))
	}
	if p.OrderID != "" && p.OrderID != rec.OrderID {
		c.logger.WarnContext(ctx, "payment belongs to another order", "order_id", rec.OrderID)
		return nil, fmt.Errorf("%w: payment is not for order %s", ErrSignatureMismatch, rec.OrderID)
	}

	c.logger.InfoContext(ctx, "payment verified", "order_id", rec.OrderID, "method", p.Method)
	return &VerifiedPayment{
		PaymentID: rec.PaymentID,
		OrderID:   rec.OrderID,
		Status:    "success",
		Details:   detailsFor(p),
	}, nil
}

// PaymentMethods returns the methods enabled on the merchant account.
func (c *Coordinator) PaymentMethods(ctx context.Context) (map[string]any, error) {
	m, err := c.gateway.PaymentMethods(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing payment methods: %w", wrapGateway(err))
	}
	return m, nil
}

func detailsFor(p *Payment) PaymentDetails {
	d := PaymentDetails{Method: p.Method}
	switch p.Method {
	case "card":
		d.Card = p.Card
	case "netbanking":
		if p.Bank != "" {
			d.Bank = &p.Bank
		}
	case "wallet":
		if p.Wallet != "" {
			d.Wallet = &p.Wallet
		}
	case "upi":
		if p.VPA != "" {
			d.VPA = &p.VPA
		}
	}
	return d
}

// wrapGateway makes sure any gateway failure matches ErrGateway.
func wrapGateway(err error) error {
	if errors.Is(err, ErrGateway) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrGateway, err)
}
