package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const userAgent = "Storefront-Payments/1.0"

// RazorpayGateway talks to the Razorpay REST API with HTTP basic auth.
type RazorpayGateway struct {
	cfg    Config
	base   string
	client *http.Client
}

// GatewayOption configures a RazorpayGateway.
type GatewayOption func(*RazorpayGateway)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) GatewayOption {
	return func(g *RazorpayGateway) { g.client = c }
}

// NewRazorpayGateway returns a gateway client for cfg.
func NewRazorpayGateway(cfg Config, opts ...GatewayOption) (*RazorpayGateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	g := &RazorpayGateway{
		cfg:    cfg,
		base:   strings.TrimRight(base, "/"),
		client: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// CreateOrder calls POST /v1/orders.
func (g *RazorpayGateway) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	var order Order
	if err := g.do(ctx, "create order", http.MethodPost, "/v1/orders", req, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// FetchPayment calls GET /v1/payments/{id}.
func (g *RazorpayGateway) FetchPayment(ctx context.Context, paymentID string) (*Payment, error) {
	var p Payment
	path := "/v1/payments/" + url.PathEscape(paymentID)
	if err := g.do(ctx, "fetch payment", http.MethodGet, path, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// PaymentMethods calls GET /v1/methods and returns the raw method map.
func (g *RazorpayGateway) PaymentMethods(ctx context.Context) (map[string]any, error) {
	var methods map[string]any
	if err := g.do(ctx, "payment methods", http.MethodGet, "/v1/methods", nil, &methods); err != nil {
		return nil, err
	}
	return methods, nil
}

type gatewayErrorBody struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

func (g *RazorpayGateway) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encoding request: %w", op, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.base+path, body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if err := g.cfg.withSecret(func(secret []byte) error {
		req.SetBasicAuth(g.cfg.KeyID, string(secret))
		return nil
	}); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w: %v", op, ErrGateway, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s: %w: reading response: %v", op, ErrGateway, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		gerr := &GatewayError{Op: op, Status: resp.StatusCode}
		var eb gatewayErrorBody
		if json.Unmarshal(data, &eb) == nil {
			gerr.Code = eb.Error.Code
			gerr.Description = eb.Error.Description
		}
		return gerr
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: %w: decoding response: %v", op, ErrGateway, err)
	}
	return nil
}
