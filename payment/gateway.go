package payment

import "context"

// OrderRequest is the body of a gateway order creation call.
type OrderRequest struct {
	Amount         int64             `json:"amount"`
	Currency       string            `json:"currency"`
	Receipt        string            `json:"receipt,omitempty"`
	Notes          map[string]string `json:"notes,omitempty"`
	PaymentCapture int               `json:"payment_capture"`
	Config         *OrderConfig      `json:"config,omitempty"`
}

// OrderConfig wraps the checkout display configuration sent with an order.
type OrderConfig struct {
	Display Display `json:"display"`
}

// Order is the gateway's order entity.
type Order struct {
	ID         string            `json:"id"`
	Entity     string            `json:"entity"`
	Amount     int64             `json:"amount"`
	AmountPaid int64             `json:"amount_paid"`
	AmountDue  int64             `json:"amount_due"`
	Currency   string            `json:"currency"`
	Receipt    string            `json:"receipt"`
	Status     string            `json:"status"`
	Attempts   int               `json:"attempts"`
	Notes      map[string]string `json:"notes"`
	CreatedAt  int64             `json:"created_at"`
}

// Card holds the card sub-details of a payment.
type Card struct {
	ID      string `json:"id,omitempty"`
	Last4   string `json:"last4,omitempty"`
	Network string `json:"network,omitempty"`
	Type    string `json:"type,omitempty"`
	Issuer  string `json:"issuer,omitempty"`
}

// Payment is the gateway's payment entity, reduced to the fields used here.
type Payment struct {
	ID       string `json:"id"`
	OrderID  string `json:"order_id"`
	Status   string `json:"status"`
	Method   string `json:"method"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Card     *Card  `json:"card,omitempty"`
	Bank     string `json:"bank,omitempty"`
	Wallet   string `json:"wallet,omitempty"`
	VPA      string `json:"vpa,omitempty"`
}

// Gateway is the subset of the payment gateway API the Coordinator uses.
type Gateway interface {
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
	FetchPayment(ctx context.Context, paymentID string) (*Payment, error)
	PaymentMethods(ctx context.Context) (map[string]any, error)
}
