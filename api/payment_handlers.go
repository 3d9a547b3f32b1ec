package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/jmcleod/storefront/payment"
)

// requirePayments answers 503 when no gateway credentials are configured.
func (a *API) requirePayments(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.payments == nil {
			writeError(w, http.StatusServiceUnavailable, "payments are not configured")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// PaymentConfig handles GET /payment/config. Only the public key id leaves
// the server.
func (a *API) PaymentConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, PaymentConfigResponse{RazorpayKeyID: a.payments.KeyID()})
}

// PaymentMethods handles GET /payment/methods.
func (a *API) PaymentMethods(w http.ResponseWriter, r *http.Request) {
	methods, err := a.payments.PaymentMethods(r.Context())
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, methods)
}

// CreatePaymentOrder handles POST /payment/order. Every call creates a new
// gateway order; clients never reuse one across attempts.
func (a *API) CreatePaymentOrder(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[CreateOrderRequest](w, r, maxPaymentBodySize)
	if !ok {
		return
	}
	ir := payment.IntentRequest{
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Notes:    req.Notes,
	}
	if req.Prefill != nil {
		ir.Prefill = payment.Prefill(*req.Prefill)
	}

	intent, err := a.payments.CreateIntent(r.Context(), ir)
	if err != nil {
		if errors.Is(err, payment.ErrGateway) {
			a.audit.logFailure(AuditPaymentOrderFailed, r, "gateway error",
				slog.Int64("amount", req.Amount))
		}
		mapError(w, err)
		return
	}

	resp := PaymentOrderResponse{
		Config:  payment.OrderConfig{Display: intent.Display},
		Prefill: intent.Prefill,
	}
	if intent.Order != nil {
		resp.Order = *intent.Order
	} else {
		resp.Order = payment.Order{
			ID:       intent.GatewayOrderID,
			Amount:   intent.Amount,
			Currency: intent.Currency,
			Receipt:  intent.Receipt,
			Status:   intent.Status,
			Notes:    intent.Notes,
		}
	}
	a.audit.log(AuditPaymentOrderCreated, r,
		slog.String("order_id", intent.GatewayOrderID),
		slog.Int64("amount", intent.Amount),
		slog.String("currency", intent.Currency))
	writeJSON(w, http.StatusCreated, resp)
}

// ValidatePayment handles POST /payment/validate.
func (a *API) ValidatePayment(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[ValidatePaymentRequest](w, r, maxPaymentBodySize)
	if !ok {
		return
	}

	vp, err := a.payments.Verify(r.Context(), payment.VerificationRecord{
		OrderID:   req.OrderID,
		PaymentID: req.PaymentID,
		Signature: req.Signature,
	})
	if err != nil {
		if errors.Is(err, payment.ErrSignatureMismatch) {
			a.audit.logFailure(AuditSignatureMismatch, r, "signature mismatch",
				slog.String("order_id", req.OrderID))
		}
		mapError(w, err)
		return
	}

	a.audit.log(AuditPaymentVerified, r,
		slog.String("order_id", vp.OrderID),
		slog.String("payment_id", vp.PaymentID),
		slog.String("method", vp.Details.Method))
	writeJSON(w, http.StatusCreated, PaymentResultResponse{
		ID:            vp.PaymentID,
		Status:        vp.Status,
		Message:       "Payment successful",
		PaymentMethod: vp.Details.Method,
		Details:       vp.Details,
	})
}
