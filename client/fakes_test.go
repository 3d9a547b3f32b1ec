package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmcleod/storefront/payment"
)

// fakeClock fires timers synchronously from Advance.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// pending counts timers that have neither fired nor been stopped.
func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// Advance moves time forward by d, firing due timers in deadline order.
// Timers armed by callbacks fire too if they fall inside the window.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var due []*fakeTimer
		for _, t := range c.timers {
			if !t.stopped && !t.fired && !t.at.After(target) {
				due = append(due, t)
			}
		}
		if len(due) == 0 {
			c.now = target
			c.mu.Unlock()
			return
		}
		sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
		next := due[0]
		next.fired = true
		if next.at.After(c.now) {
			c.now = next.at
		}
		c.mu.Unlock()
		next.f()
	}
}

type fakeRefresher struct {
	mu    sync.Mutex
	calls int
	next  func() (Session, error)
}

func (r *fakeRefresher) RefreshToken(context.Context) (Session, error) {
	r.mu.Lock()
	r.calls++
	next := r.next
	r.mu.Unlock()
	return next()
}

func (r *fakeRefresher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type fakeLogouter struct {
	calls atomic.Int32
	err   error
	// during runs inside the call, while the server is still answering.
	during func()
}

func (l *fakeLogouter) Logout(context.Context) error {
	l.calls.Add(1)
	if l.during != nil {
		l.during()
	}
	return l.err
}

type recorder struct {
	mu        sync.Mutex
	messages  []string
	redirects int
}

func (r *recorder) Notify(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
}

func (r *recorder) RedirectToLogin() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.redirects++
}

func (r *recorder) snapshot() ([]string, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...), r.redirects
}

// fakeAPI is a minimal storefront API for exercising APIClient and Checkout.
type fakeAPI struct {
	*httptest.Server

	secret        []byte
	logoutCalls   atomic.Int32
	profileStatus atomic.Int32
	orderStatus   atomic.Int32
	orders        atomic.Int32
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	f := &fakeAPI{secret: []byte("gateway-secret")}
	f.profileStatus.Store(http.StatusOK)
	f.orderStatus.Store(http.StatusCreated)

	writeJSON := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}
	session := map[string]any{
		"id": "u1", "name": "Shopper", "email": "shopper@example.com",
		"isAdmin": false, "remember": true,
		"issuedAt":  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).UnixMilli(),
		"expiresAt": time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC).UnixMilli(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/users/login", func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Email, Password string
		}
		_ = json.NewDecoder(r.Body).Decode(&in)
		if in.Password != "pw" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid email or password"})
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "jwt", Value: "tok", Path: "/", HttpOnly: true})
		writeJSON(w, http.StatusOK, session)
	})
	mux.HandleFunc("POST /api/v1/users/refresh-token", func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("jwt"); err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authorized"})
			return
		}
		writeJSON(w, http.StatusOK, session)
	})
	mux.HandleFunc("POST /api/v1/users/logout", func(w http.ResponseWriter, r *http.Request) {
		f.logoutCalls.Add(1)
		http.SetCookie(w, &http.Cookie{Name: "jwt", Value: "", Path: "/", MaxAge: -1})
		writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
	})
	mux.HandleFunc("GET /api/v1/users/profile", func(w http.ResponseWriter, r *http.Request) {
		status := int(f.profileStatus.Load())
		if status != http.StatusOK {
			// Widen the window in which concurrent callers all see the 401.
			time.Sleep(20 * time.Millisecond)
			writeJSON(w, status, map[string]string{"error": "not authorized"})
			return
		}
		writeJSON(w, http.StatusOK, session)
	})
	mux.HandleFunc("GET /api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "OK", "environment": "test", "uptime": 1.5})
	})
	mux.HandleFunc("GET /api/v1/payment/config", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"razorpayKeyId": "rzp_test_key"})
	})
	mux.HandleFunc("POST /api/v1/payment/order", func(w http.ResponseWriter, r *http.Request) {
		if status := int(f.orderStatus.Load()); status != http.StatusCreated {
			writeJSON(w, status, map[string]any{"error": "payment gateway unavailable", "retryable": true})
			return
		}
		var in CheckoutRequest
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		n := f.orders.Add(1)
		writeJSON(w, http.StatusCreated, map[string]any{
			"id":       "order_" + string(rune('0'+n)),
			"amount":   in.Amount,
			"currency": in.Currency,
			"status":   "created",
			"config":   map[string]any{"display": payment.DefaultDisplay()},
			"prefill":  in.Prefill,
		})
	})
	mux.HandleFunc("POST /api/v1/payment/validate", func(w http.ResponseWriter, r *http.Request) {
		var cb Callback
		_ = json.NewDecoder(r.Body).Decode(&cb)
		if payment.Sign(f.secret, cb.OrderID, cb.PaymentID) != cb.Signature {
			writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": "Payment verification failed"})
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"id":              cb.PaymentID,
			"status":          "success",
			"message":         "Payment successful",
			"payment_method":  "upi",
			"payment_details": map[string]any{"method": "upi", "vpa": "shopper@upi"},
		})
	})
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

// fakeSurface pays (or dismisses) immediately.
type fakeSurface struct {
	secret    []byte
	dismiss   bool
	tamper    bool
	paymentID string
	seen      CheckoutOptions
}

func (s *fakeSurface) Open(_ context.Context, opts CheckoutOptions) (Callback, error) {
	s.seen = opts
	if s.dismiss {
		return Callback{}, ErrDismissed
	}
	pid := s.paymentID
	if pid == "" {
		pid = "pay_1"
	}
	sig := payment.Sign(s.secret, opts.OrderID, pid)
	if s.tamper {
		pid += "x"
	}
	return Callback{OrderID: opts.OrderID, PaymentID: pid, Signature: sig}, nil
}
