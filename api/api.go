// Package api serves the storefront REST surface: session issuance for
// users, the payment order and verification endpoints, and health.
package api

import (
	_ "embed"
	"log/slog"
	"net/http"
	"net/netip"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-openapi/runtime/middleware"

	"github.com/jmcleod/storefront/payment"
	"github.com/jmcleod/storefront/token"
	"github.com/jmcleod/storefront/users"
)

// API holds the dependencies needed by the REST handlers.
type API struct {
	dir      users.Directory
	issuer   *token.Issuer
	payments *payment.Coordinator

	limiter        *loginLimiter
	audit          *auditLogger
	logger         *slog.Logger
	webhookURL     string
	webhookHeader  string
	alertFn        AlertFunc
	trustedProxies []netip.Prefix
	allowedOrigins []string
	environment    string
	startedAt      time.Time
	now            func() time.Time
}

//go:embed openapi.yaml
var openapiSpec []byte

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger for audit events.
// If not set, a JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		a.logger = logger
	}
}

// WithPayments enables the /payment routes. Without it they answer 503.
func WithPayments(c *payment.Coordinator) Option {
	return func(a *API) {
		a.payments = c
	}
}

// WithEnvironment names the deployment environment reported by /health.
// Outside "production" any localhost origin may make credentialed requests.
func WithEnvironment(env string) Option {
	return func(a *API) {
		a.environment = env
	}
}

// WithAllowedOrigins sets the origins allowed to make credentialed
// cross-origin requests.
func WithAllowedOrigins(origins []string) Option {
	return func(a *API) {
		a.allowedOrigins = origins
	}
}

// WithAlertFunc registers a callback for anomaly alerts such as login
// failure or signature mismatch spikes.
func WithAlertFunc(fn AlertFunc) Option {
	return func(a *API) {
		a.alertFn = fn
	}
}

// WithAuditWebhook forwards every audit event to url. authHeader is an
// optional "Name: value" header sent with each delivery.
func WithAuditWebhook(url, authHeader string) Option {
	return func(a *API) {
		a.webhookURL = url
		a.webhookHeader = authHeader
	}
}

// New creates a new API instance.
func New(dir users.Directory, issuer *token.Issuer, opts ...Option) *API {
	a := &API{
		dir:         dir,
		issuer:      issuer,
		limiter:     newLoginLimiter(),
		environment: "development",
		startedAt:   time.Now(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	a.audit = newAuditLogger(a.logger)
	if a.webhookURL != "" {
		a.audit.webhook = newAuditWebhook(a.webhookURL, a.webhookHeader)
	}
	if a.alertFn != nil {
		a.audit.metrics = newMetricsCollector(a.alertFn)
	}
	return a
}

// Close flushes pending audit webhook deliveries.
func (a *API) Close() {
	a.audit.close()
}

// SweepLimiters drops stale rate-limit records. The server calls it
// periodically.
func (a *API) SweepLimiters() {
	a.limiter.sweep()
}

// Router returns a chi.Router with all API routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})

	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/docs",
	}, nil))

	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/redoc",
	}, nil))

	r.Get("/health", a.Health)

	r.Route("/users", func(r chi.Router) {
		r.Use(a.CSRFMiddleware)
		r.Post("/login", a.Login)
		r.Post("/logout", a.Logout)

		r.Group(func(r chi.Router) {
			r.Use(a.AuthMiddleware)
			r.Post("/refresh-token", a.RefreshToken)
			r.Get("/profile", a.GetProfile)
			r.Put("/profile", a.UpdateProfile)
			r.With(a.AdminMiddleware).Get("/", a.ListUsers)
		})
	})

	r.Route("/payment", func(r chi.Router) {
		r.Use(a.CSRFMiddleware)
		r.Use(a.requirePayments)
		r.Get("/config", a.PaymentConfig)
		r.Get("/methods", a.PaymentMethods)
		r.Post("/order", a.CreatePaymentOrder)
		r.Post("/validate", a.ValidatePayment)
	})

	return r
}

// Handler wraps Router with the server middleware stack and mounts it under
// /api/v1. static, when non-nil, serves every other path.
func (a *API) Handler(static http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(SecurityHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowOriginFunc: func(r *http.Request, origin string) bool {
			return a.originAllowed(origin, nil)
		},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Retry-After", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Mount("/api/v1", a.Router())
	if static != nil {
		r.Handle("/*", static)
	}
	return r
}
