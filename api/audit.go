package api

import (
	"log/slog"
	"net/http"
	"time"
)

// AuditEvent identifies the type of security-relevant action being logged.
type AuditEvent string

const (
	AuditLoginSuccess        AuditEvent = "login_success"
	AuditLoginFailure        AuditEvent = "login_failure"
	AuditLoginRateLimited    AuditEvent = "login_rate_limited"
	AuditLogout              AuditEvent = "logout"
	AuditTokenRefreshed      AuditEvent = "token_refreshed"
	AuditTokenRejected       AuditEvent = "token_rejected"
	AuditAdminDenied         AuditEvent = "admin_denied"
	AuditProfileUpdated      AuditEvent = "profile_updated"
	AuditPaymentOrderCreated AuditEvent = "payment_order_created"
	AuditPaymentOrderFailed  AuditEvent = "payment_order_failed"
	AuditPaymentVerified     AuditEvent = "payment_verified"
	AuditSignatureMismatch   AuditEvent = "payment_signature_mismatch"
)

// auditLogger wraps slog.Logger for structured security audit logging.
// Entries never carry passwords, tokens or signatures.
type auditLogger struct {
	logger  *slog.Logger
	metrics *metricsCollector
	webhook *auditWebhook
	now     func() time.Time
}

func newAuditLogger(logger *slog.Logger) *auditLogger {
	return &auditLogger{
		logger: logger.With("component", "audit"),
		now:    time.Now,
	}
}

func (al *auditLogger) log(event AuditEvent, r *http.Request, attrs ...slog.Attr) {
	ts := al.now().UTC().Format(time.RFC3339)
	base := []slog.Attr{
		slog.String("event", string(event)),
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("timestamp", ts),
	}
	al.logger.LogAttrs(r.Context(), slog.LevelInfo, "audit", append(base, attrs...)...)

	if al.metrics != nil {
		al.metrics.recordEvent(event)
	}
	if al.webhook != nil {
		evt := webhookEvent{
			Event:      string(event),
			RemoteAddr: r.RemoteAddr,
			Timestamp:  ts,
		}
		for _, a := range attrs {
			if a.Key == "user_id" {
				evt.UserID = a.Value.String()
				continue
			}
			if evt.Attrs == nil {
				evt.Attrs = make(map[string]string, len(attrs))
			}
			evt.Attrs[a.Key] = a.Value.String()
		}
		al.webhook.enqueue(evt)
	}
}

// logEvent is a convenience for events with a known user.
func (al *auditLogger) logEvent(event AuditEvent, r *http.Request, userID string, extra ...slog.Attr) {
	al.log(event, r, append([]slog.Attr{slog.String("user_id", userID)}, extra...)...)
}

// logFailure logs a rejected request with a short reason label.
func (al *auditLogger) logFailure(event AuditEvent, r *http.Request, reason string, extra ...slog.Attr) {
	al.log(event, r, append([]slog.Attr{slog.String("reason", reason)}, extra...)...)
}

func (al *auditLogger) close() {
	if al.webhook != nil {
		al.webhook.close()
	}
}
