package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jmcleod/storefront/token"
)

type contextKey int

const identityKey contextKey = iota

// AuthMiddleware authorizes the token cookie and stores the resolved
// identity on the request context. Every failure kind gets the same 401;
// the kind is recorded in the audit log only.
func (a *API) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := a.issuer.Authorize(r.Context(), r)
		if err != nil {
			if !token.IsAuthFailure(err) {
				writeInternalError(w, "authorizing request", err)
				return
			}
			a.audit.logFailure(AuditTokenRejected, r, token.Reason(err), slog.String("path", r.URL.Path))
			writeError(w, http.StatusUnauthorized, msgNotAuthorized)
			return
		}
		ctx := context.WithValue(r.Context(), identityKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AdminMiddleware must run after AuthMiddleware.
func (a *API) AdminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := identityFromContext(r.Context())
		if err := token.AuthorizeAdmin(id); err != nil {
			userID := ""
			if id != nil && id.User != nil {
				userID = id.User.ID
			}
			a.audit.logEvent(AuditAdminDenied, r, userID, slog.String("path", r.URL.Path))
			writeError(w, http.StatusUnauthorized, msgAdminRequired)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func identityFromContext(ctx context.Context) *token.Identity {
	id, _ := ctx.Value(identityKey).(*token.Identity)
	return id
}

func requestIsSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	if strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		return true
	}
	return strings.Contains(strings.ToLower(r.Header.Get("Forwarded")), "proto=https")
}
