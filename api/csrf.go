package api

import (
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/jmcleod/storefront/token"
)

// CSRFMiddleware rejects cookie-authenticated mutating requests whose Origin
// (or Referer) is neither this host nor an allowed origin. Safe methods and
// requests without the token cookie pass through, as do requests carrying
// neither header.
func (a *API) CSRFMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}
		if _, err := r.Cookie(token.CookieName); err != nil {
			next.ServeHTTP(w, r)
			return
		}

		origin := r.Header.Get("Origin")
		if origin == "" {
			if ref := r.Header.Get("Referer"); ref != "" {
				if u, err := url.Parse(ref); err == nil {
					origin = u.Scheme + "://" + u.Host
				}
			}
		}
		if origin != "" && !a.originAllowed(origin, r) {
			a.audit.logFailure(AuditTokenRejected, r, "origin_mismatch")
			writeError(w, http.StatusForbidden, "cross-site request rejected")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// originAllowed reports whether origin may make credentialed requests: the
// request's own host, a configured allowed origin, or any localhost origin
// outside production.
func (a *API) originAllowed(origin string, r *http.Request) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	if r != nil && strings.EqualFold(u.Host, r.Host) {
		return true
	}
	if slices.ContainsFunc(a.allowedOrigins, func(o string) bool {
		return strings.EqualFold(strings.TrimSuffix(o, "/"), origin)
	}) {
		return true
	}
	if a.environment != "production" {
		host := u.Hostname()
		return host == "localhost" || host == "127.0.0.1" || host == "::1"
	}
	return false
}
