package token

import (
	"fmt"
	"net/http"
	"time"
)

// CookieName is the name of the HTTP-only cookie carrying the session token.
const CookieName = "jwt"

// Topology describes how the storefront client and API are deployed
// relative to each other.
type Topology string

const (
	// SameOrigin serves the client and API from one origin.
	SameOrigin Topology = "same-origin"
	// CrossOrigin serves them from different origins. Browsers only send
	// the cookie on cross-site requests when SameSite=None and Secure.
	CrossOrigin Topology = "cross-origin"
)

// ParseTopology validates a topology name from configuration.
func ParseTopology(s string) (Topology, error) {
	switch Topology(s) {
	case SameOrigin, CrossOrigin:
		return Topology(s), nil
	case "":
		return SameOrigin, nil
	}
	return "", fmt.Errorf("unknown cookie topology %q (want %q or %q)", s, SameOrigin, CrossOrigin)
}

// CookiePolicy selects Secure and SameSite attributes for the token cookie.
//
// Same-origin deployments use SameSite=Strict and mark the cookie Secure only
// in production, so plain-HTTP local development keeps working. Cross-origin
// deployments must relax SameSite to None, which browsers accept only on
// Secure cookies.
type CookiePolicy struct {
	Topology   Topology
	Production bool
}

func (p CookiePolicy) attributes() (secure bool, sameSite http.SameSite) {
	if p.Topology == CrossOrigin {
		return true, http.SameSiteNoneMode
	}
	return p.Production, http.SameSiteStrictMode
}

func (p CookiePolicy) write(w http.ResponseWriter, value string, ttl time.Duration) {
	secure, sameSite := p.attributes()
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: sameSite,
		MaxAge:   int(ttl / time.Second),
	})
}

func (p CookiePolicy) clear(w http.ResponseWriter) {
	secure, sameSite := p.attributes()
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: sameSite,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
}
