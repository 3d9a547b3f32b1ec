// Package client is the storefront's first-party client: it keeps the
// authenticated session, refreshes the token before it lapses, forces a
// logout when the API reports the session gone, and drives checkout.
package client

import "time"

// Session is the client-visible authenticated identity.
type Session struct {
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	Email       string    `json:"email"`
	IsAdmin     bool      `json:"isAdmin"`
	Remember    bool      `json:"remember,omitempty"`
	IssuedAt    time.Time `json:"issuedAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Reason records why a session was cleared.
type Reason string

const (
	ReasonLogout        Reason = "logout"
	ReasonExpired       Reason = "expired"
	ReasonUnauthorized  Reason = "unauthorized"
	ReasonRefreshFailed Reason = "refresh_failed"
	// ReasonExternal means another holder of the same store removed the
	// session, for example a logout in another tab.
	ReasonExternal Reason = "external"
)

// ExpiredMessage is shown to the user when the session ends without an
// explicit logout.
const ExpiredMessage = "Your session has expired. Please login again."
