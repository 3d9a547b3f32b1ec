package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jmcleod/storefront/token"
	"github.com/jmcleod/storefront/users"
)

const minPasswordLen = 6

func sessionResponse(u *users.User, issued *token.Issued, remember bool) SessionResponse {
	resp := SessionResponse{
		ID:       u.ID,
		Name:     u.Name,
		Email:    u.Email,
		IsAdmin:  u.IsAdmin,
		Remember: remember,
	}
	if issued != nil {
		resp.Remember = issued.Remember
		resp.IssuedAt = issued.IssuedAt.UnixMilli()
		resp.ExpiresAt = issued.ExpiresAt.UnixMilli()
	}
	return resp
}

// Login handles POST /users/login.
func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[LoginRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}
	email := users.NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	clientIP := a.clientIP(r)
	if blocked, retryAfter, scope := a.limiter.check(email, clientIP); blocked {
		a.audit.logFailure(AuditLoginRateLimited, r, scope+" rate limited",
			slog.String("client_ip", clientIP))
		writeRateLimited(w, retryAfter)
		return
	}

	u, err := users.Authenticate(r.Context(), a.dir, email, req.Password)
	if err != nil {
		if !errors.Is(err, users.ErrInvalidCredentials) {
			writeInternalError(w, "failed to authenticate", err)
			return
		}
		a.limiter.recordFailure(email, clientIP)
		a.audit.logFailure(AuditLoginFailure, r, "invalid credentials",
			slog.String("client_ip", clientIP))
		mapError(w, err)
		return
	}
	a.limiter.recordSuccess(email, clientIP)

	issued, err := a.issuer.Issue(w, u.ID, req.Remember)
	if err != nil {
		writeInternalError(w, "failed to issue token", err)
		return
	}
	a.audit.logEvent(AuditLoginSuccess, r, u.ID, slog.Bool("remember", issued.Remember))
	writeJSON(w, http.StatusOK, sessionResponse(u, &issued, issued.Remember))
}

// Logout handles POST /users/logout. It always succeeds, with or without a
// valid token, so a client can always reach a clean signed-out state.
func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	userID := ""
	if id, err := a.issuer.Authorize(r.Context(), r); err == nil {
		userID = id.User.ID
	}
	a.issuer.Clear(w)
	a.audit.logEvent(AuditLogout, r, userID)
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Logged out successfully"})
}

// RefreshToken handles POST /users/refresh-token. The new token keeps the
// remember choice of the one it replaces.
func (a *API) RefreshToken(w http.ResponseWriter, r *http.Request) {
	id := identityFromContext(r.Context())
	issued, err := a.issuer.Issue(w, id.User.ID, id.Remember)
	if err != nil {
		writeInternalError(w, "failed to refresh token", err)
		return
	}
	a.audit.logEvent(AuditTokenRefreshed, r, id.User.ID,
		slog.String("expires_at", issued.ExpiresAt.UTC().Format(time.RFC3339)))
	writeJSON(w, http.StatusOK, sessionResponse(id.User, &issued, id.Remember))
}

// GetProfile handles GET /users/profile.
func (a *API) GetProfile(w http.ResponseWriter, r *http.Request) {
	id := identityFromContext(r.Context())
	resp := sessionResponse(id.User, nil, id.Remember)
	resp.ExpiresAt = id.ExpiresAt.UnixMilli()
	writeJSON(w, http.StatusOK, resp)
}

// UpdateProfile handles PUT /users/profile.
func (a *API) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	id := identityFromContext(r.Context())
	req, ok := decodeJSON[UpdateProfileRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}

	u := *id.User
	var changed []string
	if name := strings.TrimSpace(req.Name); name != "" && name != u.Name {
		u.Name = name
		changed = append(changed, "name")
	}
	if email := users.NormalizeEmail(req.Email); email != "" && email != u.Email {
		u.Email = email
		changed = append(changed, "email")
	}
	if req.Password != "" {
		if len(req.Password) < minPasswordLen {
			writeError(w, http.StatusBadRequest, "password must be at least 6 characters")
			return
		}
		hash, err := users.HashPassword(req.Password)
		if err != nil {
			writeInternalError(w, "failed to hash password", err)
			return
		}
		u.PasswordHash = hash
		changed = append(changed, "password")
	}

	if len(changed) > 0 {
		u.UpdatedAt = a.now().UTC()
		if err := a.dir.Update(r.Context(), &u); err != nil {
			mapError(w, err)
			return
		}
		a.audit.logEvent(AuditProfileUpdated, r, u.ID,
			slog.String("fields", strings.Join(changed, ",")))
	}

	resp := sessionResponse(&u, nil, id.Remember)
	resp.ExpiresAt = id.ExpiresAt.UnixMilli()
	writeJSON(w, http.StatusOK, resp)
}

// ListUsers handles GET /users (admin only).
func (a *API) ListUsers(w http.ResponseWriter, r *http.Request) {
	all, err := a.dir.List(r.Context())
	if err != nil {
		writeInternalError(w, "failed to list users", err)
		return
	}
	page, meta := paginate(r, all)

	resp := ListUsersResponse{
		Users:          make([]UserSummary, 0, len(page)),
		PaginationMeta: meta,
	}
	for _, u := range page {
		resp.Users = append(resp.Users, UserSummary{
			ID:        u.ID,
			Name:      u.Name,
			Email:     u.Email,
			IsAdmin:   u.IsAdmin,
			CreatedAt: u.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
