package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const apiPrefix = "/api/v1"

// APIClient calls the storefront API. The session cookie lives in its
// cookie jar; every response is passed to the Observer, if one is set.
type APIClient struct {
	base     *url.URL
	http     *http.Client
	observer Observer
	logger   *slog.Logger
}

// APIOption configures an APIClient.
type APIOption func(*APIClient)

// WithHTTPClient replaces the HTTP client. Its Jar is kept if set.
func WithHTTPClient(c *http.Client) APIOption {
	return func(a *APIClient) { a.http = c }
}

// WithAPILogger sets the logger.
func WithAPILogger(l *slog.Logger) APIOption {
	return func(a *APIClient) { a.logger = l }
}

// NewAPIClient returns a client for the API served at baseURL.
func NewAPIClient(baseURL string, opts ...APIOption) (*APIClient, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}
	a := &APIClient{
		base:   u,
		http:   &http.Client{Timeout: 30 * time.Second},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.http.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		a.http.Jar = jar
	}
	return a, nil
}

// SetObserver installs the request observer, normally the Manager. It is
// set after construction because the Manager itself uses the client.
func (a *APIClient) SetObserver(o Observer) {
	a.observer = o
}

// Cookies returns the cookies the jar would send to the API.
func (a *APIClient) Cookies() []*http.Cookie {
	return a.http.Jar.Cookies(a.base)
}

// SetCookies seeds the jar, used to carry a token between CLI runs.
func (a *APIClient) SetCookies(cookies []*http.Cookie) {
	a.http.Jar.SetCookies(a.base, cookies)
}

type sessionPayload struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	IsAdmin   bool   `json:"isAdmin"`
	Remember  bool   `json:"remember"`
	IssuedAt  int64  `json:"issuedAt"`
	ExpiresAt int64  `json:"expiresAt"`
}

func (p sessionPayload) session() Session {
	s := Session{
		UserID:      p.ID,
		DisplayName: p.Name,
		Email:       p.Email,
		IsAdmin:     p.IsAdmin,
		Remember:    p.Remember,
	}
	if p.IssuedAt > 0 {
		s.IssuedAt = time.UnixMilli(p.IssuedAt)
	}
	if p.ExpiresAt > 0 {
		s.ExpiresAt = time.UnixMilli(p.ExpiresAt)
	}
	return s
}

// Login authenticates and returns the server's view of the new session.
func (a *APIClient) Login(ctx context.Context, email, password string, rememberMe bool) (Session, error) {
	in := map[string]any{"email": email, "password": password, "remember": rememberMe}
	var out sessionPayload
	if err := a.do(ctx, http.MethodPost, "/users/login", in, &out); err != nil {
		return Session{}, err
	}
	return out.session(), nil
}

// RefreshToken re-issues the session cookie.
func (a *APIClient) RefreshToken(ctx context.Context) (Session, error) {
	var out sessionPayload
	if err := a.do(ctx, http.MethodPost, "/users/refresh-token", nil, &out); err != nil {
		return Session{}, err
	}
	return out.session(), nil
}

// Logout asks the server to clear the cookie. When the server cannot be
// reached the logout has still completed locally, so nil is returned.
func (a *APIClient) Logout(ctx context.Context) error {
	err := a.do(ctx, http.MethodPost, "/users/logout", nil, nil)
	if errors.Is(err, ErrUnavailable) {
		a.logger.Info("logout completed locally", "error", err)
		return nil
	}
	return err
}

// Profile returns the current user's profile.
func (a *APIClient) Profile(ctx context.Context) (Session, error) {
	var out sessionPayload
	if err := a.do(ctx, http.MethodGet, "/users/profile", nil, &out); err != nil {
		return Session{}, err
	}
	return out.session(), nil
}

// ProfileUpdate holds the fields to change; empty fields are left alone.
type ProfileUpdate struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password,omitempty"`
}

// UpdateProfile changes the current user's profile.
func (a *APIClient) UpdateProfile(ctx context.Context, upd ProfileUpdate) (Session, error) {
	var out sessionPayload
	if err := a.do(ctx, http.MethodPut, "/users/profile", upd, &out); err != nil {
		return Session{}, err
	}
	return out.session(), nil
}

// Health is the API health report.
type Health struct {
	Status      string  `json:"status"`
	Timestamp   string  `json:"timestamp"`
	Environment string  `json:"environment"`
	Uptime      float64 `json:"uptime"`
}

// Health calls the health endpoint.
func (a *APIClient) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := a.do(ctx, http.MethodGet, "/health", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

type errorBody struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

func (a *APIClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	if a.observer != nil {
		ctx = a.observer.BeginRequest(ctx)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.base.String()+apiPrefix+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w: %v", method, path, ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if a.observer != nil {
		a.observer.ObserveResponse(req, resp)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s %s: %w: reading response: %v", method, path, ErrUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var eb errorBody
		if json.Unmarshal(data, &eb) == nil {
			apiErr.Message = eb.Error
			if apiErr.Message == "" {
				apiErr.Message = eb.Message
			}
			apiErr.Retryable = eb.Retryable
		}
		return apiErr
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s %s: decoding response: %w", method, path, err)
	}
	return nil
}
