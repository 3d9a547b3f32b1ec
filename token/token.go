// Package token issues and verifies the storefront session token: an HS256
// JWT bound to a user ID, delivered in an HTTP-only cookie.
package token

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/awnumar/memguard"
	"github.com/golang-jwt/jwt/v5"

	"github.com/jmcleod/storefront/users"
)

const (
	// DefaultTTL is the token lifetime for an ordinary login.
	DefaultTTL = 7 * 24 * time.Hour
	// RememberTTL is the token lifetime when the user asked to be remembered.
	RememberTTL = 30 * 24 * time.Hour
)

// TTL returns the token lifetime for the given remember-me choice.
func TTL(rememberMe bool) time.Duration {
	if rememberMe {
		return RememberTTL
	}
	return DefaultTTL
}

// Claims is the JWT payload: the registered claims plus the user ID and the
// remember-me choice, which refresh preserves.
type Claims struct {
	jwt.RegisteredClaims
	UserID   string `json:"userId"`
	Remember bool   `json:"remember,omitempty"`
}

// Issued describes a freshly minted token.
type Issued struct {
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Remember  bool
}

// Identity is the result of a successful authorization.
type Identity struct {
	User      *users.User
	Remember  bool
	ExpiresAt time.Time
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithClock overrides the time source used for minting and validation.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

// WithCookiePolicy sets the Secure/SameSite policy for the token cookie.
func WithCookiePolicy(p CookiePolicy) Option {
	return func(i *Issuer) { i.cookies = p }
}

// Issuer mints tokens, sets them as cookies and authorizes requests.
// It holds no per-request state and is safe for concurrent use.
type Issuer struct {
	secret  *memguard.Enclave
	dir     users.Directory
	cookies CookiePolicy
	now     func() time.Time
}

// NewIssuer creates an Issuer. The secret is sealed into an enclave and the
// caller's slice is wiped.
func NewIssuer(secret []byte, dir users.Directory, opts ...Option) (*Issuer, error) {
	if len(secret) == 0 {
		return nil, errors.New("token secret must not be empty")
	}
	i := &Issuer{
		secret:  memguard.NewEnclave(secret),
		dir:     dir,
		cookies: CookiePolicy{Topology: SameOrigin},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

func (i *Issuer) withKey(fn func(key []byte) error) error {
	buf, err := i.secret.Open()
	if err != nil {
		return fmt.Errorf("opening token secret: %w", err)
	}
	defer buf.Destroy()
	return fn(buf.Bytes())
}

// Mint signs a token for userID without touching any response.
func (i *Issuer) Mint(userID string, rememberMe bool) (Issued, error) {
	if userID == "" {
		return Issued{}, errors.New("user id is required")
	}
	now := i.now()
	exp := now.Add(TTL(rememberMe))
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		UserID:   userID,
		Remember: rememberMe,
	}

	var signed string
	err := i.withKey(func(key []byte) error {
		var err error
		signed, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
		return err
	})
	if err != nil {
		return Issued{}, fmt.Errorf("signing token: %w", err)
	}
	// NumericDate truncates to seconds; report what the token actually carries.
	return Issued{
		Token:     signed,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
		Remember:  rememberMe,
	}, nil
}

// Issue mints a token for userID and sets it as the session cookie.
func (i *Issuer) Issue(w http.ResponseWriter, userID string, rememberMe bool) (Issued, error) {
	issued, err := i.Mint(userID, rememberMe)
	if err != nil {
		return Issued{}, err
	}
	i.cookies.write(w, issued.Token, TTL(rememberMe))
	return issued, nil
}

// Clear expires the session cookie.
func (i *Issuer) Clear(w http.ResponseWriter) {
	i.cookies.clear(w)
}

// Parse verifies signature and expiry and returns the claims.
func (i *Issuer) Parse(raw string) (*Claims, error) {
	if raw == "" {
		return nil, ErrTokenMissing
	}
	claims := &Claims{}
	err := i.withKey(func(key []byte) error {
		_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
			return key, nil
		},
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithTimeFunc(i.now),
		)
		return err
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
	default:
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: no user id claim", ErrTokenMalformed)
	}
	return claims, nil
}

// Authorize validates the request's token cookie and resolves the embedded
// user. It has no side effects.
func (i *Issuer) Authorize(ctx context.Context, r *http.Request) (*Identity, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return nil, ErrTokenMissing
	}
	return i.AuthorizeToken(ctx, cookie.Value)
}

// AuthorizeToken is Authorize for a raw token string.
func (i *Issuer) AuthorizeToken(ctx context.Context, raw string) (*Identity, error) {
	claims, err := i.Parse(raw)
	if err != nil {
		return nil, err
	}
	u, err := i.dir.Get(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, claims.UserID)
		}
		return nil, fmt.Errorf("resolving token user: %w", err)
	}
	return &Identity{
		User:      u,
		Remember:  claims.Remember,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// AuthorizeAdmin requires an authorized identity with admin rights.
func AuthorizeAdmin(id *Identity) error {
	if id == nil || id.User == nil || !id.User.IsAdmin {
		return ErrForbidden
	}
	return nil
}
