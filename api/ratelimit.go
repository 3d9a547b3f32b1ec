package api

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"
)

// backoffPolicy configures a backoffLimiter.
type backoffPolicy struct {
	// maxFailures is the number of consecutive failures before lockout begins.
	maxFailures int
	baseLockout time.Duration
	maxLockout  time.Duration
	// expiry is how long after the last failure a record is forgotten.
	expiry time.Duration
}

var (
	// Login failures per normalized e-mail. The key is never a password or
	// token, so limiter state holds nothing secret.
	emailBackoff = backoffPolicy{
		maxFailures: 5,
		baseLockout: 1 * time.Minute,
		maxLockout:  15 * time.Minute,
		expiry:      1 * time.Hour,
	}
	// Login failures per source IP.
	ipBackoff = backoffPolicy{
		maxFailures: 20,
		baseLockout: 1 * time.Minute,
		maxLockout:  30 * time.Minute,
		expiry:      1 * time.Hour,
	}
)

// backoffLimiter tracks consecutive failures per key and enforces
// exponential lockout once policy.maxFailures is reached.
type backoffLimiter struct {
	mu       sync.Mutex
	policy   backoffPolicy
	attempts map[string]*attemptRecord
	now      func() time.Time
}

type attemptRecord struct {
	failures    int
	lastFailure time.Time
	lockedUntil time.Time
}

func newBackoffLimiter(policy backoffPolicy) *backoffLimiter {
	return &backoffLimiter{
		policy:   policy,
		attempts: make(map[string]*attemptRecord),
		now:      time.Now,
	}
}

// check returns true if key is currently locked out, along with how long the
// caller should wait.
func (rl *backoffLimiter) check(key string) (blocked bool, retryAfter time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rec, ok := rl.attempts[key]
	if !ok {
		return false, 0
	}
	now := rl.now()
	if now.Sub(rec.lastFailure) > rl.policy.expiry {
		delete(rl.attempts, key)
		return false, 0
	}
	if now.Before(rec.lockedUntil) {
		return true, rec.lockedUntil.Sub(now)
	}
	return false, 0
}

func (rl *backoffLimiter) recordFailure(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rec, ok := rl.attempts[key]
	if !ok {
		rec = &attemptRecord{}
		rl.attempts[key] = rec
	}
	now := rl.now()
	rec.failures++
	rec.lastFailure = now

	if rec.failures >= rl.policy.maxFailures {
		// baseLockout * 2^(failures - maxFailures), capped.
		lockout := rl.policy.baseLockout
		for i := 0; i < rec.failures-rl.policy.maxFailures; i++ {
			lockout *= 2
			if lockout > rl.policy.maxLockout {
				lockout = rl.policy.maxLockout
				break
			}
		}
		rec.lockedUntil = now.Add(lockout)
	}
}

func (rl *backoffLimiter) recordSuccess(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.attempts, key)
}

// sweep removes expired records.
func (rl *backoffLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, rec := range rl.attempts {
		if now.Sub(rec.lastFailure) > rl.policy.expiry {
			delete(rl.attempts, key)
		}
	}
}

const (
	globalWindow      = 1 * time.Minute
	globalMaxFailures = 100
	globalLockout     = 5 * time.Minute
)

// globalRateLimiter counts failed logins across all keys in a sliding window.
type globalRateLimiter struct {
	mu          sync.Mutex
	failures    []time.Time
	lockedUntil time.Time
	now         func() time.Time
}

func newGlobalRateLimiter() *globalRateLimiter {
	return &globalRateLimiter{now: time.Now}
}

func (rl *globalRateLimiter) check() (blocked bool, retryAfter time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Before(rl.lockedUntil) {
		return true, rl.lockedUntil.Sub(now)
	}
	return false, 0
}

func (rl *globalRateLimiter) recordFailure() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.failures = trimWindow(append(rl.failures, now), now, globalWindow)
	if len(rl.failures) >= globalMaxFailures {
		rl.lockedUntil = now.Add(globalLockout)
	}
}

// loginLimiter bundles the three login throttles.
type loginLimiter struct {
	email  *backoffLimiter
	ip     *backoffLimiter
	global *globalRateLimiter
}

func newLoginLimiter() *loginLimiter {
	return &loginLimiter{
		email:  newBackoffLimiter(emailBackoff),
		ip:     newBackoffLimiter(ipBackoff),
		global: newGlobalRateLimiter(),
	}
}

// check returns the longest applicable wait, or zero when the attempt may
// proceed.
func (l *loginLimiter) check(email, ip string) (blocked bool, retryAfter time.Duration, scope string) {
	if b, d := l.global.check(); b {
		return true, d, "global"
	}
	if b, d := l.ip.check(ip); b {
		return true, d, "ip"
	}
	if b, d := l.email.check(email); b {
		return true, d, "account"
	}
	return false, 0, ""
}

func (l *loginLimiter) recordFailure(email, ip string) {
	l.email.recordFailure(email)
	l.ip.recordFailure(ip)
	l.global.recordFailure()
}

func (l *loginLimiter) recordSuccess(email, ip string) {
	l.email.recordSuccess(email)
	l.ip.recordSuccess(ip)
}

func (l *loginLimiter) sweep() {
	l.email.sweep()
	l.ip.sweep()
}

// writeRateLimited sends a 429 Too Many Requests response.
func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	w.Header().Set("Retry-After", retryAfterString(retryAfter))
	writeError(w, http.StatusTooManyRequests, "too many failed login attempts; try again later")
}

func retryAfterString(d time.Duration) string {
	secs := int(d.Seconds())
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

// clientIP returns the client IP used for rate limiting and audit records.
func (a *API) clientIP(r *http.Request) string {
	return extractClientIPWithProxies(r, a.trustedProxies)
}

// extractClientIPWithProxies returns the best-effort client IP address.
//
// Proxy headers (X-Forwarded-For, Forwarded, X-Real-IP) are honored only
// when RemoteAddr falls inside one of trustedProxies. With no trusted
// proxies configured RemoteAddr is always used.
//
// Priority when proxy headers are trusted:
// 1. First valid entry in X-Forwarded-For
// 2. First valid "for=" value in Forwarded
// 3. X-Real-IP
// 4. RemoteAddr
func extractClientIPWithProxies(r *http.Request, trustedProxies []netip.Prefix) string {
	remoteIP, _ := parseIPCandidate(r.RemoteAddr)

	proxyTrusted := false
	if len(trustedProxies) > 0 && remoteIP != "" {
		if addr, err := netip.ParseAddr(remoteIP); err == nil {
			for _, prefix := range trustedProxies {
				if prefix.Contains(addr) {
					proxyTrusted = true
					break
				}
			}
		}
	}

	if proxyTrusted {
		if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
			for _, part := range strings.Split(xff, ",") {
				if ip, ok := parseIPCandidate(part); ok {
					return ip
				}
			}
		}
		if fwd := strings.TrimSpace(r.Header.Get("Forwarded")); fwd != "" {
			for _, elem := range strings.Split(fwd, ",") {
				for _, param := range strings.Split(elem, ";") {
					param = strings.TrimSpace(param)
					if !strings.HasPrefix(strings.ToLower(param), "for=") {
						continue
					}
					if ip, ok := parseIPCandidate(param[4:]); ok {
						return ip
					}
				}
			}
		}
		if xrip := strings.TrimSpace(r.Header.Get("X-Real-IP")); xrip != "" {
			if ip, ok := parseIPCandidate(xrip); ok {
				return ip
			}
		}
	}
	return remoteIP
}

// WithTrustedProxies sets the CIDR ranges (or bare addresses) whose proxy
// headers are believed when resolving the client IP.
func WithTrustedProxies(values []string) (Option, error) {
	var prefixes []netip.Prefix
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if !strings.Contains(v, "/") {
			addr, err := netip.ParseAddr(v)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", v, err)
			}
			prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		p, err := netip.ParsePrefix(v)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", v, err)
		}
		prefixes = append(prefixes, p.Masked())
	}
	return func(a *API) {
		a.trustedProxies = prefixes
	}, nil
}

func parseIPCandidate(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	s = strings.Trim(s, "\"")
	if s == "" {
		return "", false
	}

	// RFC 7239 quoted IPv6 may appear as [::1]:1234.
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	// Drop zone (fe80::1%eth0).
	if i := strings.IndexByte(s, '%'); i >= 0 {
		s = s[:i]
	}

	if addr, err := netip.ParseAddr(s); err == nil {
		return addr.Unmap().String(), true
	}
	return "", false
}
