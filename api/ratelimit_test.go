package api

import (
	"fmt"
	"net/http"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// steppedClock is a manually advanced time source for limiter tests.
type steppedClock struct{ t time.Time }

func (c *steppedClock) now() time.Time          { return c.t }
func (c *steppedClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBackoff(policy backoffPolicy) (*backoffLimiter, *steppedClock) {
	clk := &steppedClock{t: time.Date(2026, 3, 8, 12, 0, 0, 0, time.UTC)}
	rl := newBackoffLimiter(policy)
	rl.now = clk.now
	return rl, clk
}

func TestBackoffLimiter_AllowsBeforeThreshold(t *testing.T) {
	rl, _ := newTestBackoff(emailBackoff)
	for i := 0; i < emailBackoff.maxFailures-1; i++ {
		rl.recordFailure("shopper@example.com")
		blocked, _ := rl.check("shopper@example.com")
		assert.False(t, blocked, "failure %d should not lock", i+1)
	}
}

func TestBackoffLimiter_BlocksAtThreshold(t *testing.T) {
	rl, _ := newTestBackoff(emailBackoff)
	for i := 0; i < emailBackoff.maxFailures; i++ {
		rl.recordFailure("shopper@example.com")
	}
	blocked, retryAfter := rl.check("shopper@example.com")
	require.True(t, blocked)
	assert.Equal(t, emailBackoff.baseLockout, retryAfter)
}

func TestBackoffLimiter_ExponentialBackoffAndCap(t *testing.T) {
	rl, _ := newTestBackoff(emailBackoff)
	for i := 0; i < emailBackoff.maxFailures; i++ {
		rl.recordFailure("k")
	}
	_, first := rl.check("k")
	rl.recordFailure("k")
	_, second := rl.check("k")
	assert.Equal(t, 2*first, second)

	for i := 0; i < 10; i++ {
		rl.recordFailure("k")
	}
	_, capped := rl.check("k")
	assert.Equal(t, emailBackoff.maxLockout, capped)
}

func TestBackoffLimiter_LockoutElapses(t *testing.T) {
	rl, clk := newTestBackoff(emailBackoff)
	for i := 0; i < emailBackoff.maxFailures; i++ {
		rl.recordFailure("k")
	}
	clk.advance(emailBackoff.baseLockout + time.Second)
	blocked, _ := rl.check("k")
	assert.False(t, blocked)
}

func TestBackoffLimiter_SuccessResetsAndIsolates(t *testing.T) {
	rl, _ := newTestBackoff(emailBackoff)
	for i := 0; i < emailBackoff.maxFailures; i++ {
		rl.recordFailure("a")
	}
	blocked, _ := rl.check("b")
	assert.False(t, blocked, "other keys are unaffected")

	rl.recordSuccess("a")
	blocked, _ = rl.check("a")
	assert.False(t, blocked)
}

func TestBackoffLimiter_SweepRemovesExpired(t *testing.T) {
	rl, clk := newTestBackoff(ipBackoff)
	rl.recordFailure("192.0.2.1")
	clk.advance(30 * time.Minute)
	rl.recordFailure("192.0.2.2")
	clk.advance(31 * time.Minute)

	rl.sweep()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.attempts, "192.0.2.1")
	assert.Contains(t, rl.attempts, "192.0.2.2")
}

func TestGlobalRateLimiter_SlidingWindow(t *testing.T) {
	clk := &steppedClock{t: time.Date(2026, 3, 8, 12, 0, 0, 0, time.UTC)}
	rl := newGlobalRateLimiter()
	rl.now = clk.now

	for i := 0; i < globalMaxFailures-1; i++ {
		rl.recordFailure()
	}
	blocked, _ := rl.check()
	require.False(t, blocked)

	// Old failures slide out of the window.
	clk.advance(globalWindow + time.Second)
	rl.recordFailure()
	blocked, _ = rl.check()
	require.False(t, blocked)

	for i := 0; i < globalMaxFailures-1; i++ {
		rl.recordFailure()
	}
	blocked, retryAfter := rl.check()
	require.True(t, blocked)
	assert.Equal(t, globalLockout, retryAfter)
}

func TestLoginLimiter_ReportsScope(t *testing.T) {
	l := newLoginLimiter()
	for i := 0; i < emailBackoff.maxFailures; i++ {
		l.recordFailure("shopper@example.com", fmt.Sprintf("198.51.100.%d", i))
	}
	blocked, _, scope := l.check("shopper@example.com", "203.0.113.1")
	require.True(t, blocked)
	assert.Equal(t, "account", scope)

	blocked, _, _ = l.check("other@example.com", "203.0.113.1")
	assert.False(t, blocked)

	for i := 0; i < ipBackoff.maxFailures; i++ {
		l.recordFailure(fmt.Sprintf("u%d@example.com", i), "203.0.113.9")
	}
	blocked, _, scope = l.check("fresh@example.com", "203.0.113.9")
	require.True(t, blocked)
	assert.Equal(t, "ip", scope)
}

func TestRetryAfterString(t *testing.T) {
	assert.Equal(t, "1", retryAfterString(0))
	assert.Equal(t, "1", retryAfterString(300*time.Millisecond))
	assert.Equal(t, "90", retryAfterString(90*time.Second))
}

func TestExtractClientIPWithProxies(t *testing.T) {
	trusted := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}

	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		proxies    []netip.Prefix
		want       string
	}{
		{name: "remote ipv4", remoteAddr: "192.168.1.1:12345", want: "192.168.1.1"},
		{name: "remote ipv6", remoteAddr: "[::1]:8080", want: "::1"},
		{name: "ipv4-mapped ipv6 unmapped", remoteAddr: "[::ffff:192.0.2.7]:80", want: "192.0.2.7"},
		{name: "empty when nothing parseable", remoteAddr: "not-a-hostport", want: ""},
		{
			name:       "no trusted proxies ignores xff",
			remoteAddr: "192.168.1.1:80",
			headers:    map[string]string{"X-Forwarded-For": "198.51.100.25"},
			want:       "192.168.1.1",
		},
		{
			name:       "trusted proxy honors xff first valid",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Forwarded-For": "unknown, 198.51.100.25, 203.0.113.9"},
			proxies:    trusted,
			want:       "198.51.100.25",
		},
		{
			name:       "trusted proxy forwarded fallback",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"Forwarded": `for="[2001:db8::1]:4711";proto=https`},
			proxies:    trusted,
			want:       "2001:db8::1",
		},
		{
			name:       "trusted proxy x-real-ip fallback",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Real-IP": "203.0.113.11"},
			proxies:    trusted,
			want:       "203.0.113.11",
		},
		{
			name:       "untrusted peer spoofing headers",
			remoteAddr: "192.168.1.1:80",
			headers: map[string]string{
				"X-Forwarded-For": "198.51.100.25",
				"Forwarded":       "for=198.51.100.26",
				"X-Real-IP":       "198.51.100.27",
			},
			proxies: trusted,
			want:    "192.168.1.1",
		},
		{
			name:       "trusted proxy without headers",
			remoteAddr: "10.0.0.1:80",
			proxies:    trusted,
			want:       "10.0.0.1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &http.Request{RemoteAddr: tt.remoteAddr, Header: make(http.Header)}
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, extractClientIPWithProxies(r, tt.proxies))
		})
	}
}

func TestWithTrustedProxies(t *testing.T) {
	t.Run("cidrs and bare addresses", func(t *testing.T) {
		opt, err := WithTrustedProxies([]string{"10.0.0.0/8", " 172.16.5.4/12 ", "10.1.2.3", "::1", ""})
		require.NoError(t, err)
		a := &API{}
		opt(a)
		assert.Equal(t, []netip.Prefix{
			netip.MustParsePrefix("10.0.0.0/8"),
			netip.MustParsePrefix("172.16.0.0/12"),
			netip.MustParsePrefix("10.1.2.3/32"),
			netip.MustParsePrefix("::1/128"),
		}, a.trustedProxies)
	})

	t.Run("invalid entry", func(t *testing.T) {
		_, err := WithTrustedProxies([]string{"10.0.0.0/8", "garbage"})
		require.Error(t, err)
	})
}
