package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/storefront/token"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)

	want := &Config{
		Port:           8080,
		Env:            Development,
		DataDir:        "./data",
		CookieTopology: "same-origin",
		AllowedOrigins: []string{},
		TrustedProxies: []string{},
		Razorpay: RazorpayConfig{
			BaseURL: "https://api.razorpay.com",
			Timeout: 15 * time.Second,
		},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("defaults mismatch (-want +got):\n%s", diff)
	}
	assert.False(t, cfg.PaymentsEnabled())
	assert.Equal(t, token.CookiePolicy{Topology: token.SameOrigin}, cfg.CookiePolicy())
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("STOREFRONT_PORT", "9090")
	t.Setenv("STOREFRONT_RAZORPAY_KEY_ID", "rzp_test_1")
	t.Setenv("STOREFRONT_RAZORPAY_KEY_SECRET", "s3cret")
	t.Setenv("STOREFRONT_RAZORPAY_TIMEOUT", "5s")
	t.Setenv("STOREFRONT_ALLOWED_ORIGINS", "http://localhost:3000, https://shop.example.com/")
	t.Setenv("STOREFRONT_TRUSTED_PROXIES", "10.0.0.0/8,172.16.0.0/12")

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "rzp_test_1", cfg.Razorpay.KeyID)
	assert.Equal(t, 5*time.Second, cfg.Razorpay.Timeout)
	assert.Equal(t, []string{"http://localhost:3000", "https://shop.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, []string{"10.0.0.0/8", "172.16.0.0/12"}, cfg.TrustedProxies)
	assert.True(t, cfg.PaymentsEnabled())
}

func TestLoad_FileThenFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storefront.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: 7000
env: production
cookie_topology: cross-origin
allowed_origins:
  - https://shop.example.com
jwt_secret: 0123456789abcdef0123456789abcdef
razorpay:
  key_id: rzp_live_1
  key_secret: live-secret
`), 0o600))

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--port", "7443"}))

	cfg, err := Load(path, fs)
	require.NoError(t, err)
	assert.Equal(t, 7443, cfg.Port, "flag beats file")
	assert.Equal(t, Production, cfg.Env, "unset flag does not mask file")
	assert.Equal(t, "rzp_live_1", cfg.Razorpay.KeyID)
	assert.Equal(t, token.CookiePolicy{Topology: token.CrossOrigin, Production: true}, cfg.CookiePolicy())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{Port: 8080, Env: Development, CookieTopology: "same-origin"}
	}
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"valid", func(*Config) {}, true},
		{"bad env", func(c *Config) { c.Env = "staging" }, false},
		{"bad port", func(c *Config) { c.Port = 0 }, false},
		{"bad topology", func(c *Config) { c.CookieTopology = "sideways" }, false},
		{"half tls", func(c *Config) { c.TLSCert = "cert.pem" }, false},
		{"plain http with tls", func(c *Config) { c.PlainHTTP = true; c.TLSCert = "c.pem"; c.TLSKey = "k.pem" }, false},
		{"half razorpay", func(c *Config) { c.Razorpay.KeyID = "id" }, false},
		{"production without secret", func(c *Config) { c.Env = Production }, false},
		{"production short secret", func(c *Config) { c.Env = Production; c.JWTSecret = "short" }, false},
		{"production", func(c *Config) {
			c.Env = Production
			c.JWTSecret = "0123456789abcdef0123456789abcdef"
		}, true},
		{"cross-origin production without origins", func(c *Config) {
			c.Env = Production
			c.JWTSecret = "0123456789abcdef0123456789abcdef"
			c.CookieTopology = "cross-origin"
		}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := base()
			tc.mutate(&c)
			err := c.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
