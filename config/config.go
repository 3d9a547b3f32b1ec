// Package config loads the storefront server configuration from defaults,
// an optional YAML or JSON file, STOREFRONT_* environment variables and
// command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jmcleod/storefront/token"
)

// EnvPrefix is prepended to every environment variable, e.g.
// STOREFRONT_RAZORPAY_KEY_SECRET.
const EnvPrefix = "STOREFRONT"

// Environments.
const (
	Development = "development"
	Production  = "production"
	Test        = "test"
)

// Config is the server configuration.
type Config struct {
	Port           int            `mapstructure:"port"`
	Env            string         `mapstructure:"env"`
	DataDir        string         `mapstructure:"data_dir"`
	PostgresDSN    string         `mapstructure:"postgres_dsn"`
	CookieTopology string         `mapstructure:"cookie_topology"`
	AllowedOrigins []string       `mapstructure:"allowed_origins"`
	JWTSecret      string         `mapstructure:"jwt_secret"`
	TLSCert        string         `mapstructure:"tls_cert"`
	TLSKey         string         `mapstructure:"tls_key"`
	PlainHTTP      bool           `mapstructure:"plain_http"`
	TrustedProxies []string       `mapstructure:"trusted_proxies"`
	Razorpay       RazorpayConfig `mapstructure:"razorpay"`
	Audit          AuditConfig    `mapstructure:"audit"`
}

// RazorpayConfig holds the payment gateway credentials.
type RazorpayConfig struct {
	KeyID     string        `mapstructure:"key_id"`
	KeySecret string        `mapstructure:"key_secret"`
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// AuditConfig configures the optional audit webhook.
type AuditConfig struct {
	WebhookURL    string `mapstructure:"webhook_url"`
	WebhookHeader string `mapstructure:"webhook_header"`
}

var defaults = map[string]any{
	"port":                 8080,
	"env":                  Development,
	"data_dir":             "./data",
	"postgres_dsn":         "",
	"cookie_topology":      string(token.SameOrigin),
	"allowed_origins":      []string{},
	"jwt_secret":           "",
	"tls_cert":             "",
	"tls_key":              "",
	"plain_http":           false,
	"trusted_proxies":      []string{},
	"razorpay.key_id":      "",
	"razorpay.key_secret":  "",
	"razorpay.base_url":    "https://api.razorpay.com",
	"razorpay.timeout":     15 * time.Second,
	"audit.webhook_url":    "",
	"audit.webhook_header": "",
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"port":            "port",
	"env":             "env",
	"data-dir":        "data_dir",
	"postgres-dsn":    "postgres_dsn",
	"cookie-topology": "cookie_topology",
	"allowed-origins": "allowed_origins",
	"tls-cert":        "tls_cert",
	"tls-key":         "tls_key",
	"plain-http":      "plain_http",
	"trusted-proxies": "trusted_proxies",
}

// Load reads the configuration. path may be empty. Flags that are present
// in flags override every other source when the user set them.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("binding flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.AllowedOrigins = splitOrigins(cfg.AllowedOrigins)
	cfg.TrustedProxies = splitOrigins(cfg.TrustedProxies)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// splitOrigins flattens comma-separated entries, drops blanks and trailing
// slashes. It is also used for the trusted proxy list.
func splitOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, entry := range in {
		for _, o := range strings.Split(entry, ",") {
			if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
				out = append(out, o)
			}
		}
	}
	return out
}

// Validate checks field values and cross-field requirements.
func (c *Config) Validate() error {
	var errs []error
	switch c.Env {
	case Development, Production, Test:
	default:
		errs = append(errs, fmt.Errorf("env must be %s, %s or %s, got %q", Development, Production, Test, c.Env))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if _, err := token.ParseTopology(c.CookieTopology); err != nil {
		errs = append(errs, err)
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		errs = append(errs, errors.New("tls_cert and tls_key must be set together"))
	}
	if c.PlainHTTP && c.TLSCert != "" {
		errs = append(errs, errors.New("plain_http cannot be combined with tls_cert"))
	}
	if (c.Razorpay.KeyID == "") != (c.Razorpay.KeySecret == "") {
		errs = append(errs, errors.New("razorpay key_id and key_secret must be set together"))
	}
	if c.IsProduction() {
		if len(c.JWTSecret) < 32 {
			errs = append(errs, errors.New("jwt_secret of at least 32 bytes is required in production"))
		}
		if c.CookieTopology == string(token.CrossOrigin) && len(c.AllowedOrigins) == 0 {
			errs = append(errs, errors.New("cross-origin deployments need allowed_origins"))
		}
	}
	return errors.Join(errs...)
}

// IsProduction reports whether the server runs in production.
func (c *Config) IsProduction() bool { return c.Env == Production }

// PaymentsEnabled reports whether gateway credentials are configured.
func (c *Config) PaymentsEnabled() bool { return c.Razorpay.KeyID != "" }

// CookiePolicy derives the token cookie policy.
func (c *Config) CookiePolicy() token.CookiePolicy {
	topo, _ := token.ParseTopology(c.CookieTopology)
	return token.CookiePolicy{Topology: topo, Production: c.IsProduction()}
}

// RegisterFlags adds the server flags to fs with their defaults.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.IntP("port", "p", defaults["port"].(int), "Port to listen on")
	fs.String("env", Development, "Environment: development, production or test")
	fs.String("data-dir", defaults["data_dir"].(string), "Directory for persistent data")
	fs.String("postgres-dsn", "", "PostgreSQL DSN for the user directory (default: bbolt in data-dir)")
	fs.String("cookie-topology", string(token.SameOrigin), "Client/API origin topology: same-origin or cross-origin")
	fs.StringSlice("allowed-origins", nil, "Origins allowed to call the API with credentials")
	fs.String("tls-cert", "", "Path to TLS certificate file")
	fs.String("tls-key", "", "Path to TLS key file")
	fs.Bool("plain-http", false, "Serve plain HTTP, e.g. behind a TLS-terminating proxy")
	fs.StringSlice("trusted-proxies", nil, "CIDR ranges whose X-Forwarded-For headers are trusted")
}
