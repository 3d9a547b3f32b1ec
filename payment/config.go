// Package payment creates payment intents with the Razorpay gateway and
// verifies the signed callbacks the gateway's checkout surface returns.
package payment

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/awnumar/memguard"
)

const (
	// DefaultBaseURL is the Razorpay REST API root.
	DefaultBaseURL = "https://api.razorpay.com"
	// DefaultTimeout bounds a single gateway round trip.
	DefaultTimeout = 15 * time.Second
)

// Config holds the gateway credentials. It is built once at startup and
// injected into the Coordinator and the gateway client. The key secret
// doubles as the HMAC key for callback signatures.
type Config struct {
	KeyID     string
	KeySecret *memguard.Enclave
	BaseURL   string
	Timeout   time.Duration
}

// NewConfig seals keySecret into an enclave, wipes the caller's slice and
// fills defaults for the remaining fields.
func NewConfig(keyID string, keySecret []byte) (Config, error) {
	if keyID == "" {
		return Config{}, errors.New("razorpay key id is required")
	}
	if len(keySecret) == 0 {
		return Config{}, errors.New("razorpay key secret is required")
	}
	return Config{
		KeyID:     keyID,
		KeySecret: memguard.NewEnclave(keySecret),
		BaseURL:   DefaultBaseURL,
		Timeout:   DefaultTimeout,
	}, nil
}

// Validate checks that the config is usable.
func (c Config) Validate() error {
	if c.KeyID == "" || c.KeySecret == nil {
		return errors.New("razorpay credentials are not configured")
	}
	if c.BaseURL != "" {
		if _, err := url.Parse(c.BaseURL); err != nil {
			return fmt.Errorf("invalid gateway base url: %w", err)
		}
	}
	return nil
}

func (c Config) withSecret(fn func(secret []byte) error) error {
	buf, err := c.KeySecret.Open()
	if err != nil {
		return fmt.Errorf("opening gateway secret: %w", err)
	}
	defer buf.Destroy()
	return fn(buf.Bytes())
}
