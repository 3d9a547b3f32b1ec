package cmd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmcleod/storefront/api"
	"github.com/jmcleod/storefront/config"
	"github.com/jmcleod/storefront/internal/util"
	"github.com/jmcleod/storefront/payment"
	"github.com/jmcleod/storefront/token"
	"github.com/jmcleod/storefront/web"
)

const limiterSweepInterval = 10 * time.Minute

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the storefront API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath, cmd.Flags())
		if err != nil {
			return err
		}

		logger := slog.New(slog.NewJSONHandler(os.Stderr, nil)).With("env", cfg.Env)
		slog.SetDefault(logger)

		dir, closeDir, err := openDirectory(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer closeDir()

		secret := []byte(cfg.JWTSecret)
		if len(secret) == 0 {
			secret, err = util.RandomBytes(32)
			if err != nil {
				return err
			}
			logger.Warn("no jwt_secret configured; using a random one, sessions will not survive a restart")
		}
		issuer, err := token.NewIssuer(secret, dir, token.WithCookiePolicy(cfg.CookiePolicy()))
		if err != nil {
			return fmt.Errorf("failed to create token issuer: %w", err)
		}

		proxies, err := api.WithTrustedProxies(cfg.TrustedProxies)
		if err != nil {
			return err
		}
		opts := []api.Option{
			api.WithLogger(logger),
			api.WithEnvironment(cfg.Env),
			api.WithAllowedOrigins(cfg.AllowedOrigins),
			api.WithAuditWebhook(cfg.Audit.WebhookURL, cfg.Audit.WebhookHeader),
			api.WithAlertFunc(func(e api.AlertEvent) {
				logger.Warn("security alert", "type", e.Type, "count", e.Count, "threshold", e.Threshold)
			}),
			proxies,
		}
		if cfg.PaymentsEnabled() {
			coord, err := newCoordinator(cfg, logger)
			if err != nil {
				return err
			}
			opts = append(opts, api.WithPayments(coord))
		} else {
			logger.Warn("razorpay credentials not configured; payment routes will answer 503")
		}

		a := api.New(dir, issuer, opts...)
		defer a.Close()

		webHandler, err := web.Handler(func(*http.Request) map[string]string {
			return map[string]string{
				"storefront-api-base":    "/api/v1",
				"storefront-environment": cfg.Env,
			}
		})
		if err != nil {
			return err
		}

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           a.Handler(webHandler),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		if !cfg.PlainHTTP {
			server.TLSConfig, err = tlsConfig(cfg)
			if err != nil {
				return err
			}
		}

		sweepCtx, stopSweep := context.WithCancel(context.Background())
		defer stopSweep()
		go func() {
			t := time.NewTicker(limiterSweepInterval)
			defer t.Stop()
			for {
				select {
				case <-t.C:
					a.SweepLimiters()
				case <-sweepCtx.Done():
					return
				}
			}
		}()

		// Graceful shutdown on SIGINT/SIGTERM.
		done := make(chan error, 1)
		go func() {
			var err error
			if cfg.PlainHTTP {
				err = server.ListenAndServe()
			} else {
				err = server.ListenAndServeTLS("", "")
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		printBanner(cfg.Env)
		scheme := "https"
		if cfg.PlainHTTP {
			scheme = "http"
		}
		fmt.Printf("Starting server on %s://localhost:%d (payments: %v)...\n", scheme, cfg.Port, cfg.PaymentsEnabled())

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			fmt.Printf("\nReceived %s, shutting down...\n", sig)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

func newCoordinator(cfg *config.Config, logger *slog.Logger) (*payment.Coordinator, error) {
	pcfg, err := payment.NewConfig(cfg.Razorpay.KeyID, []byte(cfg.Razorpay.KeySecret))
	if err != nil {
		return nil, err
	}
	if cfg.Razorpay.BaseURL != "" {
		pcfg.BaseURL = cfg.Razorpay.BaseURL
	}
	if cfg.Razorpay.Timeout > 0 {
		pcfg.Timeout = cfg.Razorpay.Timeout
	}
	gw, err := payment.NewRazorpayGateway(pcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment gateway: %w", err)
	}
	return payment.NewCoordinator(pcfg, gw, payment.WithLogger(logger))
}

func tlsConfig(cfg *config.Config) (*tls.Config, error) {
	var cert tls.Certificate
	var err error
	if cfg.TLSCert != "" {
		cert, err = tls.LoadX509KeyPair(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS key pair: %w", err)
		}
	} else {
		cert, err = util.GenerateSelfSignedCert()
		if err != nil {
			return nil, fmt.Errorf("failed to generate self-signed certificate: %w", err)
		}
		fmt.Println("Using self-signed runtime generated certificate for TLS")
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

func init() {
	rootCmd.AddCommand(serverCmd)
	config.RegisterFlags(serverCmd.Flags())
}
