package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jmcleod/storefront/config"
	"github.com/jmcleod/storefront/users"
)

// Version is stamped at build time with -ldflags "-X ...cmd.Version=...".
var Version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "storefront",
	Short: "Storefront session and payment service",
	Long: `Storefront serves user sessions backed by signed, HTTP-only token cookies
and a payment flow that creates gateway orders and verifies checkout callbacks.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = Version
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML or JSON config file")
}

// openDirectory opens the user directory selected by cfg: PostgreSQL when a
// DSN is configured, otherwise a bbolt file in the data directory.
func openDirectory(ctx context.Context, cfg *config.Config) (users.Directory, func(), error) {
	if cfg.PostgresDSN != "" {
		dir, err := users.NewPostgresDirectoryFromDSN(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return dir, dir.Close, nil
	}

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	dir, err := users.NewBoltDirectoryFromFile(filepath.Join(cfg.DataDir, "users.db"), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open user directory: %w", err)
	}
	return dir, func() { dir.Close() }, nil
}
