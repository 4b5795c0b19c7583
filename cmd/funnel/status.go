package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/idea-funnel/internal/config"
	"github.com/jonathan/idea-funnel/internal/observability"
)

var statusCommand = &cobra.Command{
	Use:   "status",
	Short: "Show candidate counts by status and stage",
	RunE:  runStatusCmd,
}

var (
	statusStorePath   string
	statusDatabaseURL string
)

func init() {
	statusCommand.Flags().StringVarP(&statusStorePath, "store", "s", "", "Path to the JSON candidate store (default ideas_bank.json)")
	statusCommand.Flags().StringVar(&statusDatabaseURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var when --store is not set)")

	rootCmd.AddCommand(statusCommand)
}

// storeConfig resolves the store location shared by status and report.
func storeConfig(storePath, databaseURL string) config.Config {
	cfg := config.Config{Store: storePath, DatabaseURL: databaseURL}
	if cfg.Store == "" && cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.Store == "" && cfg.DatabaseURL == "" {
		cfg.Store = config.DefaultStorePath
	}
	return cfg
}

func runStatusCmd(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()
	cfg := storeConfig(statusStorePath, statusDatabaseURL)

	bank, closeBank, err := openBank(ctx, cfg, zap.NewNop())
	if err != nil {
		return err
	}
	defer closeBank()

	if err := bank.Load(ctx); err != nil {
		return fmt.Errorf("failed to load candidate store %s: %w", storeLabel(cfg), err)
	}

	printer := observability.NewPrinter(cmd.OutOrStdout())
	printer.PrintStatusCounts(bank.CountByStatus())
	return nil
}
