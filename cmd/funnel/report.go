package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/idea-funnel/internal/report"
	"github.com/jonathan/idea-funnel/internal/store"
)

var reportCommand = &cobra.Command{
	Use:   "report",
	Short: "Write FINALIST_*.txt reports for finalists in the store",
	Long: `Re-emits the finalist reports from the candidate store. With --id, writes the report for
that record whatever its status, which is useful for inspecting why a candidate was killed.`,
	RunE: runReportCmd,
}

var (
	reportStorePath   string
	reportDatabaseURL string
	reportDir         string
	reportID          int
)

func init() {
	reportCommand.Flags().StringVarP(&reportStorePath, "store", "s", "", "Path to the JSON candidate store (default ideas_bank.json)")
	reportCommand.Flags().StringVar(&reportDatabaseURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var when --store is not set)")
	reportCommand.Flags().StringVarP(&reportDir, "report-dir", "o", ".", "Directory for the reports")
	reportCommand.Flags().IntVar(&reportID, "id", 0, "Write the report for a single record ID")

	rootCmd.AddCommand(reportCommand)
}

func runReportCmd(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()
	cfg := storeConfig(reportStorePath, reportDatabaseURL)

	bank, closeBank, err := openBank(ctx, cfg, zap.NewNop())
	if err != nil {
		return err
	}
	defer closeBank()

	if err := bank.Load(ctx); err != nil {
		return fmt.Errorf("failed to load candidate store %s: %w", storeLabel(cfg), err)
	}

	var records []store.Record
	if reportID > 0 {
		rec, ok := bank.Get(reportID)
		if !ok {
			return fmt.Errorf("record %d not found in %s", reportID, storeLabel(cfg))
		}
		records = append(records, rec)
	} else {
		records = bank.ByStatus(store.StatusFinalist)
	}

	paths, err := report.WriteAll(reportDir, records)
	for _, p := range paths {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), p)
	}
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No finalists in the store.")
	}
	return nil
}
