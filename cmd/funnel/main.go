// Package main provides the entry point for the idea funnel CLI.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "funnel",
	Short: "Progressive evidence-gated idea filter",
	Long: `funnel generates candidate business ideas and passes them through an ordered chain of
evaluation stages. Each stage asks a reasoning service for a verdict or an evidence score and
either advances the candidate or kills it. Every decision is persisted immediately, so an
interrupted run resumes where it stopped and duplicate ideas are never evaluated twice.`,
	SilenceUsage: true,
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
