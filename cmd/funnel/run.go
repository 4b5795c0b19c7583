package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/idea-funnel/internal/config"
	"github.com/jonathan/idea-funnel/internal/generate"
	"github.com/jonathan/idea-funnel/internal/llm"
	"github.com/jonathan/idea-funnel/internal/observability"
	"github.com/jonathan/idea-funnel/internal/pipeline"
	"github.com/jonathan/idea-funnel/internal/profile"
)

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Generate candidates and run them through the stage chain",
	Long: `Runs the funnel: generate -> white space -> economic proof -> build feasibility -> go-to-market.

Modes:
  full      generate --count new candidates, then run every pending record (default)
  generate  only generate and store new candidates
  resume    run every pending record without generating
  stage     run a single stage (--stage k) over the records due for it

Configuration can be loaded from a JSON file using --config. Command-line arguments override config file values.`,
	RunE: runFunnelCmd,
}

var (
	runConfigPath  string
	runCount       int
	runMode        string
	runStage       int
	runThrough     int
	runStagesPath  string
	runStorePath   string
	runDatabaseURL string
	runInput       string
	runProfile     string
	runProvider    string
	runAPIKey      string
	runReportDir   string
	runConcurrency int
	runVerbose     bool
)

func init() {
	// Config file flag (processed first)
	runCommand.Flags().StringVar(&runConfigPath, "config", "", "Path to config.json file (values can be overridden by other flags)")

	runCommand.Flags().IntVarP(&runCount, "count", "n", 0, "Number of new candidates to generate (default 30)")
	runCommand.Flags().StringVarP(&runMode, "mode", "m", "", "Run mode: full, generate, resume or stage (default full)")
	runCommand.Flags().IntVar(&runStage, "stage", 0, "Stage to run in stage mode (1-based)")
	runCommand.Flags().IntVar(&runThrough, "through", 0, "Stop after this stage (1-based, default last)")
	runCommand.Flags().StringVar(&runStagesPath, "stages", "", "Path to a YAML stage definition file (default built-in chain)")
	runCommand.Flags().StringVarP(&runStorePath, "store", "s", "", "Path to the JSON candidate store (default ideas_bank.json)")
	runCommand.Flags().StringVarP(&runInput, "input", "i", "", "Seed file (JSON or YAML) used instead of generating with the reasoning service")
	runCommand.Flags().StringVar(&runProfile, "profile", "", "Founder profile (JSON or YAML) offered to founder-fit stages")
	runCommand.Flags().StringVar(&runProvider, "provider", "", "Reasoning service provider: gemini or openai (default gemini)")
	runCommand.Flags().StringVarP(&runReportDir, "report-dir", "o", "", "Directory for FINALIST_*.txt reports (default current directory)")
	runCommand.Flags().IntVar(&runConcurrency, "signal-concurrency", 0, "Evidence signals evaluated in parallel per candidate (default 1)")
	runCommand.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Print detailed debug information")

	// API key can be passed as a flag, or read from GEMINI_API_KEY / OPENAI_API_KEY
	runCommand.Flags().StringVar(&runAPIKey, "api-key", "", "API key (optional, defaults to GEMINI_API_KEY or OPENAI_API_KEY env var)")

	// Database URL replaces the JSON file store
	runCommand.Flags().StringVar(&runDatabaseURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var when --store is not set)")

	rootCmd.AddCommand(runCommand)
}

// resolveRunConfig merges the config file, explicitly set flags, environment
// and defaults, in that order of precedence (flags highest).
func resolveRunConfig(cmd *cobra.Command) (config.Config, error) {
	// Step 1: Load config file if provided
	var cfg config.Config
	if runConfigPath != "" {
		loadedCfg, err := config.LoadConfig(runConfigPath)
		if err != nil {
			return cfg, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = *loadedCfg
	}

	// Step 2: Apply CLI overrides (command-line args take priority)
	// Only override if the flag was explicitly set
	flags := cmd.Flags()
	if flags.Changed("count") {
		cfg.Count = runCount
	}
	if flags.Changed("mode") {
		cfg.Mode = runMode
	}
	if flags.Changed("stage") {
		cfg.Stage = runStage
		if !flags.Changed("mode") {
			cfg.Mode = string(pipeline.RunSingleStage)
		}
	}
	if flags.Changed("through") {
		cfg.Through = runThrough
	}
	if flags.Changed("stages") {
		cfg.Stages = runStagesPath
	}
	if flags.Changed("store") {
		cfg.Store = runStorePath
		cfg.DatabaseURL = ""
	}
	if flags.Changed("db-url") {
		cfg.DatabaseURL = runDatabaseURL
		cfg.Store = ""
	}
	if flags.Changed("input") {
		cfg.Input = runInput
	}
	if flags.Changed("profile") {
		cfg.Profile = runProfile
	}
	if flags.Changed("provider") {
		cfg.Provider = runProvider
	}
	if flags.Changed("api-key") {
		cfg.APIKey = runAPIKey
	}
	if flags.Changed("report-dir") {
		cfg.ReportDir = runReportDir
	}
	if flags.Changed("signal-concurrency") {
		cfg.SignalConcurrency = runConcurrency
	}
	if flags.Changed("verbose") {
		cfg.Verbose = runVerbose
	}

	// Step 3: Environment fallbacks
	if cfg.Store == "" && cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}

	// Step 4: Apply defaults for unset values
	cfg = cfg.MergeWithDefaults(config.Defaults())

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	// Step 5: API Key handling
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv(config.APIKeyEnv(cfg.Provider))
	}
	if needsReasoner(cfg) && cfg.APIKey == "" {
		return cfg, fmt.Errorf("%s environment variable or --api-key flag is required", config.APIKeyEnv(cfg.Provider))
	}

	return cfg, nil
}

// needsReasoner reports whether the run will call the reasoning service.
func needsReasoner(cfg config.Config) bool {
	return !(cfg.Mode == string(pipeline.RunGenerate) && cfg.Input != "")
}

func runFunnelCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveRunConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Verbose)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	printer := observability.NewPrinter(cmd.OutOrStdout())
	summary, err := executeRun(ctx, cfg, logger, nil, printer)
	printer.PrintRunSummary(summary)

	if errors.Is(err, pipeline.ErrInterrupted) {
		return fmt.Errorf("%w; run again with --mode resume to continue", err)
	}
	return err
}

// executeRun wires the store, stages, reasoning client and candidate source
// into one orchestrated run. A non-nil submitter replaces the configured
// reasoning client.
func executeRun(ctx context.Context, cfg config.Config, logger *zap.Logger, submitter pipeline.Submitter, printer *observability.Printer) (*pipeline.RunSummary, error) {
	mode, err := pipeline.ParseRunMode(cfg.Mode)
	if err != nil {
		return nil, err
	}

	stages, err := loadStageDefs(cfg)
	if err != nil {
		return nil, err
	}

	var founder profile.Profile
	if cfg.Profile != "" {
		if founder, err = profile.Load(cfg.Profile); err != nil {
			return nil, err
		}
	}

	bank, closeBank, err := openBank(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer closeBank()

	if submitter == nil && needsReasoner(cfg) {
		client, err := llm.NewClient(ctx, cfg.LLMConfig(), cfg.APIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create reasoning client: %w", err)
		}
		defer func() { _ = client.Close() }()
		submitter = llm.NewReasoner(client, cfg.RetryPolicy(), logger)
	}

	var source generate.Source
	if cfg.Input != "" {
		source = generate.NewFileSource(cfg.Input)
	} else if submitter != nil {
		source = generate.NewLLMSource(submitter, generate.LLMOptions{
			Exclude: cfg.ExcludeIndustries,
			Logger:  logger,
		})
	}

	var onProgress pipeline.ProgressCallback
	if printer != nil {
		onProgress = printer.Progress()
	}

	return pipeline.Run(ctx, pipeline.RunOptions{
		Mode:              mode,
		Count:             cfg.Count,
		Stage:             cfg.Stage,
		Through:           cfg.Through,
		Stages:            stages,
		Bank:              bank,
		Submitter:         submitter,
		Source:            source,
		ReportDir:         cfg.ReportDir,
		SignalConcurrency: cfg.SignalConcurrency,
		Profile:           founder,
		Logger:            logger,
		OnProgress:        onProgress,
	})
}

func loadStageDefs(cfg config.Config) ([]pipeline.StageDef, error) {
	if cfg.Stages == "" {
		return pipeline.DefaultStages()
	}
	return pipeline.LoadStages(cfg.Stages)
}
