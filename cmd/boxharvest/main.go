package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/boxharvest/internal/config"
	"github.com/IshaanNene/boxharvest/internal/engine"
	"github.com/IshaanNene/boxharvest/internal/fetcher"
	"github.com/IshaanNene/boxharvest/internal/logging"
	"github.com/IshaanNene/boxharvest/internal/observability"
	"github.com/IshaanNene/boxharvest/internal/storage"
	"github.com/IshaanNene/boxharvest/internal/types"
)

var (
	cfgFile     string
	verbose     bool
	startYear   int
	endYear     int
	outputPath  string
	outputType  string
	baseURL     string
	onError     string
	maxRetries  int
	timeout     string
	delay       string
	logDir      string
	fetcherType string
	robots      bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "boxharvest",
		Short: "boxharvest: yearly box-office listing harvester",
		Long: `boxharvest fetches the yearly top box-office listing pages for a range of
years, extracts rank and title of every listed movie and writes them to one
table (movie_id, rank, name, year).`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(harvestCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// harvestCmd creates the "harvest" subcommand.
func harvestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "Harvest the listings of a year range",
		Long:  "Fetch one listing page per year from --start to --end inclusive and write the result table.",
		Args:  cobra.NoArgs,
		RunE:  runHarvest,
	}

	cmd.Flags().IntVarP(&startYear, "start", "s", 0, "first year (inclusive, 0 = use config)")
	cmd.Flags().IntVarP(&endYear, "end", "e", 0, "last year (inclusive, 0 = use config)")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file path")
	cmd.Flags().StringVarP(&outputType, "format", "f", "", "output format: csv, json, jsonl")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "listing search base URL")
	cmd.Flags().StringVar(&onError, "on-error", "", "policy for a failed year: abort, skip")
	cmd.Flags().IntVar(&maxRetries, "max-retries", -1, "max retries per failed request (-1 = use config)")
	cmd.Flags().StringVar(&timeout, "timeout", "", "per-request timeout")
	cmd.Flags().StringVar(&delay, "delay", "", "politeness delay between years")
	cmd.Flags().StringVar(&logDir, "log-dir", "", "base directory for run log files")
	cmd.Flags().StringVar(&fetcherType, "fetcher", "", "fetcher type: http, browser")
	cmd.Flags().BoolVar(&robots, "respect-robots", false, "check robots.txt before each listing request")

	return cmd
}

// runHarvest executes the harvest command.
func runHarvest(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := applyCLIOverrides(cfg); err != nil {
		return err
	}

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, closeLog, err := logging.Setup(cfg.Logging, verbose)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer closeLog()

	metrics := observability.NewMetrics(logger)
	if cfg.Metrics.Enabled {
		if err := metrics.StartServer(cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
			logger.Warn("failed to start metrics server", "error", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = metrics.Shutdown(ctx)
		}()
	}

	f, err := fetcher.New(cfg, logger, fetcher.WithRetryNotify(
		func(req *types.Request, attempt int, err error, wait time.Duration) {
			metrics.FetchRetries.Add(1)
		},
	))
	if err != nil {
		return fmt.Errorf("create fetcher: %w", err)
	}
	defer f.Close()

	h, err := engine.NewHarvester(cfg.Harvest, f, logger, engine.WithMetrics(metrics))
	if err != nil {
		return fmt.Errorf("create harvester: %w", err)
	}

	// Open storage before fetching so a bad output path fails fast.
	store, err := storage.New(cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("create storage: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	table, harvestErr := observability.InstrumentValue(logger, "harvest", func() (*types.Table, error) {
		return h.Harvest(ctx)
	})
	if errors.Is(harvestErr, types.ErrHarvestStopped) {
		logger.Warn("harvest interrupted, writing collected rows", "error", harvestErr)
	}

	var rows []types.Row
	if table != nil {
		rows = table.Rows
	}
	if err := store.Store(rows); err != nil {
		_ = store.Close()
		return &types.StorageError{Backend: store.Name(), Err: err}
	}
	if err := store.Close(); err != nil {
		return &types.StorageError{Backend: store.Name(), Err: err}
	}
	metrics.RowsStored.Add(int64(len(rows)))
	metrics.LogSnapshot()

	elapsed := time.Since(start)
	stats := metrics.Snapshot()
	logger.Info("harvest complete",
		"elapsed", elapsed,
		"rows", len(rows),
		"output", cfg.Storage.OutputPath,
	)

	fmt.Printf("\n✅ Harvest complete in %s\n", elapsed.Round(time.Millisecond))
	fmt.Printf("   Years:     %v ok, %v failed\n", stats["years_ok"], stats["years_failed"])
	fmt.Printf("   Rows:      %d written, %v truncated\n", len(rows), stats["rows_truncated"])
	fmt.Printf("   Data:      %v bytes downloaded\n", stats["bytes_downloaded"])
	fmt.Printf("   Output:    %s\n", cfg.Storage.OutputPath)

	for _, ferr := range h.Failures() {
		fmt.Printf("   Skipped:   %v\n", ferr)
	}

	return harvestErr
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("boxharvest %s\n", config.Version)
		},
	}
}

// configCmd creates the "config" subcommand for inspecting configuration.
func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			h := cfg.Harvest
			fmt.Printf("Harvest:\n")
			fmt.Printf("  Years:             %d..%d\n", h.StartYear, h.EndYear)
			fmt.Printf("  Base URL:          %s\n", h.BaseURL)
			fmt.Printf("  On Error:          %s\n", h.OnError)
			fmt.Printf("  Politeness Delay:  %s\n", h.PolitenessDelay)
			fmt.Printf("  Respect robots.txt: %v\n", h.RespectRobots)
			fmt.Printf("  Rank Rule:         %s %s ~ %s\n", h.Rank.Tag, h.Rank.Attr, h.Rank.Pattern)
			fmt.Printf("  Name Rule:         %s %s ~ %s\n", h.Name.Tag, h.Name.Attr, h.Name.Pattern)
			if h.Name.Exclude != nil {
				fmt.Printf("  Name Exclude:      %s %s ~ %s\n", h.Name.Exclude.Tag, h.Name.Exclude.Attr, h.Name.Exclude.Pattern)
			}
			fmt.Printf("\nFetcher:\n")
			fmt.Printf("  Type:              %s\n", cfg.Fetcher.Type)
			fmt.Printf("  Request Timeout:   %s\n", cfg.Fetcher.RequestTimeout)
			fmt.Printf("  Max Retries:       %d\n", cfg.Fetcher.MaxRetries)
			fmt.Printf("  User Agents:       %d configured\n", len(cfg.Fetcher.UserAgents))
			fmt.Printf("  Max Body Size:     %d bytes\n", cfg.Fetcher.MaxBodySize)
			fmt.Printf("\nStorage:\n")
			fmt.Printf("  Type:              %s\n", cfg.Storage.Type)
			fmt.Printf("  Output Path:       %s\n", cfg.Storage.OutputPath)
			fmt.Printf("  SQLite:            %v (%s)\n", cfg.Storage.SQLite.Enabled, cfg.Storage.SQLite.Path)
			fmt.Printf("  MongoDB:           %v (%s)\n", cfg.Storage.Mongo.Enabled, cfg.Storage.Mongo.URI)
			fmt.Printf("\nLogging:\n")
			fmt.Printf("  Level:             %s\n", cfg.Logging.Level)
			fmt.Printf("  Output:            %s\n", cfg.Logging.Output)
			fmt.Printf("  Dir:               %s\n", cfg.Logging.Dir)
			fmt.Printf("\nMetrics:\n")
			fmt.Printf("  Enabled:           %v\n", cfg.Metrics.Enabled)
			fmt.Printf("  Port:              %d\n", cfg.Metrics.Port)
			return nil
		},
	}
	return cmd
}

// applyCLIOverrides applies command-line flag values to the config.
func applyCLIOverrides(cfg *config.Config) error {
	if startYear > 0 {
		cfg.Harvest.StartYear = startYear
	}
	if endYear > 0 {
		cfg.Harvest.EndYear = endYear
	}
	if baseURL != "" {
		cfg.Harvest.BaseURL = baseURL
	}
	if onError != "" {
		cfg.Harvest.OnError = strings.ToLower(onError)
	}
	if delay != "" {
		d, err := time.ParseDuration(delay)
		if err != nil {
			return fmt.Errorf("invalid --delay %q: %w", delay, err)
		}
		cfg.Harvest.PolitenessDelay = d
	}
	if timeout != "" {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			return fmt.Errorf("invalid --timeout %q: %w", timeout, err)
		}
		cfg.Fetcher.RequestTimeout = d
	}
	if maxRetries >= 0 {
		cfg.Fetcher.MaxRetries = maxRetries
	}
	if fetcherType != "" {
		cfg.Fetcher.Type = strings.ToLower(fetcherType)
	}
	if outputPath != "" {
		cfg.Storage.OutputPath = outputPath
	}
	if outputType != "" {
		cfg.Storage.Type = strings.ToLower(outputType)
	}
	if logDir != "" {
		cfg.Logging.Dir = logDir
	}
	if robots {
		cfg.Harvest.RespectRobots = true
	}
	return nil
}
