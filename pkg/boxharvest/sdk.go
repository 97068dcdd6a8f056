// Package boxharvest provides a public SDK for embedding the box-office
// harvester as a library.
//
// Example usage:
//
//	h := boxharvest.New(
//	    boxharvest.WithYears(2000, 2005),
//	    boxharvest.WithOnError("skip"),
//	)
//
//	h.OnRow(func(r *boxharvest.Row) {
//	    r.Name = strings.ToUpper(r.Name)
//	})
//
//	rows, err := h.Run(ctx)
//	...
//	err = h.Save(rows)
package boxharvest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/IshaanNene/boxharvest/internal/config"
	"github.com/IshaanNene/boxharvest/internal/engine"
	"github.com/IshaanNene/boxharvest/internal/fetcher"
	"github.com/IshaanNene/boxharvest/internal/observability"
	"github.com/IshaanNene/boxharvest/internal/pipeline"
	"github.com/IshaanNene/boxharvest/internal/storage"
	"github.com/IshaanNene/boxharvest/internal/types"
)

// Row is one movie of the result table.
type Row = types.Row

// RowCallback is called for every row after the built-in cleanup, before
// ids are assigned. Callbacks may modify the row in place.
type RowCallback func(r *Row)

// Option configures a Harvester.
type Option func(*config.Config)

// WithYears sets the inclusive year range.
func WithYears(start, end int) Option {
	return func(c *config.Config) {
		c.Harvest.StartYear = start
		c.Harvest.EndYear = end
	}
}

// WithBaseURL sets the listing search base URL.
func WithBaseURL(u string) Option {
	return func(c *config.Config) { c.Harvest.BaseURL = u }
}

// WithOnError sets the failed-year policy ("abort" or "skip").
func WithOnError(policy string) Option {
	return func(c *config.Config) { c.Harvest.OnError = policy }
}

// WithDelay sets the politeness delay between years.
func WithDelay(d time.Duration) Option {
	return func(c *config.Config) { c.Harvest.PolitenessDelay = d }
}

// WithOutput sets the output format and path used by Save.
func WithOutput(format, path string) Option {
	return func(c *config.Config) {
		c.Storage.Type = format
		c.Storage.OutputPath = path
	}
}

// WithUserAgent sets a custom User-Agent.
func WithUserAgent(ua string) Option {
	return func(c *config.Config) { c.Fetcher.UserAgents = []string{ua} }
}

// WithMaxRetries sets the retry budget per listing request.
func WithMaxRetries(n int) Option {
	return func(c *config.Config) { c.Fetcher.MaxRetries = n }
}

// WithVerbose enables debug-level logging.
func WithVerbose() Option {
	return func(c *config.Config) { c.Logging.Level = "debug" }
}

// Harvester is the high-level API for using boxharvest as a library.
type Harvester struct {
	cfg       *config.Config
	logger    *slog.Logger
	callbacks []RowCallback
	metrics   *observability.Metrics
}

// New creates a new Harvester with the given options.
func New(opts ...Option) *Harvester {
	cfg := config.DefaultConfig()
	cfg.Logging.Output = "stderr"
	for _, opt := range opts {
		opt(cfg)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: levelOf(cfg.Logging.Level),
	}))

	return &Harvester{
		cfg:     cfg,
		logger:  logger,
		metrics: observability.NewMetrics(logger),
	}
}

// SetLogger replaces the default stderr logger.
func (h *Harvester) SetLogger(logger *slog.Logger) {
	h.logger = logger
	h.metrics = observability.NewMetrics(logger)
}

// OnRow registers a row callback. Callbacks run in registration order.
func (h *Harvester) OnRow(cb RowCallback) {
	h.callbacks = append(h.callbacks, cb)
}

// Run harvests the configured year range. On abort or cancellation the rows
// collected so far are returned with the error.
func (h *Harvester) Run(ctx context.Context) ([]Row, error) {
	if err := config.Validate(h.cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	f, err := fetcher.New(h.cfg, h.logger, fetcher.WithRetryNotify(
		func(*types.Request, int, error, time.Duration) { h.metrics.FetchRetries.Add(1) },
	))
	if err != nil {
		return nil, fmt.Errorf("create fetcher: %w", err)
	}
	defer f.Close()

	pipe := pipeline.Default(h.logger)
	for i, cb := range h.callbacks {
		pipe.Use(&callbackMiddleware{name: fmt.Sprintf("on_row_%d", i), cb: cb})
	}

	eng, err := engine.NewHarvester(h.cfg.Harvest, f, h.logger,
		engine.WithPipeline(pipe),
		engine.WithMetrics(h.metrics),
	)
	if err != nil {
		return nil, err
	}

	table, err := eng.Harvest(ctx)
	if table == nil {
		return nil, err
	}
	return table.Rows, err
}

// Save writes rows to the configured output, overwriting it.
func (h *Harvester) Save(rows []Row) error {
	store, err := storage.New(h.cfg.Storage, h.logger)
	if err != nil {
		return fmt.Errorf("create storage: %w", err)
	}
	if err := store.Store(rows); err != nil {
		_ = store.Close()
		return &types.StorageError{Backend: store.Name(), Err: err}
	}
	if err := store.Close(); err != nil {
		return &types.StorageError{Backend: store.Name(), Err: err}
	}
	h.metrics.RowsStored.Add(int64(len(rows)))
	return nil
}

// Stats returns harvest statistics.
func (h *Harvester) Stats() map[string]int64 {
	return h.metrics.Snapshot()
}

// callbackMiddleware adapts a RowCallback to the cleanup pipeline.
type callbackMiddleware struct {
	name string
	cb   RowCallback
}

func (m *callbackMiddleware) Name() string { return m.name }

func (m *callbackMiddleware) Process(row *types.Row) (*types.Row, error) {
	m.cb(row)
	return row, nil
}

func levelOf(s string) slog.Level {
	if s == "debug" {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
