package fetcher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/IshaanNene/boxharvest/internal/config"
	"github.com/IshaanNene/boxharvest/internal/types"
)

// Fetcher is the interface for all page fetcher implementations.
type Fetcher interface {
	// Fetch retrieves the content at the given request's URL.
	Fetch(ctx context.Context, req *types.Request) (*types.Response, error)

	// Close releases any resources held by the fetcher.
	Close() error

	// Type returns the fetcher type identifier.
	Type() string
}

// New builds the fetcher selected by cfg.Fetcher.Type, wrapped in retries.
func New(cfg *config.Config, logger *slog.Logger, opts ...RetryOption) (Fetcher, error) {
	var base Fetcher
	var err error
	switch cfg.Fetcher.Type {
	case "http", "":
		base, err = NewHTTPFetcher(cfg, logger)
	case "browser":
		base, err = NewBrowserFetcher(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported fetcher type: %s", cfg.Fetcher.Type)
	}
	if err != nil {
		return nil, err
	}
	return NewRetryFetcher(base, cfg.Fetcher, logger, opts...), nil
}
