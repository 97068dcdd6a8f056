package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/IshaanNene/boxharvest/internal/config"
	"github.com/IshaanNene/boxharvest/internal/types"
)

// RetryNotify is called before every retry with the attempt number (1-based),
// the error that caused it and the wait before the next attempt.
type RetryNotify func(req *types.Request, attempt int, err error, wait time.Duration)

// RetryOption configures a RetryFetcher.
type RetryOption func(*RetryFetcher)

// WithRetryNotify registers a callback invoked before each retry.
func WithRetryNotify(fn RetryNotify) RetryOption {
	return func(f *RetryFetcher) { f.notify = fn }
}

// RetryFetcher retries retryable fetch errors with exponential backoff.
// Errors that are not a retryable *types.FetchError fail immediately.
type RetryFetcher struct {
	next            Fetcher
	maxRetries      uint64
	initialInterval time.Duration
	maxInterval     time.Duration
	notify          RetryNotify
	logger          *slog.Logger
}

// NewRetryFetcher wraps next with the retry policy from cfg.
func NewRetryFetcher(next Fetcher, cfg config.FetcherConfig, logger *slog.Logger, opts ...RetryOption) *RetryFetcher {
	f := &RetryFetcher{
		next:            next,
		maxRetries:      uint64(max(cfg.MaxRetries, 0)),
		initialInterval: cfg.RetryDelay,
		maxInterval:     cfg.MaxRetryDelay,
		logger:          logger.With("component", "retry_fetcher"),
	}
	if f.initialInterval <= 0 {
		f.initialInterval = 500 * time.Millisecond
	}
	if f.maxInterval < f.initialInterval {
		f.maxInterval = f.initialInterval
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch implements Fetcher.
func (f *RetryFetcher) Fetch(ctx context.Context, req *types.Request) (*types.Response, error) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = f.initialInterval
	exp.MaxInterval = f.maxInterval
	exp.MaxElapsedTime = 0

	hinted := &retryAfterBackOff{BackOff: exp}
	bo := backoff.WithContext(backoff.WithMaxRetries(hinted, f.maxRetries), ctx)

	var resp *types.Response
	var lastErr error
	attempt := 0

	op := func() error {
		r, err := f.next.Fetch(ctx, req)
		if err == nil {
			resp = r
			return nil
		}
		lastErr = err

		var fe *types.FetchError
		if !errors.As(err, &fe) || !fe.IsRetryable() {
			return backoff.Permanent(err)
		}
		hinted.hint = fe.RetryAfter
		return err
	}

	notify := func(err error, wait time.Duration) {
		attempt++
		req.RetryCount = attempt
		f.logger.Warn("fetch failed, retrying",
			"url", req.URLString(),
			"attempt", attempt,
			"wait", wait,
			"error", err,
		)
		if f.notify != nil {
			f.notify(req, attempt, err, wait)
		}
	}

	if err := backoff.RetryNotify(op, bo, notify); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %w", types.ErrHarvestStopped, ctxErr)
		}
		var fe *types.FetchError
		if attempt > 0 && attempt >= int(f.maxRetries) && errors.As(lastErr, &fe) && fe.IsRetryable() {
			return nil, fmt.Errorf("%w after %d attempts: %w", types.ErrMaxRetries, attempt+1, lastErr)
		}
		return nil, err
	}
	return resp, nil
}

// Close closes the wrapped fetcher.
func (f *RetryFetcher) Close() error {
	return f.next.Close()
}

// Type returns the wrapped fetcher type.
func (f *RetryFetcher) Type() string {
	return f.next.Type()
}

// retryAfterBackOff stretches the next interval to a server Retry-After hint.
type retryAfterBackOff struct {
	backoff.BackOff
	hint time.Duration
}

func (b *retryAfterBackOff) NextBackOff() time.Duration {
	d := b.BackOff.NextBackOff()
	if d == backoff.Stop {
		return d
	}
	if b.hint > d {
		d = b.hint
	}
	b.hint = 0
	return d
}
