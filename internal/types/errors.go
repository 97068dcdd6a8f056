package types

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure modes.
var (
	ErrTimeout        = errors.New("request timed out")
	ErrMaxRetries     = errors.New("max retries exceeded")
	ErrEmptyResponse  = errors.New("empty response body")
	ErrInvalidURL     = errors.New("invalid URL")
	ErrHarvestStopped = errors.New("harvest has been stopped")
	ErrNoFetcher      = errors.New("no fetcher configured")
	ErrInvalidRange   = errors.New("start year is after end year")
	ErrBlocked        = errors.New("blocked by robots.txt")
)

// FetchError wraps errors that occur during fetching.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
	Retryable  bool
	RetryAfter time.Duration // populated from Retry-After header on HTTP 429
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch error for %s (status %d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch error for %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) IsRetryable() bool { return e.Retryable }

// ParseError wraps errors that occur during parsing or rule compilation.
type ParseError struct {
	URL      string
	Selector string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error for %s (selector=%q): %v", e.URL, e.Selector, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// StorageError wraps errors that occur during storage/export.
type StorageError struct {
	Backend string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error (%s): %v", e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// YearError ties a failure to the listing year that produced it.
type YearError struct {
	Year int
	Err  error
}

func (e *YearError) Error() string {
	return fmt.Sprintf("year %d: %v", e.Year, e.Err)
}

func (e *YearError) Unwrap() error { return e.Err }

// ColumnMismatchError reports rank and name columns of different lengths.
// It is a warning: the harvester truncates to the shorter column and goes on.
type ColumnMismatchError struct {
	Year  int
	Ranks int
	Names int
}

func (e *ColumnMismatchError) Error() string {
	return fmt.Sprintf("year %d: column length mismatch (rank=%d, name=%d)", e.Year, e.Ranks, e.Names)
}

// BucketOverflowError is returned when more elements match than fit in one
// page of buckets.
type BucketOverflowError struct {
	Field    string
	Elements int
	Buckets  int
}

func (e *BucketOverflowError) Error() string {
	return fmt.Sprintf("field %q: %d elements matched, more than %d buckets", e.Field, e.Elements, e.Buckets)
}

// PipelineError wraps errors that occur in the row cleanup pipeline.
type PipelineError struct {
	Stage string
	Row   *Row
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline error at stage %q: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }
