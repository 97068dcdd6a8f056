package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/IshaanNene/boxharvest/internal/config"
	"github.com/IshaanNene/boxharvest/internal/fetcher"
	"github.com/IshaanNene/boxharvest/internal/observability"
	"github.com/IshaanNene/boxharvest/internal/parser"
	"github.com/IshaanNene/boxharvest/internal/pipeline"
	"github.com/IshaanNene/boxharvest/internal/types"
)

// Error policies for a year that cannot be harvested.
const (
	OnErrorAbort = "abort"
	OnErrorSkip  = "skip"
)

// Option configures a Harvester.
type Option func(*Harvester)

// WithMetrics records harvest counters into m.
func WithMetrics(m *observability.Metrics) Option {
	return func(h *Harvester) { h.metrics = m }
}

// WithPipeline replaces the default row cleanup chain.
func WithPipeline(p *pipeline.Pipeline) Option {
	return func(h *Harvester) { h.pipeline = p }
}

// WithExtractor replaces the default bucketed extractor.
func WithExtractor(x parser.Extractor) Option {
	return func(h *Harvester) { h.extractor = x }
}

// Harvester walks the configured year range and assembles the result table.
type Harvester struct {
	cfg       config.HarvestConfig
	fetcher   fetcher.Fetcher
	matcher   *parser.Matcher
	extractor parser.Extractor
	pipeline  *pipeline.Pipeline
	metrics   *observability.Metrics
	robots    *RobotsPolicy
	rank      parser.Rule
	name      parser.Rule
	failures  []error
	hostDelay time.Duration
	logger    *slog.Logger
}

// NewHarvester creates a Harvester that fetches pages through f.
func NewHarvester(cfg config.HarvestConfig, f fetcher.Fetcher, logger *slog.Logger, opts ...Option) (*Harvester, error) {
	if f == nil {
		return nil, types.ErrNoFetcher
	}

	h := &Harvester{
		cfg:       cfg,
		fetcher:   f,
		matcher:   parser.NewMatcher(logger),
		extractor: parser.DefaultExtractor(),
		rank:      parser.RuleFromConfig("rank", cfg.Rank),
		name:      parser.RuleFromConfig("name", cfg.Name),
		logger:    logger.With("component", "harvester"),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.pipeline == nil {
		h.pipeline = pipeline.Default(logger)
	}
	if h.metrics == nil {
		h.metrics = observability.NewMetrics(logger)
	}
	if cfg.RespectRobots {
		h.robots = NewRobotsPolicy(f, "boxharvest", logger)
	}

	// Fail on bad patterns before the first request goes out.
	for _, r := range []parser.Rule{h.rank, h.name} {
		if _, err := r.Include(); err != nil {
			return nil, &types.ParseError{Selector: r.Selector(), Err: err}
		}
		if r.Exclude != nil {
			if _, err := r.Exclude.Predicate(); err != nil {
				return nil, &types.ParseError{Selector: r.Selector(), Err: err}
			}
		}
	}

	return h, nil
}

// Metrics returns the counters the harvester writes to.
func (h *Harvester) Metrics() *observability.Metrics {
	return h.metrics
}

// Failures returns the per-year errors skipped during the last Harvest.
func (h *Harvester) Failures() []error {
	return h.failures
}

// Harvest fetches every year from StartYear to EndYear inclusive, in order,
// and returns the concatenated table with cleaned ranks and positional ids.
//
// A year that fails is logged and skipped under OnErrorSkip. Under
// OnErrorAbort, or when ctx is canceled, the rows collected so far are still
// returned, finalized, together with the error.
func (h *Harvester) Harvest(ctx context.Context) (*types.Table, error) {
	if h.cfg.StartYear > h.cfg.EndYear {
		return nil, fmt.Errorf("%w: %d > %d", types.ErrInvalidRange, h.cfg.StartYear, h.cfg.EndYear)
	}

	h.failures = nil
	table := &types.Table{}
	start := time.Now()

	h.logger.Info("harvest starting",
		"start_year", h.cfg.StartYear,
		"end_year", h.cfg.EndYear,
		"on_error", h.cfg.OnError,
	)

	runErr := h.loop(ctx, table)

	if err := h.finalize(table); err != nil {
		return table, errors.Join(runErr, err)
	}

	h.logger.Info("harvest finished",
		"rows", table.Len(),
		"years_ok", h.metrics.YearsOK.Load(),
		"years_failed", h.metrics.YearsFailed.Load(),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return table, runErr
}

func (h *Harvester) loop(ctx context.Context, table *types.Table) error {
	for year := h.cfg.StartYear; year <= h.cfg.EndYear; year++ {
		if year > h.cfg.StartYear {
			if err := h.pause(ctx); err != nil {
				return fmt.Errorf("%w: %w", types.ErrHarvestStopped, err)
			}
		}

		h.logger.Info(fmt.Sprintf("---------- %d ----------", year))

		rs, err := h.HarvestYear(ctx, year)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fmt.Errorf("%w: %w", types.ErrHarvestStopped, ctxErr)
			}
			h.metrics.YearsFailed.Add(1)
			if h.cfg.OnError == OnErrorAbort {
				h.logger.Error("year failed, aborting", "year", year, "error", err)
				return err
			}
			h.logger.Warn("year failed, skipping", "year", year, "error", err)
			h.failures = append(h.failures, err)
			continue
		}

		h.metrics.YearsOK.Add(1)
		table.Append(rs)
	}
	return nil
}

// finalize runs the cleanup chain and assigns ids once all years are in.
func (h *Harvester) finalize(table *types.Table) error {
	if err := h.pipeline.Apply(table); err != nil {
		return err
	}
	table.Reindex()
	return nil
}

// pause waits the politeness delay between two listing requests. A longer
// robots.txt crawl delay wins.
func (h *Harvester) pause(ctx context.Context) error {
	d := fetcher.RandomDelay(h.cfg.PolitenessDelay)
	d = max(d, h.hostDelay)
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// HarvestYear fetches and extracts the listing page of a single year.
// Any returned error is a *types.YearError.
func (h *Harvester) HarvestYear(ctx context.Context, year int) (*types.RecordSet, error) {
	h.metrics.YearsAttempted.Add(1)

	rawURL, err := ListingURL(h.cfg.BaseURL, year)
	if err != nil {
		return nil, &types.YearError{Year: year, Err: err}
	}
	req, err := types.NewRequest(rawURL)
	if err != nil {
		return nil, &types.YearError{Year: year, Err: err}
	}
	req.Year = year

	if h.robots != nil {
		allowed, delay, err := h.robots.Allowed(ctx, rawURL)
		if err != nil {
			return nil, &types.YearError{Year: year, Err: err}
		}
		if !allowed {
			return nil, &types.YearError{Year: year, Err: fmt.Errorf("%w: %s", types.ErrBlocked, rawURL)}
		}
		h.hostDelay = delay
	}

	resp, err := h.fetcher.Fetch(ctx, req)
	if err != nil {
		return nil, &types.YearError{Year: year, Err: err}
	}
	h.metrics.BytesDownloaded.Add(int64(len(resp.Body)))

	var rs *types.RecordSet
	err = observability.Instrument(h.logger, "extract_"+strconv.Itoa(year), func() error {
		var err error
		rs, err = h.extract(resp, year)
		return err
	})
	if err != nil {
		return nil, &types.YearError{Year: year, Err: err}
	}

	if mm := rs.Mismatch(); mm != nil {
		h.metrics.RowsTruncated.Add(int64(rs.Truncated()))
		h.logger.Warn("column lengths differ, truncating", "year", year, "error", mm)
	}
	h.metrics.RowsExtracted.Add(int64(len(rs.Rows)))
	h.metrics.ElementsExcluded.Add(int64(rs.Excluded))

	h.logger.Info("year harvested",
		"year", year,
		"rows", len(rs.Rows),
		"ranks", rs.Ranks,
		"names", rs.Names,
		"excluded", rs.Excluded,
	)
	return rs, nil
}

func (h *Harvester) extract(resp *types.Response, year int) (*types.RecordSet, error) {
	doc, err := parser.DocumentFromResponse(resp)
	if err != nil {
		return nil, err
	}

	rankRes, err := h.matcher.Match(doc, h.rank)
	if err != nil {
		return nil, err
	}
	nameRes, err := h.matcher.Match(doc, h.name)
	if err != nil {
		return nil, err
	}

	ranks, err := h.extractor.Extract(h.rank.Name, rankRes.Elements)
	if err != nil {
		return nil, err
	}
	names, err := h.extractor.Extract(h.name.Name, nameRes.Elements)
	if err != nil {
		return nil, err
	}

	rs := types.NewRecordSet(year, ranks, names)
	rs.Excluded = nameRes.Excluded
	return rs, nil
}

// ListingURL builds the box-office listing URL of year on base. Existing
// query parameters on base are kept; the year, title type and sort order
// are set. The sort value keeps its literal comma.
func ListingURL(base string, year int) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", types.ErrInvalidURL, base, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: %q: missing scheme or host", types.ErrInvalidURL, base)
	}

	q := u.Query()
	q.Del("year")
	q.Del("title_type")
	q.Del("sort")

	raw := fmt.Sprintf("year=%d&title_type=feature&sort=boxoffice_gross_us,desc", year)
	if rest := q.Encode(); rest != "" {
		raw = rest + "&" + raw
	}
	u.RawQuery = raw
	return u.String(), nil
}
