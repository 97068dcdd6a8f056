package pipeline

import (
	"html"
	"log/slog"
	"strings"

	"github.com/IshaanNene/boxharvest/internal/types"
)

// Middleware processes a row and returns the (possibly modified) row.
// Return nil to drop the row from the table.
type Middleware interface {
	// Name returns the middleware's identifier.
	Name() string

	// Process transforms a row. Return nil to drop the row.
	Process(row *types.Row) (*types.Row, error)
}

// Pipeline chains middleware processors together.
type Pipeline struct {
	middlewares []Middleware
	logger      *slog.Logger
}

// New creates a new Pipeline.
func New(logger *slog.Logger) *Pipeline {
	return &Pipeline{
		logger: logger.With("component", "pipeline"),
	}
}

// Default returns the cleanup chain applied to every harvested table.
// Extracted text is already entity-decoded, so HTMLUnescapeMiddleware is
// not part of it.
func Default(logger *slog.Logger) *Pipeline {
	p := New(logger)
	p.Use(&TrimMiddleware{})
	p.Use(&RankCleanMiddleware{})
	return p
}

// Use adds a middleware to the pipeline chain.
func (p *Pipeline) Use(mw Middleware) {
	p.middlewares = append(p.middlewares, mw)
	p.logger.Debug("middleware added", "name", mw.Name(), "position", len(p.middlewares))
}

// Process runs the row through all middleware in order.
func (p *Pipeline) Process(row *types.Row) (*types.Row, error) {
	current := row

	for _, mw := range p.middlewares {
		result, err := mw.Process(current)
		if err != nil {
			return nil, &types.PipelineError{
				Stage: mw.Name(),
				Row:   current,
				Err:   err,
			}
		}
		if result == nil {
			p.logger.Debug("row dropped", "stage", mw.Name(), "year", row.Year, "name", row.Name)
			return nil, nil
		}
		current = result
	}

	return current, nil
}

// Apply runs every row of t through the pipeline in place, removing dropped rows.
func (p *Pipeline) Apply(t *types.Table) error {
	kept := t.Rows[:0]
	for i := range t.Rows {
		row, err := p.Process(&t.Rows[i])
		if err != nil {
			return err
		}
		if row != nil {
			kept = append(kept, *row)
		}
	}
	t.Rows = kept
	return nil
}

// Len returns the number of middleware in the chain.
func (p *Pipeline) Len() int {
	return len(p.middlewares)
}

// --- Built-in Middleware ---

// TrimMiddleware trims whitespace from the text fields.
type TrimMiddleware struct{}

func (m *TrimMiddleware) Name() string { return "trim" }

func (m *TrimMiddleware) Process(row *types.Row) (*types.Row, error) {
	row.Rank = strings.TrimSpace(row.Rank)
	row.Name = strings.TrimSpace(row.Name)
	return row, nil
}

// HTMLUnescapeMiddleware decodes entities left in the text fields.
type HTMLUnescapeMiddleware struct{}

func (m *HTMLUnescapeMiddleware) Name() string { return "html_unescape" }

func (m *HTMLUnescapeMiddleware) Process(row *types.Row) (*types.Row, error) {
	row.Rank = html.UnescapeString(row.Rank)
	row.Name = html.UnescapeString(row.Name)
	return row, nil
}

// RankCleanMiddleware strips the trailing period listing pages render after
// the rank ("1." becomes "1").
type RankCleanMiddleware struct{}

func (m *RankCleanMiddleware) Name() string { return "rank_clean" }

func (m *RankCleanMiddleware) Process(row *types.Row) (*types.Row, error) {
	row.Rank = CleanRank(row.Rank)
	return row, nil
}

// CleanRank removes trailing periods from a raw rank value.
func CleanRank(s string) string {
	return strings.TrimRight(s, ".")
}
