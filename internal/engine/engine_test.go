package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/boxharvest/internal/config"
	"github.com/IshaanNene/boxharvest/internal/fetcher"
	"github.com/IshaanNene/boxharvest/internal/observability"
	"github.com/IshaanNene/boxharvest/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

type movie struct {
	id    string
	title string
}

func listingPage(year int, movies []movie) string {
	var b strings.Builder
	b.WriteString(`<!DOCTYPE html><html><body><div class="lister-list">`)
	for i, m := range movies {
		fmt.Fprintf(&b, `
<div class="lister-item mode-advanced">
  <div class="lister-item-image float-left">
    <a href="/title/%[2]s/"><img alt="%[3]s" height="98" width="67" src="p.jpg"></a>
  </div>
  <div class="lister-item-content">
    <h3 class="lister-item-header">
      <span class="lister-item-index unbold text-primary">%[1]d.</span>
      <a href="/title/%[2]s/">%[3]s</a>
      <span class="lister-item-year text-muted unbold">(%[4]d)</span>
    </h3>
  </div>
</div>`, i+1, m.id, m.title, year)
	}
	b.WriteString(`</div></body></html>`)
	return b.String()
}

// listingServer serves one page per year from pages; other years get 404.
// Every requested year is recorded in order.
type listingServer struct {
	*httptest.Server
	mu     sync.Mutex
	years  []int
	status map[int]int
	robots string
}

func newListingServer(t *testing.T, pages map[int]string) *listingServer {
	t.Helper()
	ls := &listingServer{status: map[int]int{}}
	ls.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			if ls.robots == "" {
				http.NotFound(w, r)
				return
			}
			_, _ = w.Write([]byte(ls.robots))
			return
		}
		q := r.URL.Query()
		year, _ := strconv.Atoi(q.Get("year"))
		ls.mu.Lock()
		ls.years = append(ls.years, year)
		code := ls.status[year]
		ls.mu.Unlock()

		if q.Get("title_type") != "feature" || q.Get("sort") != "boxoffice_gross_us,desc" {
			http.Error(w, "bad query", http.StatusBadRequest)
			return
		}
		if code != 0 {
			w.WriteHeader(code)
			return
		}
		body, ok := pages[year]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(ls.Close)
	return ls
}

func (ls *listingServer) requested() []int {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return append([]int(nil), ls.years...)
}

func newTestHarvester(t *testing.T, baseURL string, start, end int, onError string) *Harvester {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Harvest.BaseURL = baseURL + "/search/title/"
	cfg.Harvest.StartYear = start
	cfg.Harvest.EndYear = end
	cfg.Harvest.OnError = onError
	cfg.Harvest.PolitenessDelay = 0
	cfg.Fetcher.MaxRetries = 1
	cfg.Fetcher.RetryDelay = time.Millisecond
	cfg.Fetcher.MaxRetryDelay = time.Millisecond

	f, err := fetcher.New(cfg, testLogger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	h, err := NewHarvester(cfg.Harvest, f, testLogger, WithMetrics(observability.NewMetrics(testLogger)))
	require.NoError(t, err)
	return h
}

// --- Listing URL Tests ---

func TestListingURL(t *testing.T) {
	got, err := ListingURL("https://www.imdb.com/search/title/", 2000)
	require.NoError(t, err)
	assert.Equal(t, "https://www.imdb.com/search/title/?year=2000&title_type=feature&sort=boxoffice_gross_us,desc", got)

	got, err = ListingURL("https://example.com/search/?lang=en&year=1900", 1995)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/search/?lang=en&year=1995&title_type=feature&sort=boxoffice_gross_us,desc", got)

	for _, bad := range []string{"", "not a url", "/relative/path", "http://%zz"} {
		_, err := ListingURL(bad, 2000)
		assert.ErrorIs(t, err, types.ErrInvalidURL, "base %q", bad)
	}
}

// --- Harvester Tests ---

func TestHarvestSingleYear(t *testing.T) {
	srv := newListingServer(t, map[int]string{
		2000: listingPage(2000, []movie{
			{"tt0120338", "Titanic"},
			{"tt0076759", "Star Wars"},
			{"tt0107290", "Jurassic Park"},
		}),
	})
	h := newTestHarvester(t, srv.URL, 2000, 2000, OnErrorAbort)

	table, err := h.Harvest(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []types.Row{
		{ID: 0, Rank: "1", Name: "Titanic", Year: 2000},
		{ID: 1, Rank: "2", Name: "Star Wars", Year: 2000},
		{ID: 2, Rank: "3", Name: "Jurassic Park", Year: 2000},
	}, table.Rows)
	assert.Equal(t, []int{2000}, table.Years)

	snap := h.Metrics().Snapshot()
	assert.Equal(t, int64(1), snap["years_ok"])
	assert.Equal(t, int64(3), snap["rows_extracted"])
	assert.Equal(t, int64(3), snap["elements_excluded"])
}

func TestHarvestKeepsVisibleEntities(t *testing.T) {
	srv := newListingServer(t, map[int]string{
		2000: listingPage(2000, []movie{
			{"tt0000001", "&amp;lt;3 Love"},
			{"tt0000002", "Fish &amp;amp; Chips"},
		}),
	})
	h := newTestHarvester(t, srv.URL, 2000, 2000, OnErrorAbort)

	table, err := h.Harvest(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []types.Row{
		{ID: 0, Rank: "1", Name: "&lt;3 Love", Year: 2000},
		{ID: 1, Rank: "2", Name: "Fish &amp; Chips", Year: 2000},
	}, table.Rows)
}

func TestHarvestConcatenatesYears(t *testing.T) {
	srv := newListingServer(t, map[int]string{
		2000: listingPage(2000, []movie{{"tt0000001", "A"}}),
		2001: listingPage(2001, []movie{{"tt0000002", "B"}}),
	})
	h := newTestHarvester(t, srv.URL, 2000, 2001, OnErrorAbort)

	table, err := h.Harvest(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []types.Row{
		{ID: 0, Rank: "1", Name: "A", Year: 2000},
		{ID: 1, Rank: "1", Name: "B", Year: 2001},
	}, table.Rows)
	assert.Equal(t, []int{2000, 2001}, srv.requested())
}

func TestHarvestEmptyPage(t *testing.T) {
	srv := newListingServer(t, map[int]string{
		2000: listingPage(2000, nil),
	})
	h := newTestHarvester(t, srv.URL, 2000, 2000, OnErrorAbort)

	table, err := h.Harvest(context.Background())
	require.NoError(t, err)
	assert.Zero(t, table.Len())
}

func TestHarvestColumnMismatchTruncates(t *testing.T) {
	page := listingPage(2005, []movie{{"tt0000001", "A"}, {"tt0000002", "B"}})
	// One extra rank without a matching title.
	page = strings.Replace(page, `</div></body>`,
		`<span class="lister-item-index unbold text-primary">3.</span></div></body>`, 1)

	srv := newListingServer(t, map[int]string{2005: page})
	h := newTestHarvester(t, srv.URL, 2005, 2005, OnErrorAbort)

	table, err := h.Harvest(context.Background())
	require.NoError(t, err)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "B", table.Rows[1].Name)
	assert.Equal(t, int64(1), h.Metrics().RowsTruncated.Load())
}

func TestHarvestSkipFailedYear(t *testing.T) {
	srv := newListingServer(t, map[int]string{
		2000: listingPage(2000, []movie{{"tt0000001", "A"}}),
		2002: listingPage(2002, []movie{{"tt0000003", "C"}}),
	})
	h := newTestHarvester(t, srv.URL, 2000, 2002, OnErrorSkip)

	table, err := h.Harvest(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []types.Row{
		{ID: 0, Rank: "1", Name: "A", Year: 2000},
		{ID: 1, Rank: "1", Name: "C", Year: 2002},
	}, table.Rows)

	require.Len(t, h.Failures(), 1)
	var ye *types.YearError
	require.True(t, errors.As(h.Failures()[0], &ye))
	assert.Equal(t, 2001, ye.Year)
	assert.Equal(t, int64(1), h.Metrics().YearsFailed.Load())
}

func TestHarvestAbortKeepsPartialTable(t *testing.T) {
	srv := newListingServer(t, map[int]string{
		2000: listingPage(2000, []movie{{"tt0000001", "A"}}),
		2002: listingPage(2002, []movie{{"tt0000003", "C"}}),
	})
	srv.status[2001] = http.StatusServiceUnavailable
	h := newTestHarvester(t, srv.URL, 2000, 2002, OnErrorAbort)

	table, err := h.Harvest(context.Background())
	require.Error(t, err)

	var ye *types.YearError
	require.True(t, errors.As(err, &ye))
	assert.Equal(t, 2001, ye.Year)
	assert.ErrorIs(t, err, types.ErrMaxRetries)

	require.NotNil(t, table)
	assert.Equal(t, []types.Row{{ID: 0, Rank: "1", Name: "A", Year: 2000}}, table.Rows)
	assert.NotContains(t, srv.requested(), 2002)
}

func TestHarvestCanceled(t *testing.T) {
	srv := newListingServer(t, map[int]string{
		2000: listingPage(2000, []movie{{"tt0000001", "A"}}),
	})
	h := newTestHarvester(t, srv.URL, 2000, 2003, OnErrorSkip)
	h.cfg.PolitenessDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	table, err := h.Harvest(ctx)
	require.ErrorIs(t, err, types.ErrHarvestStopped)
	assert.Equal(t, 1, table.Len())
	assert.Equal(t, []int{2000}, srv.requested())
}

func TestHarvestInvalidRange(t *testing.T) {
	h := newTestHarvester(t, "http://127.0.0.1:1", 2005, 2000, OnErrorSkip)
	_, err := h.Harvest(context.Background())
	assert.ErrorIs(t, err, types.ErrInvalidRange)
}

func TestNewHarvesterValidation(t *testing.T) {
	cfg := config.DefaultConfig()
	_, err := NewHarvester(cfg.Harvest, nil, testLogger)
	assert.ErrorIs(t, err, types.ErrNoFetcher)

	f, err := fetcher.New(cfg, testLogger)
	require.NoError(t, err)
	defer f.Close()

	cfg.Harvest.Name.Exclude.Pattern = "["
	_, err = NewHarvester(cfg.Harvest, f, testLogger)
	var pe *types.ParseError
	assert.True(t, errors.As(err, &pe))
}

// --- Robots Tests ---

func TestParseRobotsTxt(t *testing.T) {
	rules := parseRobotsTxt(`
# comment
User-agent: googlebot
Disallow: /

User-agent: boxharvest
User-agent: *
Disallow: /search/*year=2001
Allow: /search/title/?year=2001&title_type=feature
Crawl-delay: 1.5
`, "boxharvest")

	assert.Equal(t, []string{"/search/*year=2001"}, rules.disallowed)
	assert.Equal(t, []string{"/search/title/?year=2001&title_type=feature"}, rules.allowed)
	assert.Equal(t, 1500*time.Millisecond, rules.crawlDelay)
}

func TestMatchRobotsPattern(t *testing.T) {
	tests := []struct {
		pattern, path string
		want          bool
	}{
		{"/search/", "/search/title/?year=2000", true},
		{"/search/", "/title/tt1/", false},
		{"/search/*sort=", "/search/title/?year=2000&sort=x", true},
		{"/*.php$", "/index.php", true},
		{"/*.php$", "/index.php?x=1", false},
		{"/exact$", "/exact", true},
		{"/exact$", "/exactly", false},
		{"", "/anything", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, matchRobotsPattern(tt.pattern, tt.path), "%s vs %s", tt.pattern, tt.path)
	}
}

func TestHarvestRespectsRobots(t *testing.T) {
	srv := newListingServer(t, map[int]string{
		2000: listingPage(2000, []movie{{"tt0000001", "A"}}),
		2001: listingPage(2001, []movie{{"tt0000002", "B"}}),
	})
	srv.robots = "User-agent: *\nDisallow: /search/title/?year=2001\n"

	h := newTestHarvester(t, srv.URL, 2000, 2001, OnErrorSkip)
	h.robots = NewRobotsPolicy(h.fetcher, "boxharvest", testLogger)

	table, err := h.Harvest(context.Background())
	require.NoError(t, err)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, "A", table.Rows[0].Name)
	assert.Equal(t, []int{2000}, srv.requested())

	require.Len(t, h.Failures(), 1)
	assert.ErrorIs(t, h.Failures()[0], types.ErrBlocked)
}

func TestRobotsMissingAllowsAll(t *testing.T) {
	srv := newListingServer(t, map[int]string{
		2000: listingPage(2000, []movie{{"tt0000001", "A"}}),
	})
	h := newTestHarvester(t, srv.URL, 2000, 2000, OnErrorAbort)
	h.robots = NewRobotsPolicy(h.fetcher, "boxharvest", testLogger)

	table, err := h.Harvest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, table.Len())
}
