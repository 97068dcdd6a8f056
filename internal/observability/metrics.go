package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// Metrics tracks operational metrics for a harvest run.
type Metrics struct {
	// Year metrics
	YearsAttempted atomic.Int64
	YearsOK        atomic.Int64
	YearsFailed    atomic.Int64

	// Fetch metrics
	FetchRetries    atomic.Int64
	BytesDownloaded atomic.Int64

	// Row metrics
	RowsExtracted    atomic.Int64
	RowsTruncated    atomic.Int64
	ElementsExcluded atomic.Int64
	RowsStored       atomic.Int64

	logger *slog.Logger
	server *http.Server
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(logger *slog.Logger) *Metrics {
	return &Metrics{
		logger: logger.With("component", "metrics"),
	}
}

// ServeHTTP serves metrics in Prometheus text exposition format.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	metrics := []struct {
		name  string
		help  string
		value int64
	}{
		{"boxharvest_years_attempted_total", "Listing years attempted", m.YearsAttempted.Load()},
		{"boxharvest_years_ok_total", "Listing years harvested", m.YearsOK.Load()},
		{"boxharvest_years_failed_total", "Listing years that failed", m.YearsFailed.Load()},
		{"boxharvest_fetch_retries_total", "Fetch attempts retried", m.FetchRetries.Load()},
		{"boxharvest_bytes_downloaded_total", "Total bytes downloaded", m.BytesDownloaded.Load()},
		{"boxharvest_rows_extracted_total", "Rows extracted", m.RowsExtracted.Load()},
		{"boxharvest_rows_truncated_total", "Cells dropped by column zipping", m.RowsTruncated.Load()},
		{"boxharvest_elements_excluded_total", "Name candidates removed by exclusion", m.ElementsExcluded.Load()},
		{"boxharvest_rows_stored_total", "Rows written to storage", m.RowsStored.Load()},
	}

	for _, metric := range metrics {
		fmt.Fprintf(w, "# HELP %s %s\n", metric.name, metric.help)
		fmt.Fprintf(w, "# TYPE %s counter\n", metric.name)
		fmt.Fprintf(w, "%s %d\n", metric.name, metric.value)
	}
}

// StartServer starts the metrics HTTP server in the background.
func (m *Metrics) StartServer(port int, path string) error {
	mux := http.NewServeMux()
	mux.Handle(path, m)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	addr := fmt.Sprintf(":%d", port)
	m.server = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	m.logger.Info("metrics server starting", "addr", addr, "path", path)

	go func() {
		if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("metrics server error", "error", err)
		}
	}()

	return nil
}

// Shutdown stops the metrics server if it was started.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}

// Snapshot returns all metrics as a map.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"years_attempted":   m.YearsAttempted.Load(),
		"years_ok":          m.YearsOK.Load(),
		"years_failed":      m.YearsFailed.Load(),
		"fetch_retries":     m.FetchRetries.Load(),
		"bytes_downloaded":  m.BytesDownloaded.Load(),
		"rows_extracted":    m.RowsExtracted.Load(),
		"rows_truncated":    m.RowsTruncated.Load(),
		"elements_excluded": m.ElementsExcluded.Load(),
		"rows_stored":       m.RowsStored.Load(),
	}
}

// LogSnapshot writes the current counters at info level.
func (m *Metrics) LogSnapshot() {
	snap := m.Snapshot()
	args := make([]any, 0, len(snap)*2)
	for _, k := range []string{
		"years_attempted", "years_ok", "years_failed", "fetch_retries", "bytes_downloaded",
		"rows_extracted", "rows_truncated", "elements_excluded", "rows_stored",
	} {
		args = append(args, k, snap[k])
	}
	m.logger.Info("harvest metrics", args...)
}
