package observability

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsServeHTTP(t *testing.T) {
	m := NewMetrics(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	m.YearsOK.Add(2)
	m.RowsExtracted.Add(100)

	rec := httptest.NewRecorder()
	m.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, body, "# TYPE boxharvest_years_ok_total counter")
	assert.Contains(t, body, "boxharvest_years_ok_total 2\n")
	assert.Contains(t, body, "boxharvest_rows_extracted_total 100\n")

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap["years_ok"])
	assert.Equal(t, int64(0), snap["years_failed"])
}

func TestInstrument(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	boom := errors.New("boom")
	err := Instrument(logger, "extract_2000", func() error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, buf.String(), "call=extract_2000")
	assert.Contains(t, buf.String(), "duration_ms=")
	assert.Contains(t, buf.String(), "heap_delta_bytes=")
	assert.Contains(t, buf.String(), "ok=false")

	buf.Reset()
	n, err := InstrumentValue(logger, "harvest", func() (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, n)
	assert.Contains(t, buf.String(), "ok=true")
}
