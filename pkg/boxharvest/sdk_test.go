package boxharvest

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listingServer(t *testing.T, titles map[string][]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		names, ok := titles[r.URL.Query().Get("year")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		var b strings.Builder
		b.WriteString("<html><body>")
		for i, name := range names {
			fmt.Fprintf(&b, `<div>
  <a href="/title/tt%07[1]d/"><img height="98" src="p.jpg"></a>
  <h3><span class="lister-item-index unbold text-primary">%[1]d.</span>
  <a href="/title/tt%07[1]d/">%[2]s</a></h3>
</div>`, i+1, name)
		}
		b.WriteString("</body></html>")
		_, _ = w.Write([]byte(b.String()))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRunAndSave(t *testing.T) {
	srv := listingServer(t, map[string][]string{
		"2010": {"Toy Story 3", "Alice in Wonderland"},
		"2011": {"Harry Potter and the Deathly Hallows: Part 2"},
	})
	out := filepath.Join(t.TempDir(), "rows.csv")

	h := New(
		WithYears(2010, 2011),
		WithBaseURL(srv.URL+"/search/title/"),
		WithDelay(0),
		WithOutput("csv", out),
	)
	h.SetLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	var seen []string
	h.OnRow(func(r *Row) { seen = append(seen, r.Rank) })

	rows, err := h.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, Row{ID: 2, Rank: "1", Name: "Harry Potter and the Deathly Hallows: Part 2", Year: 2011}, rows[2])
	assert.Equal(t, []string{"1", "2", "1"}, seen, "callbacks see cleaned ranks")

	require.NoError(t, h.Save(rows))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "movie_id,rank,name,year\n"+
		"0,1,Toy Story 3,2010\n"+
		"1,2,Alice in Wonderland,2010\n"+
		"2,1,Harry Potter and the Deathly Hallows: Part 2,2011\n", string(data))

	stats := h.Stats()
	assert.Equal(t, int64(2), stats["years_ok"])
	assert.Equal(t, int64(3), stats["rows_stored"])
}

func TestRunInvalidConfig(t *testing.T) {
	_, err := New(WithYears(2012, 2010)).Run(context.Background())
	assert.Error(t, err)
}
