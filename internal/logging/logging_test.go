package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/boxharvest/internal/config"
)

func TestFilePath(t *testing.T) {
	now := time.Date(2021, 3, 7, 9, 5, 2, 0, time.UTC)
	assert.Equal(t, filepath.Join("log", "20210307", "Log_090502.log"), FilePath("log", now))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}

func TestSetupBoth(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2021, 3, 7, 9, 5, 2, 0, time.UTC)
	var stderr bytes.Buffer

	logger, closeFn, err := setupAt(config.LoggingConfig{Level: "info", Format: "text", Output: "both", Dir: dir}, false, now, &stderr)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("harvest starting", "start_year", 2000)
	require.NoError(t, closeFn())

	data, err := os.ReadFile(FilePath(dir, now))
	require.NoError(t, err)
	assert.Contains(t, string(data), "harvest starting")
	assert.NotContains(t, string(data), "hidden")
	assert.Equal(t, string(data), stderr.String())
}

func TestSetupVerboseJSON(t *testing.T) {
	var stderr bytes.Buffer
	logger, closeFn, err := setupAt(config.LoggingConfig{Level: "error", Format: "json", Output: "stderr"}, true, time.Now(), &stderr)
	require.NoError(t, err)
	defer closeFn()

	logger.Debug("visible", "year", 1999)
	assert.Contains(t, stderr.String(), `"msg":"visible"`)
	assert.Contains(t, stderr.String(), `"year":1999`)
}

func TestSetupRejectsOutput(t *testing.T) {
	_, _, err := Setup(config.LoggingConfig{Output: "syslog"}, false)
	assert.Error(t, err)
}
