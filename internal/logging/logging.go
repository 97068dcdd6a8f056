package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/IshaanNene/boxharvest/internal/config"
)

// Setup builds the process logger from cfg. verbose forces debug level.
// The returned close function flushes and closes the log file, if any.
func Setup(cfg config.LoggingConfig, verbose bool) (*slog.Logger, func() error, error) {
	return setupAt(cfg, verbose, time.Now(), os.Stderr)
}

func setupAt(cfg config.LoggingConfig, verbose bool, now time.Time, stderr io.Writer) (*slog.Logger, func() error, error) {
	level := ParseLevel(cfg.Level)
	if verbose {
		level = slog.LevelDebug
	}

	closeFn := func() error { return nil }

	var w io.Writer
	switch strings.ToLower(cfg.Output) {
	case "", "stderr":
		w = stderr
	case "file", "both":
		f, err := openLogFile(cfg.Dir, now)
		if err != nil {
			return nil, nil, err
		}
		closeFn = f.Close
		w = f
		if strings.EqualFold(cfg.Output, "both") {
			w = io.MultiWriter(stderr, f)
		}
	default:
		return nil, nil, fmt.Errorf("unsupported log output: %s", cfg.Output)
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler), closeFn, nil
}

// ParseLevel maps a config level name to a slog level. Unknown names are info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// FilePath returns <dir>/<YYYYMMDD>/Log_<HHMMSS>.log for a run started at now.
func FilePath(dir string, now time.Time) string {
	return filepath.Join(dir, now.Format("20060102"), "Log_"+now.Format("150405")+".log")
}

func openLogFile(dir string, now time.Time) (*os.File, error) {
	if dir == "" {
		dir = "./log"
	}
	path := FilePath(dir, now)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}
