package observability

import (
	"log/slog"
	"runtime"
	"time"
)

// Instrument runs fn and logs its wall time and heap delta under name.
// The error from fn is returned unchanged.
func Instrument(logger *slog.Logger, name string, fn func() error) error {
	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	start := time.Now()

	err := fn()

	elapsed := time.Since(start)
	runtime.ReadMemStats(&after)

	logger.Info("instrumented call",
		"call", name,
		"duration_ms", elapsed.Milliseconds(),
		"heap_delta_bytes", int64(after.HeapAlloc)-int64(before.HeapAlloc),
		"ok", err == nil,
	)
	return err
}

// InstrumentValue is Instrument for functions that return a value.
func InstrumentValue[T any](logger *slog.Logger, name string, fn func() (T, error)) (T, error) {
	var out T
	err := Instrument(logger, name, func() error {
		var err error
		out, err = fn()
		return err
	})
	return out, err
}
