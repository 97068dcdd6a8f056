package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/IshaanNene/boxharvest/internal/types"
)

// createOutput creates (or truncates) path, making parent directories.
func createOutput(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}
	return f, nil
}

// openOutput opens the destination of writers that produce the whole file
// on Close. Tests replace it.
var openOutput = func(path string) (io.WriteCloser, error) {
	f, err := createOutput(path)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// --- JSON Storage ---

// JSONStorage writes rows as a JSON array to a file on Close.
type JSONStorage struct {
	path   string
	rows   []types.Row
	mu     sync.Mutex
	logger *slog.Logger
}

// NewJSONStorage creates a new JSON file storage.
func NewJSONStorage(outputPath string, logger *slog.Logger) (*JSONStorage, error) {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &JSONStorage{
		path:   outputPath,
		logger: logger.With("component", "json_storage"),
	}, nil
}

func (s *JSONStorage) Name() string { return "json" }

func (s *JSONStorage) Store(rows []types.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, rows...)
	return nil
}

func (s *JSONStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := openOutput(s.path)
	if err != nil {
		return err
	}

	rows := s.rows
	if rows == nil {
		rows = []types.Row{}
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rows); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode JSON: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close JSON: %w", err)
	}

	s.logger.Info("JSON written", "path", s.path, "rows", len(s.rows))
	return nil
}

// --- JSONL Storage ---

// JSONLStorage writes rows as newline-delimited JSON (one object per line).
type JSONLStorage struct {
	path   string
	file   *os.File
	enc    *json.Encoder
	mu     sync.Mutex
	count  int
	logger *slog.Logger
}

// NewJSONLStorage creates a new JSONL file storage.
func NewJSONLStorage(outputPath string, logger *slog.Logger) (*JSONLStorage, error) {
	f, err := createOutput(outputPath)
	if err != nil {
		return nil, err
	}
	return &JSONLStorage{
		path:   outputPath,
		file:   f,
		enc:    json.NewEncoder(f),
		logger: logger.With("component", "jsonl_storage"),
	}, nil
}

func (s *JSONLStorage) Name() string { return "jsonl" }

func (s *JSONLStorage) Store(rows []types.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range rows {
		if err := s.enc.Encode(row); err != nil {
			return fmt.Errorf("encode JSONL: %w", err)
		}
		s.count++
	}
	return nil
}

func (s *JSONLStorage) Close() error {
	s.logger.Info("JSONL written", "path", s.path, "rows", s.count)
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}

// --- CSV Storage ---

// CSVStorage writes rows as CSV with a movie_id,rank,name,year header.
type CSVStorage struct {
	path          string
	file          *os.File
	writer        *csv.Writer
	headerWritten bool
	mu            sync.Mutex
	count         int
	logger        *slog.Logger
}

// NewCSVStorage creates a new CSV file storage. An existing file is overwritten.
func NewCSVStorage(outputPath string, logger *slog.Logger) (*CSVStorage, error) {
	f, err := createOutput(outputPath)
	if err != nil {
		return nil, err
	}
	return &CSVStorage{
		path:   outputPath,
		file:   f,
		writer: csv.NewWriter(f),
		logger: logger.With("component", "csv_storage"),
	}, nil
}

func (s *CSVStorage) Name() string { return "csv" }

func (s *CSVStorage) Store(rows []types.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeHeader(); err != nil {
		return err
	}
	for _, row := range rows {
		if err := s.writer.Write(row.Strings()); err != nil {
			return fmt.Errorf("write CSV row: %w", err)
		}
		s.count++
	}

	s.writer.Flush()
	return s.writer.Error()
}

func (s *CSVStorage) writeHeader() error {
	if s.headerWritten {
		return nil
	}
	if err := s.writer.Write(types.Columns); err != nil {
		return fmt.Errorf("write CSV header: %w", err)
	}
	s.headerWritten = true
	return nil
}

func (s *CSVStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// An empty harvest still produces a file with a header.
	if err := s.writeHeader(); err != nil {
		return err
	}
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		_ = s.file.Close()
		return fmt.Errorf("flush CSV: %w", err)
	}
	s.logger.Info("CSV written", "path", s.path, "rows", s.count)
	return s.file.Close()
}

// NewFileStorage creates the file-based storage for storageType at outputPath.
func NewFileStorage(storageType, outputPath string, logger *slog.Logger) (Storage, error) {
	switch storageType {
	case "json":
		return NewJSONStorage(outputPath, logger)
	case "jsonl":
		return NewJSONLStorage(outputPath, logger)
	case "csv", "":
		return NewCSVStorage(outputPath, logger)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}
}
