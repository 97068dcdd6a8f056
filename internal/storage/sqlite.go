package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	_ "modernc.org/sqlite"

	"github.com/IshaanNene/boxharvest/internal/types"
)

var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLiteStorage mirrors the result table into a SQLite database.
type SQLiteStorage struct {
	db     *sql.DB
	path   string
	table  string
	count  int
	logger *slog.Logger
}

// NewSQLiteStorage opens (or creates) the database at path.
func NewSQLiteStorage(path, table string, logger *slog.Logger) (*SQLiteStorage, error) {
	if table == "" {
		table = "box_office"
	}
	if !tableNameRe.MatchString(table) {
		return nil, fmt.Errorf("invalid sqlite table name %q", table)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite ping: %w", err)
	}

	return &SQLiteStorage{
		db:     db,
		path:   path,
		table:  table,
		logger: logger.With("component", "sqlite_storage"),
	}, nil
}

func (s *SQLiteStorage) Name() string { return "sqlite" }

// Store recreates the table and inserts rows in a single transaction.
func (s *SQLiteStorage) Store(rows []types.Row) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []string{
		fmt.Sprintf(`DROP TABLE IF EXISTS %s`, s.table),
		fmt.Sprintf(`CREATE TABLE %s (
			movie_id INTEGER PRIMARY KEY,
			rank     TEXT NOT NULL,
			name     TEXT NOT NULL,
			year     INTEGER NOT NULL
		)`, s.table),
	}
	for _, q := range stmts {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("sqlite ddl: %w", err)
		}
	}

	ins, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %s (movie_id, rank, name, year) VALUES (?, ?, ?, ?)`, s.table))
	if err != nil {
		return fmt.Errorf("sqlite prepare: %w", err)
	}
	defer ins.Close()

	for _, row := range rows {
		if _, err := ins.ExecContext(ctx, row.ID, row.Rank, row.Name, row.Year); err != nil {
			return fmt.Errorf("sqlite insert movie_id=%d: %w", row.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite commit: %w", err)
	}

	s.count = len(rows)
	return nil
}

func (s *SQLiteStorage) Close() error {
	s.logger.Info("SQLite written", "path", s.path, "table", s.table, "rows", s.count)
	return s.db.Close()
}
