package storage

import (
	"log/slog"

	"github.com/IshaanNene/boxharvest/internal/config"
	"github.com/IshaanNene/boxharvest/internal/types"
)

// Storage is the interface for all storage backends.
type Storage interface {
	// Store persists the rows of a finished table.
	Store(rows []types.Row) error

	// Close flushes pending writes and releases resources.
	Close() error

	// Name returns the storage backend identifier.
	Name() string
}

// New builds the primary file storage plus any enabled database mirrors.
func New(cfg config.StorageConfig, logger *slog.Logger) (Storage, error) {
	primary, err := NewFileStorage(cfg.Type, cfg.OutputPath, logger)
	if err != nil {
		return nil, err
	}

	backends := []Storage{primary}
	if cfg.SQLite.Enabled {
		s, err := NewSQLiteStorage(cfg.SQLite.Path, cfg.SQLite.Table, logger)
		if err != nil {
			_ = closeAll(backends)
			return nil, err
		}
		backends = append(backends, s)
	}
	if cfg.Mongo.Enabled {
		s, err := NewMongoStorage(cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.Collection, logger)
		if err != nil {
			_ = closeAll(backends)
			return nil, err
		}
		backends = append(backends, s)
	}

	if len(backends) == 1 {
		return primary, nil
	}
	return NewMultiStorage(backends, logger), nil
}

func closeAll(backends []Storage) error {
	var firstErr error
	for _, b := range backends {
		if err := b.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
