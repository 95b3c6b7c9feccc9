package backend

import (
	"context"
	"fmt"

	"koin/internal/log"
	"koin/internal/storage"
	"koin/internal/store/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLBackend(storage.SQLite, config.SQLiteDBPath, func() (*storage.Repository, error) {
			return storage.NewSQLiteRepository(config.SQLiteDBPath, f.logger)
		})
	case PostgresBackend:
		return f.createSQLBackend(storage.Postgres, "", func() (*storage.Repository, error) {
			return storage.NewPostgresRepository(config.DatabaseURL, f.logger)
		})
	case MemoryBackend:
		return f.createMemoryBackend()
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLBackend(d storage.Dialect, location string, open func() (*storage.Repository, error)) (*BackendResult, error) {
	repo, err := open()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s repository: %w", d.Name, err)
	}

	args := []any{"dialect", d.Name}
	if location != "" {
		args = append(args, "db_path", location)
	}
	f.logger.Info("Initialized SQL backend", args...)

	return &BackendResult{
		Store:   repo,
		Cleanup: repo.Close,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend() (*BackendResult, error) {
	s := memory.New()

	f.logger.Warn("Initialized memory backend, data is lost on restart")

	return &BackendResult{
		Store:   s,
		Cleanup: s.Close,
	}, nil
}
