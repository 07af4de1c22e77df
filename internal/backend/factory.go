package backend

import (
	"context"
	"fmt"

	"settleflow/internal/log"
	"settleflow/internal/storage"
	"settleflow/internal/storage/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	return &DefaultFactory{
		logger: log.OrDefault(logger, log.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLBackend(ctx, storage.Options{Dialect: storage.SQLite, Path: config.SQLiteDBPath, Location: config.Location})
	case PostgresBackend:
		return f.createSQLBackend(ctx, storage.Options{Dialect: storage.Postgres, URL: config.PostgresURL, Location: config.Location})
	case MemoryBackend:
		return f.createMemoryBackend(ctx)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLBackend(ctx context.Context, opts storage.Options) (*BackendResult, error) {
	repo, err := storage.Open(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s repository: %w", opts.Dialect, err)
	}

	attrs := []any{"dialect", string(opts.Dialect)}
	if opts.Dialect == storage.SQLite {
		attrs = append(attrs, "db_path", opts.Path)
	}
	f.logger.InfoContext(ctx, "Initialized SQL backend", attrs...)

	return &BackendResult{
		Backend: repo,
		Cleanup: repo.Close,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend(ctx context.Context) (*BackendResult, error) {
	f.logger.InfoContext(ctx, "Initialized memory backend, data is lost on exit")

	return &BackendResult{
		Backend: memory.New(),
		Cleanup: nil, // No cleanup needed for memory backend
	}, nil
}
