package backend

import (
	"context"
	"time"

	"settleflow/internal/ports"
)

// Backend represents a unified store interface that provides every operation the services need
type Backend interface {
	ports.SettlementStore
	ports.LedgerReader
	ports.LedgerWriter
	ports.SettlementLister
	Ping(ctx context.Context) error
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the backend instance and optional cleanup function
type BackendResult struct {
	Backend Backend
	Cleanup CleanupFunc
}

// Close runs the cleanup function if there is one.
func (r *BackendResult) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend creates a backend instance based on the provided config
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	// Backend type
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// PostgreSQL specific, already resolved from DATABASE_URL or a profile
	PostgresURL string

	// Location reads stored times without an offset, normally the report zone
	Location *time.Location
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
	MemoryBackend   BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, PostgresBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
