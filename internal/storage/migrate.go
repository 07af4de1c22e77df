package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// RunMigrations brings the schema of dsn up to date.
func RunMigrations(d Dialect, dsn string) error {
	// Separate connection: closing the migrate instance closes its database.
	migrateDB, err := sql.Open(d.DriverName(), dsn)
	if err != nil {
		return fmt.Errorf("open migration database: %w", err)
	}
	defer migrateDB.Close()

	m, err := newMigrate(d, migrateDB)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func newMigrate(d Dialect, db *sql.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations/"+string(d))
	if err != nil {
		return nil, fmt.Errorf("create iofs source: %w", err)
	}

	switch d {
	case SQLite:
		driver, err := sqlite.WithInstance(db, &sqlite.Config{})
		if err != nil {
			return nil, fmt.Errorf("create sqlite driver: %w", err)
		}
		m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
		if err != nil {
			return nil, fmt.Errorf("create migrate instance: %w", err)
		}
		return m, nil
	case Postgres:
		driver, err := migratepgx.WithInstance(db, &migratepgx.Config{})
		if err != nil {
			return nil, fmt.Errorf("create pgx driver: %w", err)
		}
		m, err := migrate.NewWithInstance("iofs", src, "pgx5", driver)
		if err != nil {
			return nil, fmt.Errorf("create migrate instance: %w", err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unsupported dialect %q", d)
	}
}
