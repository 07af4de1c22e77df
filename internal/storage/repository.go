package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"settleflow/internal/core"
	"settleflow/internal/ports"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Options selects and locates the store.
type Options struct {
	Dialect Dialect
	// Path of the SQLite database file.
	Path string
	// URL is the PostgreSQL connection string.
	URL string
	// SkipMigrations leaves the schema untouched.
	SkipMigrations bool
	// Location reads stored times that carry no offset. Defaults to UTC.
	Location *time.Location
}

// Repository is the SQL store for settlements, transactions and the ledgers.
type Repository struct {
	db      *sql.DB
	queries *Queries
	dialect Dialect
}

var (
	_ ports.SettlementStore  = (*Repository)(nil)
	_ ports.LedgerReader     = (*Repository)(nil)
	_ ports.LedgerWriter     = (*Repository)(nil)
	_ ports.SettlementLister = (*Repository)(nil)
)

// SQLiteDSN enables foreign keys and a busy timeout on every connection.
func SQLiteDSN(path string) string {
	return path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// Open connects to the store described by opts and applies migrations.
func Open(ctx context.Context, opts Options) (*Repository, error) {
	var dsn string
	switch opts.Dialect {
	case SQLite, "":
		opts.Dialect = SQLite
		if opts.Path == "" {
			return nil, errors.New("sqlite path is required")
		}
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
		dsn = SQLiteDSN(opts.Path)
	case Postgres:
		if opts.URL == "" {
			return nil, errors.New("postgres url is required")
		}
		dsn = opts.URL
	default:
		return nil, fmt.Errorf("unsupported dialect %q", opts.Dialect)
	}

	db, err := sql.Open(opts.Dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", opts.Dialect, err)
	}
	if opts.Dialect == SQLite {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, core.Unavailable("ping database", err)
	}

	if !opts.SkipMigrations {
		if err := RunMigrations(opts.Dialect, dsn); err != nil {
			db.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	return NewRepository(db, opts.Dialect).InLocation(opts.Location), nil
}

// NewRepository wraps an already open database.
func NewRepository(db *sql.DB, d Dialect) *Repository {
	return &Repository{db: db, queries: New(db, d), dialect: d}
}

// InLocation makes reads interpret offset-less stored times in loc.
func (r *Repository) InLocation(loc *time.Location) *Repository {
	r.queries = r.queries.In(loc)
	return r
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks the connection; used by health checks.
func (r *Repository) Ping(ctx context.Context) error {
	return core.Unavailable("ping", r.db.PingContext(ctx))
}

// SettlementExists implements ports.SettlementIndex.
func (r *Repository) SettlementExists(ctx context.Context, id int64) (bool, error) {
	exists, err := r.queries.SettlementExists(ctx, id)
	if err != nil {
		return false, core.Unavailable("check settlement", err)
	}
	return exists, nil
}

// InTx implements ports.UnitOfWork. fn's writes are committed only when it
// returns nil; any error or panic rolls the whole transaction back.
func (r *Repository) InTx(ctx context.Context, fn func(w ports.SettlementWriter) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Unavailable("begin", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&txWriter{q: r.queries.WithTx(tx)}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			slog.ErrorContext(ctx, "Rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return core.Unavailable("commit", err)
	}
	return nil
}

type txWriter struct {
	q *Queries
}

func (w *txWriter) InsertSettlement(ctx context.Context, s core.Settlement) error {
	err := w.q.CreateSettlement(ctx, s)
	switch {
	case err == nil:
		return nil
	case classify(err) == uniqueViolation:
		return fmt.Errorf("insert settlement %d: %w", s.ID, core.ErrDuplicateSettlement)
	default:
		return core.Unavailable("insert settlement", err)
	}
}

func (w *txWriter) InsertTransaction(ctx context.Context, t core.Transaction) (int64, error) {
	id, err := w.q.CreateTransaction(ctx, t)
	switch {
	case err == nil:
		return id, nil
	case classify(err) == foreignKeyViolation:
		return 0, &core.IntegrityError{
			SettlementID: t.SettlementID,
			Reason:       "settlement not found",
			Err:          err,
		}
	default:
		return 0, core.Unavailable("insert transaction", err)
	}
}

// LedgerRange implements ports.LedgerReader.
func (r *Repository) LedgerRange(ctx context.Context, class core.ExpenditureClass, from, to time.Time) ([]core.LedgerRecord, error) {
	var (
		recs []core.LedgerRecord
		err  error
	)
	switch class {
	case core.Capex:
		recs, err = r.queries.ListCapexInRange(ctx, from, to)
	case core.Opex:
		recs, err = r.queries.ListOpexInRange(ctx, from, to)
	default:
		return nil, fmt.Errorf("ledger range: %w", core.ErrInvalidClass)
	}
	if err != nil {
		return nil, core.Unavailable("list "+string(class), err)
	}
	return recs, nil
}

// TransactionRange implements ports.LedgerReader.
func (r *Repository) TransactionRange(ctx context.Context, from, to time.Time) ([]core.Transaction, error) {
	txs, err := r.queries.ListTransactionsInRange(ctx, from, to)
	if err != nil {
		return nil, core.Unavailable("list transactions", err)
	}
	return txs, nil
}

// ListSettlements implements ports.SettlementLister.
func (r *Repository) ListSettlements(ctx context.Context) ([]core.Settlement, error) {
	items, err := r.queries.ListSettlements(ctx)
	if err != nil {
		return nil, core.Unavailable("list settlements", err)
	}
	return items, nil
}

// InsertLedgerRecords implements ports.LedgerWriter. All rows or none are stored.
func (r *Repository) InsertLedgerRecords(ctx context.Context, recs []core.LedgerRecord) (int, error) {
	for i, rec := range recs {
		if err := rec.Validate(); err != nil {
			return 0, fmt.Errorf("ledger record %d: %w", i+1, err)
		}
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, core.Unavailable("begin", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	for _, rec := range recs {
		if err := q.CreateLedgerRecord(ctx, rec); err != nil {
			return 0, core.Unavailable("insert "+string(rec.Class), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, core.Unavailable("commit", err)
	}
	slog.InfoContext(ctx, "Ledger records stored", "count", len(recs))
	return len(recs), nil
}

// Counts returns the number of stored settlements and transactions.
func (r *Repository) Counts(ctx context.Context) (settlements, transactions int64, err error) {
	row, err := r.queries.CountRows(ctx)
	if err != nil {
		return 0, 0, core.Unavailable("count rows", err)
	}
	return row.Settlements, row.Transactions, nil
}
