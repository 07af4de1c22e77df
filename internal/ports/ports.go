// Package ports declares the outbound interfaces the services depend on.
package ports

import (
	"context"
	"time"

	"settleflow/internal/core"
)

// Ports for outbound adapters.
type (
	// SettlementIndex answers duplicate checks before a unit of work starts.
	SettlementIndex interface {
		SettlementExists(ctx context.Context, id int64) (bool, error)
	}

	// SettlementWriter is only valid inside UnitOfWork.InTx.
	SettlementWriter interface {
		InsertSettlement(ctx context.Context, s core.Settlement) error
		InsertTransaction(ctx context.Context, t core.Transaction) (id int64, err error)
	}

	// UnitOfWork runs fn atomically. fn returning an error rolls back every write.
	UnitOfWork interface {
		InTx(ctx context.Context, fn func(w SettlementWriter) error) error
	}

	// SettlementStore is what ingestion needs from the store.
	SettlementStore interface {
		SettlementIndex
		UnitOfWork
	}

	// LedgerReader returns records dated within [from, to], oldest first.
	LedgerReader interface {
		LedgerRange(ctx context.Context, class core.ExpenditureClass, from, to time.Time) ([]core.LedgerRecord, error)
		TransactionRange(ctx context.Context, from, to time.Time) ([]core.Transaction, error)
	}

	// LedgerWriter loads capex and opex rows.
	LedgerWriter interface {
		InsertLedgerRecords(ctx context.Context, recs []core.LedgerRecord) (int, error)
	}

	// SettlementLister returns every settlement ordered by start.
	SettlementLister interface {
		ListSettlements(ctx context.Context) ([]core.Settlement, error)
	}

	// Inbox lists the settlement files waiting for ingestion.
	Inbox interface {
		List(ctx context.Context) ([]string, error)
	}

	// Archiver moves an ingested file out of the inbox.
	Archiver interface {
		Archive(path string) (dest string, err error)
	}

	// EventPublisher announces committed settlements.
	EventPublisher interface {
		PublishSettlementIngested(ctx context.Context, ev SettlementIngested) error
	}
)

// SettlementIngested describes one committed settlement file.
type SettlementIngested struct {
	BatchID      string
	SettlementID int64
	File         string
	Start        time.Time
	End          time.Time
	Transactions int
}
