package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"settleflow/internal/core"
	"settleflow/internal/ports"
)

func TestStoreCommitsOnlyOnSuccess(t *testing.T) {
	ctx := context.Background()
	s := New()
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	st := core.Settlement{ID: 1, Start: start, End: start.AddDate(0, 0, 14)}

	err := s.InTx(ctx, func(w ports.SettlementWriter) error {
		if err := w.InsertSettlement(ctx, st); err != nil {
			return err
		}
		_, err := w.InsertTransaction(ctx, core.Transaction{SettlementID: 2, PostedAt: start})
		return err
	})
	if !errors.Is(err, core.ErrReferentialIntegrity) {
		t.Fatalf("expected integrity error, got %v", err)
	}
	if ok, _ := s.SettlementExists(ctx, 1); ok {
		t.Fatalf("settlement visible after rollback")
	}

	err = s.InTx(ctx, func(w ports.SettlementWriter) error {
		if err := w.InsertSettlement(ctx, st); err != nil {
			return err
		}
		id, err := w.InsertTransaction(ctx, core.Transaction{SettlementID: 1, PostedAt: start, Amount: decimal.NewFromInt(3)})
		if id != 1 {
			t.Fatalf("unexpected id %d", id)
		}
		return err
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	ns, nt, _ := s.Counts(ctx)
	if ns != 1 || nt != 1 {
		t.Fatalf("counts = %d/%d", ns, nt)
	}

	txs, _ := s.TransactionRange(ctx, start, start)
	if len(txs) != 1 || !txs[0].Amount.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("range = %+v", txs)
	}
}

func TestStoreFailureInjection(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.FailOn = func(op string) error {
		if op == "commit" {
			return errors.New("disk full")
		}
		return nil
	}
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	err := s.InTx(ctx, func(w ports.SettlementWriter) error {
		return w.InsertSettlement(ctx, core.Settlement{ID: 1, Start: start, End: start})
	})
	if !errors.Is(err, core.ErrStoreUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if ns, _, _ := s.Counts(ctx); ns != 0 {
		t.Fatalf("failed commit must not store anything")
	}
}

func TestStoreLedgerAndSettlementsOrdering(t *testing.T) {
	ctx := context.Background()
	s := New()
	d := func(m time.Month, day int) time.Time { return time.Date(2023, m, day, 0, 0, 0, 0, time.UTC) }
	_, err := s.InsertLedgerRecords(ctx, []core.LedgerRecord{
		{Class: core.Opex, Date: d(2, 1), Amount: decimal.NewFromInt(-2), Description: "b"},
		{Class: core.Opex, Date: d(1, 1), Amount: decimal.NewFromInt(-1), Description: "a"},
		{Class: core.Capex, Date: d(1, 5), Amount: decimal.NewFromInt(-9), Description: "c"},
	})
	if err != nil {
		t.Fatalf("insert ledger: %v", err)
	}
	opex, _ := s.LedgerRange(ctx, core.Opex, d(1, 1), d(2, 1))
	if len(opex) != 2 || opex[0].Description != "a" {
		t.Fatalf("opex = %+v", opex)
	}
	if _, err := s.LedgerRange(ctx, "bank", d(1, 1), d(2, 1)); !errors.Is(err, core.ErrInvalidClass) {
		t.Fatalf("expected invalid class, got %v", err)
	}

	for _, st := range []core.Settlement{{ID: 9, Start: d(2, 1), End: d(2, 14)}, {ID: 4, Start: d(1, 1), End: d(1, 14)}} {
		st := st
		if err := s.InTx(ctx, func(w ports.SettlementWriter) error { return w.InsertSettlement(ctx, st) }); err != nil {
			t.Fatalf("insert settlement: %v", err)
		}
	}
	list, _ := s.ListSettlements(ctx)
	if len(list) != 2 || list[0].ID != 4 {
		t.Fatalf("settlements = %+v", list)
	}
}
