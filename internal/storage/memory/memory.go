// Package memory is an in-process store with the same contracts as the SQL
// repository. Writes inside InTx are staged and applied only on commit.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"settleflow/internal/core"
	"settleflow/internal/ports"
)

type Store struct {
	mu           sync.Mutex
	settlements  map[int64]core.Settlement
	transactions []core.Transaction
	ledger       []core.LedgerRecord
	nextID       int64

	// FailOn, when set, is consulted before every operation ("exists",
	// "insert_settlement", "insert_transaction", "commit", "range", "ping").
	// A non-nil result fails the operation.
	FailOn func(op string) error
}

var (
	_ ports.SettlementStore  = (*Store)(nil)
	_ ports.LedgerReader     = (*Store)(nil)
	_ ports.LedgerWriter     = (*Store)(nil)
	_ ports.SettlementLister = (*Store)(nil)
)

func New() *Store {
	return &Store{settlements: map[int64]core.Settlement{}}
}

func (s *Store) fail(op string) error {
	if s.FailOn == nil {
		return nil
	}
	if err := s.FailOn(op); err != nil {
		return core.Unavailable(op, err)
	}
	return nil
}

func (s *Store) SettlementExists(_ context.Context, id int64) (bool, error) {
	if err := s.fail("exists"); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.settlements[id]
	return ok, nil
}

type staged struct {
	store        *Store
	settlements  map[int64]core.Settlement
	transactions []core.Transaction
}

func (w *staged) InsertSettlement(_ context.Context, st core.Settlement) error {
	if err := w.store.fail("insert_settlement"); err != nil {
		return err
	}
	if err := st.Validate(); err != nil {
		return fmt.Errorf("insert settlement %d: %w", st.ID, err)
	}
	if _, ok := w.settlements[st.ID]; ok {
		return fmt.Errorf("insert settlement %d: %w", st.ID, core.ErrDuplicateSettlement)
	}
	if _, ok := w.store.settlements[st.ID]; ok {
		return fmt.Errorf("insert settlement %d: %w", st.ID, core.ErrDuplicateSettlement)
	}
	w.settlements[st.ID] = st
	return nil
}

func (w *staged) InsertTransaction(_ context.Context, t core.Transaction) (int64, error) {
	if err := w.store.fail("insert_transaction"); err != nil {
		return 0, err
	}
	_, staged := w.settlements[t.SettlementID]
	_, committed := w.store.settlements[t.SettlementID]
	if !staged && !committed {
		return 0, &core.IntegrityError{SettlementID: t.SettlementID, Reason: "settlement not found"}
	}
	t.ID = w.store.nextID + int64(len(w.transactions)) + 1
	w.transactions = append(w.transactions, t)
	return t.ID, nil
}

// InTx holds the store lock for the whole unit of work.
func (s *Store) InTx(ctx context.Context, fn func(w ports.SettlementWriter) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := &staged{store: s, settlements: map[int64]core.Settlement{}}
	if err := fn(w); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.fail("commit"); err != nil {
		return err
	}
	for id, st := range w.settlements {
		s.settlements[id] = st
	}
	s.transactions = append(s.transactions, w.transactions...)
	s.nextID += int64(len(w.transactions))
	return nil
}

func (s *Store) LedgerRange(_ context.Context, class core.ExpenditureClass, from, to time.Time) ([]core.LedgerRecord, error) {
	if !class.IsValid() {
		return nil, fmt.Errorf("ledger range: %w", core.ErrInvalidClass)
	}
	if err := s.fail("range"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.LedgerRecord
	for _, r := range s.ledger {
		if r.Class == class && within(r.Date, from, to) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *Store) TransactionRange(_ context.Context, from, to time.Time) ([]core.Transaction, error) {
	if err := s.fail("range"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Transaction
	for _, t := range s.transactions {
		if within(t.PostedAt, from, to) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PostedAt.Before(out[j].PostedAt) })
	return out, nil
}

func (s *Store) ListSettlements(_ context.Context) ([]core.Settlement, error) {
	if err := s.fail("range"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Settlement, 0, len(s.settlements))
	for _, st := range s.settlements {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start.Equal(out[j].Start) {
			return out[i].ID < out[j].ID
		}
		return out[i].Start.Before(out[j].Start)
	})
	return out, nil
}

func (s *Store) InsertLedgerRecords(_ context.Context, recs []core.LedgerRecord) (int, error) {
	for i, r := range recs {
		if err := r.Validate(); err != nil {
			return 0, fmt.Errorf("ledger record %d: %w", i+1, err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range recs {
		r.ID = int64(len(s.ledger)) + 1
		s.ledger = append(s.ledger, r)
	}
	return len(recs), nil
}

// Counts returns the number of committed settlements and transactions.
func (s *Store) Counts(context.Context) (settlements, transactions int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.settlements)), int64(len(s.transactions)), nil
}

func within(t, from, to time.Time) bool {
	return !t.Before(from) && !t.After(to)
}

// Ping always succeeds; the store lives in process.
func (s *Store) Ping(context.Context) error { return s.fail("ping") }
