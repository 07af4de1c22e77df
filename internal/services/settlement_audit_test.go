package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"settleflow/internal/core"
	"settleflow/internal/log"
	"settleflow/internal/ports"
	"settleflow/internal/storage/memory"
)

func insertSettlements(t *testing.T, st *memory.Store, list ...core.Settlement) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.InTx(ctx, func(w ports.SettlementWriter) error {
		for _, s := range list {
			if err := w.InsertSettlement(ctx, s); err != nil {
				return err
			}
		}
		return nil
	}))
}

func TestMissingSettlements(t *testing.T) {
	st := memory.New()
	insertSettlements(t, st,
		core.Settlement{ID: 3, Start: date(2023, 2, 1), End: date(2023, 2, 15)},
		core.Settlement{ID: 1, Start: date(2023, 1, 1), End: date(2023, 1, 15)},
		core.Settlement{ID: 2, Start: date(2023, 1, 15), End: date(2023, 1, 29)},
		core.Settlement{ID: 4, Start: date(2023, 2, 14), End: date(2023, 3, 1)},
	)

	gaps, err := NewSettlementAudit(st, log.Discard()).MissingSettlements(context.Background())
	require.NoError(t, err)
	require.Len(t, gaps, 2)

	assert.Equal(t, int64(2), gaps[0].AfterID)
	assert.Equal(t, int64(3), gaps[0].BeforeID)
	assert.True(t, gaps[0].From.Equal(date(2023, 1, 29)))
	assert.True(t, gaps[0].To.Equal(date(2023, 2, 1)))
	assert.False(t, gaps[0].Overlap())

	assert.Equal(t, int64(4), gaps[1].BeforeID)
	assert.True(t, gaps[1].Overlap())
}

func TestMissingSettlementsContiguous(t *testing.T) {
	st := memory.New()
	insertSettlements(t, st,
		core.Settlement{ID: 1, Start: date(2023, 1, 1), End: date(2023, 1, 15)},
		core.Settlement{ID: 2, Start: date(2023, 1, 15), End: date(2023, 1, 29)},
	)
	gaps, err := NewSettlementAudit(st, nil).MissingSettlements(context.Background())
	require.NoError(t, err)
	assert.Empty(t, gaps)

	gaps, err = NewSettlementAudit(memory.New(), nil).MissingSettlements(context.Background())
	require.NoError(t, err)
	assert.Empty(t, gaps)
}

func TestMissingSettlementsUnavailable(t *testing.T) {
	st := memory.New()
	st.FailOn = func(string) error { return errors.New("timeout") }
	_, err := NewSettlementAudit(st, nil).MissingSettlements(context.Background())
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)
}
