package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"settleflow/internal/core"
	"settleflow/internal/log"
)

func TestDailySalesZeroFilled(t *testing.T) {
	st := seedStore(t, nil,
		core.Transaction{AmountType: "ItemPrice", AmountDescription: "Principal", Amount: amount("10.50"), PostedAt: time.Date(2023, 1, 2, 9, 0, 0, 0, time.UTC)},
		core.Transaction{AmountType: "ItemPrice", AmountDescription: "Principal", Amount: amount("4.50"), PostedAt: time.Date(2023, 1, 2, 18, 0, 0, 0, time.UTC)},
		core.Transaction{AmountType: "ItemPrice", AmountDescription: "Shipping", Amount: amount("3"), PostedAt: date(2023, 1, 2)},
		core.Transaction{AmountType: "ItemFees", AmountDescription: "Principal", Amount: amount("-1"), PostedAt: date(2023, 1, 2)},
		core.Transaction{AmountType: "ItemPrice", AmountDescription: "Principal", Amount: amount("7"), PostedAt: time.Date(2023, 1, 4, 23, 59, 0, 0, time.UTC)},
	)

	days, err := NewSalesService(st, time.UTC, log.Discard()).DailySales(context.Background(), date(2023, 1, 1), date(2023, 1, 4))
	require.NoError(t, err)
	require.Len(t, days, 4)

	want := []string{"0", "15", "0", "7"}
	for i, d := range days {
		assert.Equal(t, date(2023, 1, 1+i), d.Day)
		assert.True(t, d.Amount.Equal(amount(want[i])), "day %d: %s", i, d.Amount)
	}
}

func TestDailySalesInvalidRange(t *testing.T) {
	_, err := NewSalesService(seedStore(t, nil), nil, nil).DailySales(context.Background(), date(2023, 2, 1), date(2023, 1, 1))
	assert.ErrorIs(t, err, core.ErrInvalidRange)
}
