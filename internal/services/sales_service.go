package services

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"settleflow/internal/core"
	"settleflow/internal/log"
	"settleflow/internal/ports"
)

// Sales lines are the item price principal of each order.
const (
	SalesAmountType        = "ItemPrice"
	SalesAmountDescription = "Principal"
)

// SalesService builds daily sales series from marketplace transactions.
type SalesService struct {
	reader ports.LedgerReader
	loc    *time.Location
	logger *log.Logger
}

func NewSalesService(reader ports.LedgerReader, loc *time.Location, logger *log.Logger) *SalesService {
	if loc == nil {
		loc = time.UTC
	}
	return &SalesService{reader: reader, loc: loc, logger: log.OrDefault(logger, log.ComponentCashflow)}
}

// DailySales sums sales per calendar day over [from, to], one entry per day
// including days without sales.
func (s *SalesService) DailySales(ctx context.Context, from, to time.Time) ([]core.DailyAmount, error) {
	if to.Before(from) {
		return nil, &core.InvalidRangeError{From: from, To: to}
	}
	first := day(from, s.loc)
	last := day(to, s.loc)
	end := last.AddDate(0, 0, 1).Add(-time.Nanosecond)

	txs, err := s.reader.TransactionRange(ctx, first, end)
	if err != nil {
		return nil, fmt.Errorf("daily sales %s..%s: %w", first.Format(time.DateOnly), last.Format(time.DateOnly), err)
	}

	sums := map[string]decimal.Decimal{}
	for _, t := range txs {
		if t.AmountType != SalesAmountType || t.AmountDescription != SalesAmountDescription {
			continue
		}
		k := t.PostedAt.In(s.loc).Format(time.DateOnly)
		sums[k] = sums[k].Add(t.Amount)
	}

	var out []core.DailyAmount
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		amount, ok := sums[d.Format(time.DateOnly)]
		if !ok {
			amount = decimal.Zero
		}
		out = append(out, core.DailyAmount{Day: d, Amount: amount})
	}
	s.logger.DebugContext(ctx, "Daily sales computed", "days", len(out), log.FieldTransactions, len(txs))
	return out, nil
}

func day(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
