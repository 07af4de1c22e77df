package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// ClassFilter restricts a cashflow report to one expenditure class.
type ClassFilter string

const (
	AllClasses ClassFilter = "all"
	CapexOnly  ClassFilter = "capex"
	OpexOnly   ClassFilter = "opex"
)

// IsValid reports whether f is a known filter. The empty filter means all.
func (f ClassFilter) IsValid() bool {
	switch f {
	case "", AllClasses, CapexOnly, OpexOnly:
		return true
	default:
		return false
	}
}

// Allows reports whether records of class c pass the filter.
func (f ClassFilter) Allows(c ExpenditureClass) bool {
	switch f {
	case CapexOnly:
		return c == Capex
	case OpexOnly:
		return c == Opex
	default:
		return true
	}
}

// BinTotal is the aggregated cashflow of one month bin.
type BinTotal struct {
	Bin        MonthBin
	Capex      decimal.Decimal
	Opex       decimal.Decimal
	Total      decimal.Decimal
	Cumulative decimal.Decimal
	Count      int
}

// CashflowReport is the per-month series for a range.
type CashflowReport struct {
	From     time.Time
	To       time.Time
	Class    ClassFilter
	Bins     []BinTotal
	Records  []ExpenditureRecord
	Total    decimal.Decimal
	Unbinned int // records outside every bin; always zero for store-backed reports
}

// Edges returns the month bins of the report in order.
func (r *CashflowReport) Edges() []MonthBin {
	out := make([]MonthBin, len(r.Bins))
	for i, b := range r.Bins {
		out[i] = b.Bin
	}
	return out
}

// LastRecordDate returns the date of the latest record, zero when empty.
func (r *CashflowReport) LastRecordDate() time.Time {
	var last time.Time
	for _, rec := range r.Records {
		if rec.Date.After(last) {
			last = rec.Date
		}
	}
	return last
}

// DailyAmount is the sales total of one calendar day.
type DailyAmount struct {
	Day    time.Time
	Amount decimal.Decimal
}

// SettlementGap is a hole between two consecutive settlement periods.
type SettlementGap struct {
	AfterID  int64
	BeforeID int64
	From     time.Time // end of the earlier settlement
	To       time.Time // start of the later settlement
}

// Overlap reports whether the later period starts before the earlier ends.
func (g SettlementGap) Overlap() bool {
	return g.To.Before(g.From)
}

// Bucket sums records into bins. Each record lands in the one bin whose
// inclusive [Left, Right] contains it; records outside every bin are counted
// and returned as unbinned rather than dropped silently.
func Bucket(bins []MonthBin, records []ExpenditureRecord) ([]BinTotal, int) {
	totals := make([]BinTotal, len(bins))
	for i, b := range bins {
		totals[i] = BinTotal{Bin: b, Capex: decimal.Zero, Opex: decimal.Zero, Total: decimal.Zero}
	}
	unbinned := 0
	for _, r := range records {
		i := FindBin(bins, r.Date)
		if i < 0 {
			unbinned++
			continue
		}
		t := &totals[i]
		if r.Class == Capex {
			t.Capex = t.Capex.Add(r.Amount)
		} else {
			t.Opex = t.Opex.Add(r.Amount)
		}
		t.Total = t.Total.Add(r.Amount)
		t.Count++
	}
	running := decimal.Zero
	for i := range totals {
		running = running.Add(totals[i].Total)
		totals[i].Cumulative = running
	}
	return totals, unbinned
}
