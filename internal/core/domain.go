package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Capex ExpenditureClass = "capex"
	Opex  ExpenditureClass = "opex"
)

const (
	SourceCapex       RecordSource = "capex"
	SourceOpex        RecordSource = "opex"
	SourceMarketplace RecordSource = "marketplace"
)

// PayableToMarker identifies the transfer-to-seller line of a settlement.
// That line repeats money already present in the other lines.
const PayableToMarker = "Payable to"

type (
	ExpenditureClass string

	RecordSource string

	// Settlement is one marketplace payout period.
	Settlement struct {
		ID    int64
		Start time.Time
		End   time.Time
	}

	// Transaction is one line item of a settlement.
	Transaction struct {
		ID                int64 // Database ID, zero until inserted
		SettlementID      int64
		TransactionType   string
		SKU               string
		OrderID           string
		ShipmentID        string
		MarketplaceName   string
		AmountType        string
		AmountDescription string
		Amount            decimal.Decimal
		Quantity          int64
		PostedAt          time.Time
	}

	// LedgerRecord is a row of the capex or opex table.
	LedgerRecord struct {
		ID          int64
		Class       ExpenditureClass
		Date        time.Time
		Amount      decimal.Decimal
		Description string
		Category    string
	}

	// ExpenditureRecord is the unified projection used for aggregation.
	ExpenditureRecord struct {
		Date        time.Time
		Amount      decimal.Decimal
		Class       ExpenditureClass
		Source      RecordSource
		Description string
	}
)

var (
	ErrInvalidSettlementID = errors.New("invalid settlement id")
	ErrInvalidPeriod       = errors.New("settlement end before start")
	ErrMissingPostedAt     = errors.New("missing posted date time")
	ErrInvalidClass        = errors.New("invalid expenditure class")
)

// IsValid reports whether c is one of the known classes.
func (c ExpenditureClass) IsValid() bool {
	switch c {
	case Capex, Opex:
		return true
	default:
		return false
	}
}

// ParseExpenditureClass accepts "capex" or "opex" in any case.
func ParseExpenditureClass(s string) (ExpenditureClass, error) {
	c := ExpenditureClass(strings.ToLower(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidClass, s)
	}
	return c, nil
}

func (s Settlement) Validate() error {
	if s.ID <= 0 {
		return ErrInvalidSettlementID
	}
	if s.Start.IsZero() || s.End.IsZero() {
		return errors.New("settlement period cannot be zero")
	}
	if s.End.Before(s.Start) {
		return ErrInvalidPeriod
	}
	return nil
}

func (t Transaction) Validate() error {
	if t.SettlementID <= 0 {
		return ErrInvalidSettlementID
	}
	if t.PostedAt.IsZero() {
		return ErrMissingPostedAt
	}
	if len(t.AmountDescription) > 255 {
		return errors.New("amount description too long (max 255 characters)")
	}
	return nil
}

// IsPayableTo reports whether the line is the transfer to the seller.
func (t Transaction) IsPayableTo() bool {
	return strings.Contains(t.AmountDescription, PayableToMarker)
}

func (r LedgerRecord) Validate() error {
	if !r.Class.IsValid() {
		return ErrInvalidClass
	}
	if r.Date.IsZero() {
		return errors.New("ledger date cannot be zero")
	}
	if len(strings.TrimSpace(r.Description)) == 0 {
		return errors.New("empty description")
	}
	if len(r.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	return nil
}

// Expenditure projects a ledger row into the unified series.
func (r LedgerRecord) Expenditure() ExpenditureRecord {
	src := SourceOpex
	if r.Class == Capex {
		src = SourceCapex
	}
	return ExpenditureRecord{
		Date:        r.Date,
		Amount:      r.Amount,
		Class:       r.Class,
		Source:      src,
		Description: r.Description,
	}
}

// Expenditure projects a marketplace transaction into the unified series.
// Marketplace money is always operating cashflow.
func (t Transaction) Expenditure() ExpenditureRecord {
	return ExpenditureRecord{
		Date:        t.PostedAt,
		Amount:      t.Amount,
		Class:       Opex,
		Source:      SourceMarketplace,
		Description: t.AmountDescription,
	}
}
