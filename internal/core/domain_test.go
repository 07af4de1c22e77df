package core

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestSettlementValidate(t *testing.T) {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2023, 1, 15, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		s  Settlement
		ok bool
	}{
		{Settlement{ID: 900123, Start: start, End: end}, true},
		{Settlement{ID: 900123, Start: start, End: start}, true},
		{Settlement{ID: 0, Start: start, End: end}, false},
		{Settlement{ID: 1, Start: end, End: start}, false},
		{Settlement{ID: 1}, false},
	}
	for i, tc := range cases {
		err := tc.s.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestTransactionPayableTo(t *testing.T) {
	cases := map[string]bool{
		"Payable to Amazon":         true,
		"Successful charge":         false,
		"Principal":                 false,
		"Amount Payable to account": true,
	}
	for desc, want := range cases {
		got := Transaction{AmountDescription: desc}.IsPayableTo()
		if got != want {
			t.Fatalf("%q: IsPayableTo=%v want %v", desc, got, want)
		}
	}
}

func TestExpenditureProjection(t *testing.T) {
	at := time.Date(2023, 2, 28, 23, 59, 59, 0, time.UTC)
	tx := Transaction{SettlementID: 1, AmountDescription: "FBAPerUnitFulfillmentFee", Amount: decimal.RequireFromString("-3.22"), PostedAt: at}
	rec := tx.Expenditure()
	if rec.Class != Opex || rec.Source != SourceMarketplace || !rec.Date.Equal(at) || !rec.Amount.Equal(tx.Amount) {
		t.Fatalf("unexpected marketplace projection: %+v", rec)
	}

	capex := LedgerRecord{Class: Capex, Date: at, Amount: decimal.NewFromInt(-1200), Description: "Label printer"}
	if got := capex.Expenditure(); got.Class != Capex || got.Source != SourceCapex {
		t.Fatalf("unexpected capex projection: %+v", got)
	}
	opex := LedgerRecord{Class: Opex, Date: at, Amount: decimal.NewFromInt(-20), Description: "Tape"}
	if got := opex.Expenditure(); got.Class != Opex || got.Source != SourceOpex {
		t.Fatalf("unexpected opex projection: %+v", got)
	}
}

func TestParseExpenditureClass(t *testing.T) {
	if c, err := ParseExpenditureClass(" CapEx "); err != nil || c != Capex {
		t.Fatalf("expected capex, got %q err=%v", c, err)
	}
	if _, err := ParseExpenditureClass("bank"); !errors.Is(err, ErrInvalidClass) {
		t.Fatalf("expected ErrInvalidClass, got %v", err)
	}
}

func TestLedgerRecordValidate(t *testing.T) {
	good := LedgerRecord{Class: Opex, Date: time.Now(), Amount: decimal.NewFromInt(-5), Description: "Shipping boxes"}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	bads := []LedgerRecord{
		{Class: "bank", Date: time.Now(), Description: "x"},
		{Class: Opex, Description: "x"},
		{Class: Opex, Date: time.Now(), Description: "  "},
	}
	for i, r := range bads {
		if err := r.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestErrorClassification(t *testing.T) {
	var err error = &ParseError{File: "a.txt", Line: 3, Err: ErrInvalidAmount}
	if !errors.Is(err, ErrParse) || !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("parse error should match ErrParse and its cause: %v", err)
	}

	err = &IntegrityError{File: "a.txt", Line: 2, SettlementID: 7, Reason: "transaction before settlement header"}
	if !errors.Is(err, ErrReferentialIntegrity) {
		t.Fatalf("integrity error should match ErrReferentialIntegrity")
	}

	err = &InvalidRangeError{From: time.Now(), To: time.Now().Add(-time.Hour)}
	if !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("range error should match ErrInvalidRange")
	}

	cause := errors.New("connection refused")
	err = Unavailable("begin", cause)
	if !errors.Is(err, ErrStoreUnavailable) || !errors.Is(err, cause) {
		t.Fatalf("unavailable should wrap both: %v", err)
	}
	if Unavailable("noop", nil) != nil {
		t.Fatalf("Unavailable(nil) should be nil")
	}
}
