package core

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrParse marks malformed or empty settlement files.
	ErrParse = errors.New("parse error")
	// ErrDuplicateSettlement marks a settlement already present in the store.
	// Ingestion treats it as a skip, not a failure.
	ErrDuplicateSettlement = errors.New("duplicate settlement")
	// ErrReferentialIntegrity marks a transaction without its settlement in the same unit of work.
	ErrReferentialIntegrity = errors.New("referential integrity violation")
	// ErrInvalidRange marks an aggregation range whose end precedes its start.
	ErrInvalidRange = errors.New("invalid range")
	// ErrStoreUnavailable marks connection, begin, commit and read failures of the store.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// ParseError identifies the offending file and, when known, the line.
type ParseError struct {
	File string
	Line int // 1-based, header is line 1; zero when not line specific
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse %s line %d: %v", e.File, e.Line, e.Err)
	}
	return fmt.Sprintf("parse %s: %v", e.File, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrParse }

// IntegrityError reports a transaction row that cannot reference its settlement.
type IntegrityError struct {
	File         string
	Line         int
	SettlementID int64
	Reason       string
	Err          error
}

func (e *IntegrityError) Error() string {
	msg := fmt.Sprintf("%s line %d settlement %d: %s", e.File, e.Line, e.SettlementID, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *IntegrityError) Unwrap() error { return e.Err }

func (e *IntegrityError) Is(target error) bool { return target == ErrReferentialIntegrity }

// InvalidRangeError reports an aggregation range with To before From.
type InvalidRangeError struct {
	From time.Time
	To   time.Time
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid range: to %s is before from %s",
		e.To.Format(time.RFC3339), e.From.Format(time.RFC3339))
}

func (e *InvalidRangeError) Is(target error) bool { return target == ErrInvalidRange }

// Unavailable wraps a store failure so errors.Is(err, ErrStoreUnavailable) holds.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
