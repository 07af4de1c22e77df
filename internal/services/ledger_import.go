package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"settleflow/internal/core"
	"settleflow/internal/log"
	"settleflow/internal/ports"
)

// LedgerColumns are the accepted CSV columns. category is optional.
var LedgerColumns = []string{"date", "amount", "description", "category"}

// LedgerImporter loads capex and opex rows from CSV.
type LedgerImporter struct {
	writer ports.LedgerWriter
	loc    *time.Location
	logger *log.Logger
}

func NewLedgerImporter(writer ports.LedgerWriter, loc *time.Location, logger *log.Logger) *LedgerImporter {
	if loc == nil {
		loc = time.UTC
	}
	return &LedgerImporter{writer: writer, loc: loc, logger: log.OrDefault(logger, log.ComponentCashflow)}
}

// ImportCSV parses every row of r as class and inserts them together. Any
// malformed row fails the whole file with a ParseError naming its line.
func (i *LedgerImporter) ImportCSV(ctx context.Context, class core.ExpenditureClass, name string, r io.Reader) (int, error) {
	if !class.IsValid() {
		return 0, fmt.Errorf("import %s: %w: %q", name, core.ErrInvalidClass, class)
	}
	recs, err := i.parse(class, name, r)
	if err != nil {
		return 0, err
	}
	n, err := i.writer.InsertLedgerRecords(ctx, recs)
	if err != nil {
		return 0, fmt.Errorf("import %s: %w", name, err)
	}
	i.logger.InfoContext(ctx, "Ledger rows imported",
		log.FieldFile, name, log.FieldClass, class, log.FieldRecords, n)
	return n, nil
}

func (i *LedgerImporter) parse(class core.ExpenditureClass, name string, r io.Reader) ([]core.LedgerRecord, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, &core.ParseError{File: name, Err: errors.New("empty file")}
	}
	if err != nil {
		return nil, &core.ParseError{File: name, Line: 1, Err: err}
	}
	col := map[string]int{}
	for idx, h := range header {
		col[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = idx
	}
	for _, required := range LedgerColumns[:3] {
		if _, ok := col[required]; !ok {
			return nil, &core.ParseError{File: name, Line: 1, Err: fmt.Errorf("missing column %q", required)}
		}
	}

	var recs []core.LedgerRecord
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &core.ParseError{File: name, Err: err}
		}
		line, _ := cr.FieldPos(0)
		field := func(k string) string {
			idx, ok := col[k]
			if !ok || idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}
		if strings.TrimSpace(strings.Join(row, "")) == "" {
			continue
		}

		date, err := i.parseDate(field("date"))
		if err != nil {
			return nil, &core.ParseError{File: name, Line: line, Err: err}
		}
		amount, err := core.ParseAmount(field("amount"))
		if err != nil {
			return nil, &core.ParseError{File: name, Line: line, Err: fmt.Errorf("amount %q: %w", field("amount"), err)}
		}
		rec := core.LedgerRecord{
			Class:       class,
			Date:        date,
			Amount:      amount,
			Description: field("description"),
			Category:    field("category"),
		}
		if err := rec.Validate(); err != nil {
			return nil, &core.ParseError{File: name, Line: line, Err: err}
		}
		recs = append(recs, rec)
	}
	if len(recs) == 0 {
		return nil, &core.ParseError{File: name, Err: errors.New("no rows")}
	}
	return recs, nil
}

func (i *LedgerImporter) parseDate(s string) (time.Time, error) {
	if t, err := time.ParseInLocation(time.DateOnly, s, i.loc); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("date %q: expected YYYY-MM-DD or RFC 3339", s)
}
