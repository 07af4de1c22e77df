// Package settlement reads marketplace settlement flat files.
package settlement

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"settleflow/internal/core"
)

// Columns every settlement report must carry, after normalization.
var RequiredColumns = []string{
	"settlement_id",
	"settlement_start_date",
	"settlement_end_date",
	"transaction_type",
	"sku",
	"order_id",
	"shipment_id",
	"marketplace_name",
	"amount_type",
	"amount_description",
	"amount",
	"quantity_purchased",
	"posted_date_time",
}

var timeLayouts = []string{
	"2006-01-02 15:04:05 MST",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02.01.2006 15:04:05 MST",
	"02.01.2006",
}

// zoneOffsets holds the UTC offset in seconds of abbreviations seen in
// settlement reports. Ambiguous ones (CST, IST) resolve only when the
// parser's location defines them.
var zoneOffsets = map[string]int{
	"UTC": 0, "GMT": 0, "WET": 0,
	"BST": 3600, "WEST": 3600, "CET": 3600, "CEST": 7200,
	"EET": 7200, "EEST": 3 * 3600, "MSK": 3 * 3600,
	"EST": -5 * 3600, "EDT": -4 * 3600,
	"MST": -7 * 3600, "MDT": -6 * 3600,
	"PST": -8 * 3600, "PDT": -7 * 3600,
	"AKST": -9 * 3600, "AKDT": -8 * 3600, "HST": -10 * 3600,
	"BRT": -3 * 3600,
	"SGT": 8 * 3600, "HKT": 8 * 3600, "AWST": 8 * 3600,
	"JST": 9 * 3600, "KST": 9 * 3600,
	"AEST": 10 * 3600, "AEDT": 11 * 3600,
	"NZST": 12 * 3600, "NZDT": 13 * 3600,
}

// Line is one typed row of a settlement report.
type Line struct {
	Row               int // file line, header is line 1
	SettlementID      int64
	Start             time.Time // set only on the settlement header row
	End               time.Time
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

// IsHeader reports whether the line carries the settlement period.
func (l Line) IsHeader() bool { return !l.Start.IsZero() }

// IsPayableTo reports whether the line is the transfer to the seller.
func (l Line) IsPayableTo() bool {
	return strings.Contains(l.AmountDescription, core.PayableToMarker)
}

func (l Line) Settlement() core.Settlement {
	return core.Settlement{ID: l.SettlementID, Start: l.Start, End: l.End}
}

func (l Line) Transaction() core.Transaction {
	return core.Transaction{
		SettlementID:      l.SettlementID,
		TransactionType:   l.TransactionType,
		SKU:               l.SKU,
		OrderID:           l.OrderID,
		ShipmentID:        l.ShipmentID,
		MarketplaceName:   l.MarketplaceName,
		AmountType:        l.AmountType,
		AmountDescription: l.AmountDescription,
		Amount:            l.Amount,
		Quantity:          l.Quantity,
		PostedAt:          l.PostedAt,
	}
}

// rawLine holds the untyped row; tags carry the per-row rules.
type rawLine struct {
	SettlementID        string `col:"settlement_id" validate:"required,numeric"`
	SettlementStartDate string `col:"settlement_start_date" validate:"required_with=SettlementEndDate"`
	SettlementEndDate   string `col:"settlement_end_date" validate:"required_with=SettlementStartDate"`
	TransactionType     string `col:"transaction_type"`
	SKU                 string `col:"sku"`
	OrderID             string `col:"order_id"`
	ShipmentID          string `col:"shipment_id"`
	MarketplaceName     string `col:"marketplace_name"`
	AmountType          string `col:"amount_type"`
	AmountDescription   string `col:"amount_description" validate:"max=255"`
	Amount              string `col:"amount" validate:"required_without=SettlementStartDate"`
	QuantityPurchased   string `col:"quantity_purchased" validate:"omitempty,numeric"`
	PostedDateTime      string `col:"posted_date_time" validate:"required_without=SettlementStartDate"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return fld.Tag.Get("col")
	})
	return v
}

// Parser converts settlement reports into typed lines.
type Parser struct {
	// Location interprets timestamps that carry no zone. UTC when nil.
	Location *time.Location
}

func NewParser(loc *time.Location) *Parser {
	return &Parser{Location: loc}
}

// ParseFile opens path and parses it.
func (p *Parser) ParseFile(path string) ([]Line, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &core.ParseError{File: filepath.Base(path), Err: err}
	}
	defer f.Close()
	return p.Parse(filepath.Base(path), f)
}

// Parse reads a tab separated report from r. name identifies the file in errors.
func (p *Parser) Parse(name string, r io.Reader) ([]Line, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.LazyQuotes = true

	headers, err := cr.Read()
	if err == io.EOF {
		return nil, &core.ParseError{File: name, Err: errors.New("no header row")}
	}
	if err != nil {
		return nil, &core.ParseError{File: name, Line: 1, Err: fmt.Errorf("read header: %w", err)}
	}
	col := toIndex(headers)
	var missing []string
	for _, k := range RequiredColumns {
		if _, ok := col[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return nil, &core.ParseError{File: name, Line: 1, Err: fmt.Errorf("missing columns: %s", strings.Join(missing, ", "))}
	}

	var out []Line
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			line := 0
			var csvErr *csv.ParseError
			if errors.As(err, &csvErr) {
				line = csvErr.Line
			}
			return nil, &core.ParseError{File: name, Line: line, Err: fmt.Errorf("read row: %w", err)}
		}
		row, _ := cr.FieldPos(0)
		if blank(rec) {
			continue
		}
		line, err := p.convert(readRaw(rec, col))
		if err != nil {
			return nil, &core.ParseError{File: name, Line: row, Err: err}
		}
		line.Row = row
		out = append(out, line)
	}
	return out, nil
}

// NormalizeColumn trims a header name and replaces '-' with '_'.
func NormalizeColumn(h string) string {
	h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	return strings.ReplaceAll(h, "-", "_")
}

func toIndex(headers []string) map[string]int {
	m := make(map[string]int, len(headers))
	for i, h := range headers {
		m[NormalizeColumn(h)] = i
	}
	return m
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func readRaw(rec []string, col map[string]int) rawLine {
	get := func(k string) string {
		i, ok := col[k]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}
	return rawLine{
		SettlementID:        get("settlement_id"),
		SettlementStartDate: get("settlement_start_date"),
		SettlementEndDate:   get("settlement_end_date"),
		TransactionType:     get("transaction_type"),
		SKU:                 get("sku"),
		OrderID:             get("order_id"),
		ShipmentID:          get("shipment_id"),
		MarketplaceName:     get("marketplace_name"),
		AmountType:          get("amount_type"),
		AmountDescription:   get("amount_description"),
		Amount:              get("amount"),
		QuantityPurchased:   get("quantity_purchased"),
		PostedDateTime:      get("posted_date_time"),
	}
}

func (p *Parser) convert(raw rawLine) (Line, error) {
	if err := validate.Struct(raw); err != nil {
		return Line{}, describe(err)
	}
	id, err := strconv.ParseInt(raw.SettlementID, 10, 64)
	if err != nil || id <= 0 {
		return Line{}, fmt.Errorf("settlement_id %q: %w", raw.SettlementID, core.ErrInvalidSettlementID)
	}
	l := Line{
		SettlementID:      id,
		TransactionType:   raw.TransactionType,
		SKU:               raw.SKU,
		OrderID:           raw.OrderID,
		ShipmentID:        raw.ShipmentID,
		MarketplaceName:   raw.MarketplaceName,
		AmountType:        raw.AmountType,
		AmountDescription: raw.AmountDescription,
	}
	if raw.SettlementStartDate != "" {
		if l.Start, err = p.parseTime(raw.SettlementStartDate); err != nil {
			return Line{}, fmt.Errorf("settlement_start_date: %w", err)
		}
		if l.End, err = p.parseTime(raw.SettlementEndDate); err != nil {
			return Line{}, fmt.Errorf("settlement_end_date: %w", err)
		}
		if l.End.Before(l.Start) {
			return Line{}, core.ErrInvalidPeriod
		}
	}
	if raw.Amount != "" {
		if l.Amount, err = core.ParseAmount(raw.Amount); err != nil {
			return Line{}, fmt.Errorf("amount %q: %w", raw.Amount, err)
		}
	}
	if raw.QuantityPurchased != "" {
		if l.Quantity, err = parseQuantity(raw.QuantityPurchased); err != nil {
			return Line{}, err
		}
	}
	if raw.PostedDateTime != "" {
		if l.PostedAt, err = p.parseTime(raw.PostedDateTime); err != nil {
			return Line{}, fmt.Errorf("posted_date_time: %w", err)
		}
	}
	return l, nil
}

func (p *Parser) parseTime(s string) (time.Time, error) {
	loc := p.Location
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range timeLayouts {
		t, err := time.ParseInLocation(layout, s, loc)
		if err != nil {
			continue
		}
		if strings.HasSuffix(layout, "MST") {
			return resolveZone(t)
		}
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unsupported time format: %q", s)
}

// resolveZone corrects abbreviations the parse location does not define,
// which time.ParseInLocation reports with a zero offset.
func resolveZone(t time.Time) (time.Time, error) {
	name, offset := t.Zone()
	if offset != 0 {
		return t, nil
	}
	known, ok := zoneOffsets[name]
	if !ok {
		return time.Time{}, fmt.Errorf("unknown time zone abbreviation %q", name)
	}
	if known == 0 {
		return t, nil
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(),
		time.FixedZone(name, known)), nil
}

// parseQuantity accepts whole numbers, including the "2.0" spreadsheet
// exports write.
func parseQuantity(s string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimPrefix(s, "+"))
	if err != nil || !d.IsInteger() || !d.BigInt().IsInt64() {
		return 0, fmt.Errorf("quantity_purchased %q: not a whole number", s)
	}
	return d.IntPart(), nil
}

func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "required_with", "required_without":
			msgs = append(msgs, fe.Field()+" is required on this line")
		case "numeric":
			msgs = append(msgs, fmt.Sprintf("%s %q is not a number", fe.Field(), fe.Value()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s longer than %s characters", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}
