package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"settleflow/internal/core"
	"settleflow/internal/log"
	"settleflow/internal/metrics"
	"settleflow/internal/ports"
)

// Marketplace lines that move money between reserves or charge cards
// rather than represent cashflow.
var DefaultExcludedDescriptions = []string{
	"Previous Reserve Amount Balance",
	"Current Reserve Amount",
	"Successful charge",
}

// Ledger categories left out of the cashflow series.
var DefaultExcludedCategories = []string{"admin", "credit_payments", "ignore"}

// CashflowConfig holds the aggregation settings.
type CashflowConfig struct {
	Location             *time.Location
	Epoch                time.Time // default start of an open range
	ExcludedDescriptions []string  // exact match on the transaction amount description
	ExcludedCategories   []string  // case-insensitive match on the ledger category
	Now                  func() time.Time
}

func DefaultCashflowConfig() CashflowConfig {
	return CashflowConfig{
		Location:             time.UTC,
		Epoch:                time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		ExcludedDescriptions: DefaultExcludedDescriptions,
		ExcludedCategories:   DefaultExcludedCategories,
		Now:                  time.Now,
	}
}

// CashflowQuery selects the range and class of a report. Nil bounds take
// the configured epoch and the current time.
type CashflowQuery struct {
	From  *time.Time
	To    *time.Time
	Class core.ClassFilter
}

// CashflowService aggregates capex, opex and marketplace records into month bins.
type CashflowService struct {
	reader       ports.LedgerReader
	binner       core.MonthBinner
	cfg          CashflowConfig
	descriptions map[string]struct{}
	categories   map[string]struct{}
	logger       *log.Logger
}

func NewCashflowService(reader ports.LedgerReader, cfg CashflowConfig, logger *log.Logger) *CashflowService {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Epoch.IsZero() {
		cfg.Epoch = time.Date(2020, 1, 1, 0, 0, 0, 0, cfg.Location)
	}
	s := &CashflowService{
		reader:       reader,
		binner:       core.NewMonthBinner(cfg.Location),
		cfg:          cfg,
		descriptions: make(map[string]struct{}, len(cfg.ExcludedDescriptions)),
		categories:   make(map[string]struct{}, len(cfg.ExcludedCategories)),
		logger:       log.OrDefault(logger, log.ComponentCashflow),
	}
	for _, d := range cfg.ExcludedDescriptions {
		s.descriptions[d] = struct{}{}
	}
	for _, c := range cfg.ExcludedCategories {
		s.categories[strings.ToLower(strings.TrimSpace(c))] = struct{}{}
	}
	return s
}

// Location returns the report time zone.
func (s *CashflowService) Location() *time.Location { return s.cfg.Location }

// Aggregate builds the monthly cashflow report for q.
func (s *CashflowService) Aggregate(ctx context.Context, q CashflowQuery) (*core.CashflowReport, error) {
	start := time.Now()
	report, err := s.aggregate(ctx, q)
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.ObserveAggregate(result, time.Since(start))
	return report, err
}

func (s *CashflowService) aggregate(ctx context.Context, q CashflowQuery) (*core.CashflowReport, error) {
	class := q.Class
	if class == "" {
		class = core.AllClasses
	}
	if !class.IsValid() {
		return nil, fmt.Errorf("cashflow report: %w: %q", core.ErrInvalidClass, class)
	}

	from, to := s.cfg.Epoch, s.cfg.Now()
	if q.From != nil {
		from = *q.From
	}
	if q.To != nil {
		to = *q.To
	}
	bins, err := s.binner.Bins(from, to)
	if err != nil {
		return nil, fmt.Errorf("cashflow report: %w", err)
	}
	left, right := bins[0].Left, bins[len(bins)-1].Right

	var capex, opex []core.LedgerRecord
	var txs []core.Transaction
	g, gctx := errgroup.WithContext(ctx)
	if class.Allows(core.Capex) {
		g.Go(func() error {
			var err error
			capex, err = s.reader.LedgerRange(gctx, core.Capex, left, right)
			return err
		})
	}
	if class.Allows(core.Opex) {
		g.Go(func() error {
			var err error
			opex, err = s.reader.LedgerRange(gctx, core.Opex, left, right)
			return err
		})
		g.Go(func() error {
			var err error
			txs, err = s.reader.TransactionRange(gctx, left, right)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("cashflow report %s..%s: %w",
			left.Format(time.DateOnly), right.Format(time.DateOnly), err)
	}

	records := make([]core.ExpenditureRecord, 0, len(capex)+len(opex)+len(txs))
	records = s.appendLedger(records, capex)
	records = s.appendLedger(records, opex)
	excluded := 0
	for _, t := range txs {
		if _, skip := s.descriptions[t.AmountDescription]; skip {
			excluded++
			continue
		}
		records = append(records, s.inZone(t.Expenditure()))
	}

	totals, unbinned := core.Bucket(bins, records)
	total := decimal.Zero
	for _, bt := range totals {
		total = total.Add(bt.Total)
	}
	if unbinned > 0 {
		s.logger.WarnContext(ctx, "Records outside every month bin", "unbinned", unbinned)
	}

	s.logger.DebugContext(ctx, "Cashflow aggregated",
		log.NewFields().WithOperation(log.OpAggregate).WithRange(left, right).ToSlice()...)
	s.logger.InfoContext(ctx, "Cashflow report built",
		log.FieldClass, string(class),
		log.FieldBins, len(bins),
		log.FieldRecords, len(records),
		"excluded_transactions", excluded)

	return &core.CashflowReport{
		From:     left,
		To:       right,
		Class:    class,
		Bins:     totals,
		Records:  records,
		Total:    total,
		Unbinned: unbinned,
	}, nil
}

func (s *CashflowService) appendLedger(dst []core.ExpenditureRecord, recs []core.LedgerRecord) []core.ExpenditureRecord {
	for _, r := range recs {
		if _, skip := s.categories[strings.ToLower(strings.TrimSpace(r.Category))]; skip {
			continue
		}
		dst = append(dst, s.inZone(r.Expenditure()))
	}
	return dst
}

func (s *CashflowService) inZone(r core.ExpenditureRecord) core.ExpenditureRecord {
	r.Date = r.Date.In(s.cfg.Location)
	return r
}
