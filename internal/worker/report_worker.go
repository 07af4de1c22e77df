package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"settleflow/internal/amqp"
	"settleflow/internal/core"
	"settleflow/internal/export"
	"settleflow/internal/log"
	"settleflow/internal/services"
)

// Reporter builds the report the worker publishes.
type Reporter interface {
	Aggregate(ctx context.Context, q services.CashflowQuery) (*core.CashflowReport, error)
}

// ReportWorkerConfig holds configuration for the report worker
type ReportWorkerConfig struct {
	// RefreshInterval is how often the report is rebuilt without events (default: 1h)
	RefreshInterval time.Duration

	// Class restricts the published report (default: all)
	Class core.ClassFilter

	Now func() time.Time
}

func DefaultReportWorkerConfig() ReportWorkerConfig {
	return ReportWorkerConfig{
		RefreshInterval: time.Hour,
		Class:           core.AllClasses,
		Now:             time.Now,
	}
}

// ReportWorker rebuilds the cashflow report and pushes it to every exporter,
// on settlement events and on a timer.
type ReportWorker struct {
	reporter  Reporter
	exporters []export.Exporter
	config    ReportWorkerConfig
	logger    *log.Logger

	// refreshMu serializes refreshes; lastStarted is guarded by it.
	refreshMu   sync.Mutex
	lastStarted time.Time
	refreshes   int

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewReportWorker(reporter Reporter, exporters []export.Exporter, config ReportWorkerConfig, logger *log.Logger) *ReportWorker {
	def := DefaultReportWorkerConfig()
	if config.RefreshInterval <= 0 {
		config.RefreshInterval = def.RefreshInterval
	}
	if config.Class == "" {
		config.Class = def.Class
	}
	if config.Now == nil {
		config.Now = def.Now
	}
	return &ReportWorker{
		reporter:  reporter,
		exporters: exporters,
		config:    config,
		logger:    log.OrDefault(logger, log.ComponentWorker),
	}
}

// HandleSettlementIngested refreshes the report for a committed settlement.
// A refresh that started after the event was emitted already covers it.
// The returned error requeues the message.
func (w *ReportWorker) HandleSettlementIngested(ctx context.Context, msg *amqp.SettlementIngestedMessage) error {
	w.logger.InfoContext(ctx, "Processing settlement event",
		log.FieldSettlementID, msg.SettlementID,
		log.FieldBatchID, msg.BatchID,
		log.FieldFile, msg.File)

	return w.refresh(ctx, msg.Timestamp)
}

// Refresh rebuilds and exports the report unconditionally.
func (w *ReportWorker) Refresh(ctx context.Context) error {
	return w.refresh(ctx, time.Time{})
}

func (w *ReportWorker) refresh(ctx context.Context, coveredAfter time.Time) error {
	w.refreshMu.Lock()
	defer w.refreshMu.Unlock()

	if !coveredAfter.IsZero() && w.lastStarted.After(coveredAfter) {
		w.logger.DebugContext(ctx, "Report already covers event",
			"event_time", coveredAfter.Format(time.RFC3339Nano),
			"last_refresh", w.lastStarted.Format(time.RFC3339Nano))
		return nil
	}

	started := w.config.Now()
	report, err := w.reporter.Aggregate(ctx, services.CashflowQuery{Class: w.config.Class})
	if err != nil {
		return fmt.Errorf("build report: %w", err)
	}

	var errs []error
	for _, e := range w.exporters {
		if err := e.Export(ctx, report); err != nil {
			w.logger.ErrorContext(ctx, "Report export failed", "sink", e.Name(), log.FieldError, err)
			errs = append(errs, fmt.Errorf("%s: %w", e.Name(), err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	w.lastStarted = started
	w.refreshes++
	w.logger.InfoContext(ctx, "Report refreshed",
		log.FieldBins, len(report.Bins),
		log.FieldRecords, len(report.Records),
		"sinks", len(w.exporters),
		"total", core.FormatAmount(report.Total))
	return nil
}

// Refreshes returns the number of successful refreshes.
func (w *ReportWorker) Refreshes() int {
	w.refreshMu.Lock()
	defer w.refreshMu.Unlock()
	return w.refreshes
}

// Start refreshes once and then on every interval. Returns an error if already running.
func (w *ReportWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("report worker is already running")
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	stopCh, doneCh := w.stopCh, w.doneCh
	w.mu.Unlock()

	go w.runLoop(ctx, stopCh, doneCh)

	w.logger.InfoContext(ctx, "Report worker started",
		"refresh_interval", w.config.RefreshInterval.String(),
		log.FieldClass, w.config.Class)
	return nil
}

// Stop ends the loop and waits for an in-flight refresh.
func (w *ReportWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	stopCh, doneCh := w.stopCh, w.doneCh
	w.mu.Unlock()

	close(stopCh)
	select {
	case <-doneCh:
		w.logger.InfoContext(ctx, "Report worker stopped gracefully")
		return nil
	case <-ctx.Done():
		w.logger.WarnContext(ctx, "Report worker stop timed out")
		return ctx.Err()
	}
}

func (w *ReportWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *ReportWorker) runLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(w.config.RefreshInterval)
	defer ticker.Stop()

	w.periodic(ctx)
	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.periodic(ctx)
		}
	}
}

func (w *ReportWorker) periodic(ctx context.Context) {
	if err := w.Refresh(ctx); err != nil && ctx.Err() == nil {
		w.logger.ErrorContext(ctx, "Periodic report refresh failed", log.FieldError, err)
	}
}
