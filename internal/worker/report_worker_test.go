package worker

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"settleflow/internal/amqp"
	"settleflow/internal/core"
	"settleflow/internal/export"
	"settleflow/internal/log"
	"settleflow/internal/services"
	"settleflow/internal/storage/memory"
)

type stubReporter struct {
	mu      sync.Mutex
	calls   int
	classes []core.ClassFilter
	err     error
}

func (r *stubReporter) Aggregate(_ context.Context, q services.CashflowQuery) (*core.CashflowReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.classes = append(r.classes, q.Class)
	if r.err != nil {
		return nil, r.err
	}
	return &core.CashflowReport{Class: q.Class, Total: decimal.Zero}, nil
}

func (r *stubReporter) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type recordingExporter struct {
	name string
	err  error

	mu      sync.Mutex
	reports []*core.CashflowReport
}

func (e *recordingExporter) Name() string { return e.name }

func (e *recordingExporter) Export(_ context.Context, r *core.CashflowReport) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reports = append(e.reports, r)
	return e.err
}

func (e *recordingExporter) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.reports)
}

type steppingClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func TestHandleSettlementIngestedExportsToEverySink(t *testing.T) {
	rep := &stubReporter{}
	a, b := &recordingExporter{name: "a"}, &recordingExporter{name: "b"}
	w := NewReportWorker(rep, []export.Exporter{a, b}, ReportWorkerConfig{Class: core.OpexOnly}, log.Discard())

	err := w.HandleSettlementIngested(context.Background(), &amqp.SettlementIngestedMessage{SettlementID: 7, Timestamp: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, 1, a.Count())
	assert.Equal(t, 1, b.Count())
	assert.Equal(t, []core.ClassFilter{core.OpexOnly}, rep.classes)
	assert.Equal(t, 1, w.Refreshes())
}

func TestHandleSettlementIngestedSkipsCoveredEvents(t *testing.T) {
	clock := &steppingClock{t: time.Date(2023, 3, 10, 12, 0, 0, 0, time.UTC)}
	rep := &stubReporter{}
	sink := &recordingExporter{name: "sink"}
	w := NewReportWorker(rep, []export.Exporter{sink}, ReportWorkerConfig{Now: clock.Now}, log.Discard())
	ctx := context.Background()

	event := time.Date(2023, 3, 10, 11, 0, 0, 0, time.UTC)
	require.NoError(t, w.HandleSettlementIngested(ctx, &amqp.SettlementIngestedMessage{SettlementID: 1, Timestamp: event}))
	// Same batch, emitted before the refresh above started.
	require.NoError(t, w.HandleSettlementIngested(ctx, &amqp.SettlementIngestedMessage{SettlementID: 2, Timestamp: event.Add(time.Minute)}))
	assert.Equal(t, 1, rep.Calls())

	later := time.Date(2023, 3, 10, 13, 0, 0, 0, time.UTC)
	require.NoError(t, w.HandleSettlementIngested(ctx, &amqp.SettlementIngestedMessage{SettlementID: 3, Timestamp: later}))
	assert.Equal(t, 2, rep.Calls())
	assert.Equal(t, 2, sink.Count())
}

func TestRefreshErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("reporter failure", func(t *testing.T) {
		rep := &stubReporter{err: core.Unavailable("range", errors.New("locked"))}
		sink := &recordingExporter{name: "sink"}
		w := NewReportWorker(rep, []export.Exporter{sink}, ReportWorkerConfig{}, log.Discard())

		err := w.HandleSettlementIngested(ctx, &amqp.SettlementIngestedMessage{SettlementID: 1, Timestamp: time.Now()})
		assert.ErrorIs(t, err, core.ErrStoreUnavailable)
		assert.Zero(t, sink.Count())
		assert.Zero(t, w.Refreshes())
	})

	t.Run("one sink fails", func(t *testing.T) {
		bad := &recordingExporter{name: "sheets", err: errors.New("quota exceeded")}
		good := &recordingExporter{name: "xlsx"}
		w := NewReportWorker(&stubReporter{}, []export.Exporter{bad, good}, ReportWorkerConfig{}, log.Discard())

		err := w.Refresh(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sheets: quota exceeded")
		assert.Equal(t, 1, good.Count(), "remaining sinks still receive the report")

		// Not marked as refreshed, so the redelivered event is processed again.
		require.Error(t, w.HandleSettlementIngested(ctx, &amqp.SettlementIngestedMessage{SettlementID: 1, Timestamp: time.Now().Add(-time.Hour)}))
		assert.Equal(t, 2, good.Count())
	})
}

func TestStartStop(t *testing.T) {
	rep := &stubReporter{}
	sink := &recordingExporter{name: "sink"}
	w := NewReportWorker(rep, []export.Exporter{sink}, ReportWorkerConfig{RefreshInterval: 10 * time.Millisecond}, log.Discard())
	ctx := context.Background()

	require.NoError(t, w.Start(ctx))
	assert.True(t, w.IsRunning())
	assert.Error(t, w.Start(ctx), "second start must fail")

	assert.Eventually(t, func() bool { return sink.Count() >= 2 }, time.Second, 5*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, w.Stop(stopCtx))
	assert.False(t, w.IsRunning())
	require.NoError(t, w.Stop(stopCtx), "stop is idempotent")

	require.NoError(t, w.Start(ctx), "restart after stop")
	require.NoError(t, w.Stop(stopCtx))
}

func TestRefreshWritesWorkbook(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	_, err := st.InsertLedgerRecords(ctx, []core.LedgerRecord{
		{Class: core.Capex, Date: time.Date(2023, 1, 5, 0, 0, 0, 0, time.UTC), Amount: decimal.RequireFromString("-1000"), Description: "Mould"},
	})
	require.NoError(t, err)

	cfg := services.DefaultCashflowConfig()
	cfg.Epoch = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg.Now = func() time.Time { return time.Date(2023, 3, 10, 0, 0, 0, 0, time.UTC) }
	xlsx := export.NewXLSXWriter(t.TempDir(), log.Discard())

	w := NewReportWorker(services.NewCashflowService(st, cfg, log.Discard()), []export.Exporter{xlsx}, ReportWorkerConfig{}, log.Discard())
	require.NoError(t, w.Refresh(ctx))

	info, err := os.Stat(xlsx.Path())
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}
