package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"settleflow/internal/core"
	"settleflow/internal/log"
	"settleflow/internal/metrics"
	"settleflow/internal/ports"
	"settleflow/internal/settlement"
)

// Ingestion outcomes of a single file.
const (
	StatusInserted  = "inserted"
	StatusDuplicate = "duplicate"
	StatusFailed    = "failed"
)

// FileParser turns a settlement report into typed lines.
type FileParser interface {
	ParseFile(path string) ([]settlement.Line, error)
}

// IngestResult is the outcome of one file.
type IngestResult struct {
	File           string
	Path           string
	Status         string
	SettlementID   int64
	Transactions   int
	SkippedPayable int
	Archived       bool
	ArchivedTo     string
	ArchiveErr     error
	Err            error
}

func (r IngestResult) String() string {
	switch r.Status {
	case StatusInserted:
		s := fmt.Sprintf("%s: inserted settlement %d (%d transactions, %d payable lines skipped)",
			r.File, r.SettlementID, r.Transactions, r.SkippedPayable)
		if r.ArchiveErr != nil {
			s += fmt.Sprintf("; not archived: %v", r.ArchiveErr)
		}
		return s
	case StatusDuplicate:
		return fmt.Sprintf("%s: settlement %d already ingested", r.File, r.SettlementID)
	default:
		return fmt.Sprintf("%s: failed: %v", r.File, r.Err)
	}
}

// BatchReport aggregates the results of one pass over the inbox.
type BatchReport struct {
	BatchID    string
	Started    time.Time
	Finished   time.Time
	Results    []IngestResult
	Inserted   int
	Duplicates int
	Failed     int
}

func (b *BatchReport) add(r IngestResult) {
	b.Results = append(b.Results, r)
	switch r.Status {
	case StatusInserted:
		b.Inserted++
	case StatusDuplicate:
		b.Duplicates++
	default:
		b.Failed++
	}
}

// IngestService loads settlement files into the store, one unit of work per file.
type IngestService struct {
	store     ports.SettlementStore
	parser    FileParser
	archiver  ports.Archiver
	publisher ports.EventPublisher
	logger    *log.Logger
}

// NewIngestService wires the collaborators. archiver and publisher may be nil.
func NewIngestService(store ports.SettlementStore, parser FileParser, archiver ports.Archiver, publisher ports.EventPublisher, logger *log.Logger) *IngestService {
	return &IngestService{
		store:     store,
		parser:    parser,
		archiver:  archiver,
		publisher: publisher,
		logger:    log.OrDefault(logger, log.ComponentIngest),
	}
}

// IngestFile ingests a single file under a fresh batch ID.
func (s *IngestService) IngestFile(ctx context.Context, path string) IngestResult {
	return s.ingest(ctx, uuid.NewString(), path)
}

// IngestBatch ingests every file the inbox lists, in order. Per-file failures
// are reported in the results; the error is set only when the inbox cannot be
// listed or ctx is cancelled.
func (s *IngestService) IngestBatch(ctx context.Context, inbox ports.Inbox) (BatchReport, error) {
	report := BatchReport{BatchID: uuid.NewString(), Started: time.Now()}
	logger := s.logger.With(log.FieldBatchID, report.BatchID)

	paths, err := inbox.List(ctx)
	if err != nil {
		report.Finished = time.Now()
		return report, fmt.Errorf("list inbound files: %w", err)
	}
	logger.InfoContext(ctx, "Starting ingestion batch", "files", len(paths))

	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			report.Finished = time.Now()
			return report, err
		}
		report.add(s.ingest(ctx, report.BatchID, p))
	}
	report.Finished = time.Now()

	logger.InfoContext(ctx, "Ingestion batch finished",
		"inserted", report.Inserted,
		"duplicates", report.Duplicates,
		"failed", report.Failed,
		log.FieldDuration, report.Finished.Sub(report.Started).Milliseconds())
	return report, nil
}

func (s *IngestService) ingest(ctx context.Context, batchID, path string) IngestResult {
	start := time.Now()
	res := s.ingestFile(ctx, batchID, path)

	metrics.ObserveIngest(res.Status, time.Since(start))
	if res.Status == StatusInserted {
		metrics.AddIngestedRows(res.Transactions, res.SkippedPayable)
	}

	fields := log.NewFields().
		WithOperation(log.OpIngest).
		WithFile(res.File, 0).
		WithSettlement(res.SettlementID)
	fields[log.FieldBatchID] = batchID
	fields[log.FieldStatus] = res.Status
	switch res.Status {
	case StatusFailed:
		s.logger.ErrorContext(ctx, "Settlement file failed", fields.WithError(res.Err).ToSlice()...)
	case StatusDuplicate:
		s.logger.InfoContext(ctx, "Settlement already ingested, skipping", fields.ToSlice()...)
	default:
		fields[log.FieldTransactions] = res.Transactions
		fields[log.FieldSkipped] = res.SkippedPayable
		s.logger.InfoContext(ctx, "Settlement file ingested", fields.ToSlice()...)
	}
	return res
}

func (s *IngestService) ingestFile(ctx context.Context, batchID, path string) IngestResult {
	res := IngestResult{File: filepath.Base(path), Path: path}
	fail := func(err error) IngestResult {
		res.Status = StatusFailed
		res.Err = err
		return res
	}

	lines, err := s.parser.ParseFile(path)
	if err != nil {
		return fail(err)
	}
	if len(lines) == 0 {
		return fail(&core.ParseError{File: res.File, Err: errors.New("no rows")})
	}
	res.SettlementID = lines[0].SettlementID

	exists, err := s.store.SettlementExists(ctx, res.SettlementID)
	if err != nil {
		return fail(fmt.Errorf("%s: check settlement %d: %w", res.File, res.SettlementID, err))
	}
	if exists {
		res.Status = StatusDuplicate
		return res
	}

	var header settlement.Line
	err = s.store.InTx(ctx, func(w ports.SettlementWriter) error {
		var inserted, skipped int
		for _, l := range lines {
			if l.SettlementID != res.SettlementID {
				return &core.IntegrityError{Line: l.Row, SettlementID: l.SettlementID,
					Reason: fmt.Sprintf("row belongs to settlement %d, file is settlement %d", l.SettlementID, res.SettlementID)}
			}
			switch {
			case l.IsHeader():
				if !header.Start.IsZero() {
					return &core.IntegrityError{Line: l.Row, SettlementID: l.SettlementID,
						Reason: fmt.Sprintf("second settlement header, first at line %d", header.Row)}
				}
				if err := w.InsertSettlement(ctx, l.Settlement()); err != nil {
					return withLine(err, l.Row)
				}
				header = l
			case l.IsPayableTo():
				skipped++
			default:
				if header.Start.IsZero() {
					return &core.IntegrityError{Line: l.Row, SettlementID: l.SettlementID,
						Reason: "transaction before its settlement header"}
				}
				if _, err := w.InsertTransaction(ctx, l.Transaction()); err != nil {
					return withLine(err, l.Row)
				}
				inserted++
			}
		}
		if header.Start.IsZero() {
			return &core.IntegrityError{SettlementID: res.SettlementID, Reason: "file has no settlement header"}
		}
		res.Transactions, res.SkippedPayable = inserted, skipped
		return nil
	})
	if err != nil {
		res.Transactions, res.SkippedPayable = 0, 0
		if errors.Is(err, core.ErrDuplicateSettlement) {
			res.Status = StatusDuplicate
			return res
		}
		var ie *core.IntegrityError
		if errors.As(err, &ie) && ie.File == "" {
			ie.File = res.File
		}
		return fail(err)
	}
	res.Status = StatusInserted

	s.archive(ctx, &res)
	s.publish(ctx, batchID, &res, header)
	return res
}

// withLine attaches the file line to integrity errors raised by the store.
func withLine(err error, line int) error {
	var ie *core.IntegrityError
	if errors.As(err, &ie) && ie.Line == 0 {
		ie.Line = line
	}
	return err
}

func (s *IngestService) archive(ctx context.Context, res *IngestResult) {
	if s.archiver == nil {
		return
	}
	dest, err := s.archiver.Archive(res.Path)
	if err != nil {
		res.ArchiveErr = err
		metrics.IncArchiveFailure()
		s.logger.WarnContext(ctx, "Committed settlement file could not be archived",
			log.NewFields().WithOperation(log.OpArchive).WithFile(res.File, 0).WithError(err).ToSlice()...)
		return
	}
	res.Archived, res.ArchivedTo = true, dest
}

func (s *IngestService) publish(ctx context.Context, batchID string, res *IngestResult, header settlement.Line) {
	if s.publisher == nil {
		return
	}
	ev := ports.SettlementIngested{
		BatchID:      batchID,
		SettlementID: res.SettlementID,
		File:         res.File,
		Start:        header.Start,
		End:          header.End,
		Transactions: res.Transactions,
	}
	if err := s.publisher.PublishSettlementIngested(ctx, ev); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish settlement ingested message",
			log.NewFields().WithOperation(log.OpPublish).WithSettlement(res.SettlementID).WithError(err).ToSlice()...)
	}
}
