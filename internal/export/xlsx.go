package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"settleflow/internal/core"
	"settleflow/internal/log"
	"settleflow/internal/metrics"
)

const (
	summarySheet = "Cashflow"
	recordSheet  = "Records"
	amountFormat = 4 // built-in "#,##0.00"
)

// BuildXLSX renders the report as a workbook: a month summary with a
// capex/opex column chart and cumulative line, plus the record listing.
func BuildXLSX(report *core.CashflowReport) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(recordSheet); err != nil {
		return nil, fmt.Errorf("add records sheet: %w", err)
	}
	style, err := f.NewStyle(&excelize.Style{NumFmt: amountFormat})
	if err != nil {
		return nil, fmt.Errorf("amount style: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}

	if err := writeRow(f, summarySheet, 1, toAny(SummaryHeader)); err != nil {
		return nil, err
	}
	for i, b := range report.Bins {
		row := []any{
			b.Bin.Label(),
			b.Capex.InexactFloat64(),
			b.Opex.InexactFloat64(),
			b.Total.InexactFloat64(),
			b.Cumulative.InexactFloat64(),
			b.Count,
		}
		if err := writeRow(f, summarySheet, i+2, row); err != nil {
			return nil, err
		}
	}
	last := len(report.Bins) + 1
	_ = f.SetCellStyle(summarySheet, "A1", "F1", bold)
	if last > 1 {
		_ = f.SetCellStyle(summarySheet, "B2", fmt.Sprintf("E%d", last), style)
	}

	if err := writeRow(f, recordSheet, 1, toAny(RecordHeader)); err != nil {
		return nil, err
	}
	for i, r := range report.Records {
		row := []any{
			r.Date.Format(time.DateTime),
			string(r.Source),
			string(r.Class),
			r.Description,
			r.Amount.InexactFloat64(),
		}
		if err := writeRow(f, recordSheet, i+2, row); err != nil {
			return nil, err
		}
	}
	_ = f.SetCellStyle(recordSheet, "A1", "E1", bold)
	if len(report.Records) > 0 {
		_ = f.SetCellStyle(recordSheet, "E2", fmt.Sprintf("E%d", len(report.Records)+1), style)
	}

	if last > 1 {
		if err := addChart(f, last); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func addChart(f *excelize.File, last int) error {
	categories := fmt.Sprintf("%s!$A$2:$A$%d", summarySheet, last)
	series := func(col string) excelize.ChartSeries {
		return excelize.ChartSeries{
			Name:       fmt.Sprintf("%s!$%s$1", summarySheet, col),
			Categories: categories,
			Values:     fmt.Sprintf("%s!$%s$2:$%s$%d", summarySheet, col, col, last),
		}
	}
	columns := &excelize.Chart{
		Type:   excelize.Col,
		Series: []excelize.ChartSeries{series("B"), series("C")},
		Format: excelize.GraphicOptions{OffsetX: 10, OffsetY: 10},
		Legend: excelize.ChartLegend{Position: "bottom"},
		Dimension: excelize.ChartDimension{
			Width:  720,
			Height: 360,
		},
	}
	cumulative := &excelize.Chart{
		Type:   excelize.Line,
		Series: []excelize.ChartSeries{series("E")},
	}
	if err := f.AddChart(summarySheet, "H2", columns, cumulative); err != nil {
		return fmt.Errorf("add chart: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// XLSXWriter saves the report workbook into Dir.
type XLSXWriter struct {
	Dir      string
	FileName string // default "cashflow.xlsx"
	logger   *log.Logger
}

func NewXLSXWriter(dir string, logger *log.Logger) *XLSXWriter {
	return &XLSXWriter{Dir: dir, FileName: "cashflow.xlsx", logger: log.OrDefault(logger, log.ComponentExport)}
}

func (w *XLSXWriter) Name() string { return "xlsx" }

// Path returns the workbook location.
func (w *XLSXWriter) Path() string {
	name := w.FileName
	if name == "" {
		name = "cashflow.xlsx"
	}
	return filepath.Join(w.Dir, name)
}

// Export writes the workbook atomically: a temp file in Dir renamed over the target.
func (w *XLSXWriter) Export(ctx context.Context, report *core.CashflowReport) error {
	err := w.export(report)
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.IncExport(w.Name(), result)
	if err != nil {
		return err
	}
	log.OrDefault(w.logger, log.ComponentExport).InfoContext(ctx, "Cashflow workbook written",
		"path", w.Path(), log.FieldBins, len(report.Bins))
	return nil
}

func (w *XLSXWriter) export(report *core.CashflowReport) error {
	data, err := BuildXLSX(report)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	tmp, err := os.CreateTemp(w.Dir, ".cashflow-*.xlsx")
	if err != nil {
		return fmt.Errorf("create temp workbook: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
		tmp.Close()
		return fmt.Errorf("write workbook: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close workbook: %w", err)
	}
	if err := os.Rename(tmp.Name(), w.Path()); err != nil {
		return fmt.Errorf("replace workbook: %w", err)
	}
	return nil
}
