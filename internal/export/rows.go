// Package export renders cashflow reports into workbooks and spreadsheets.
package export

import (
	"context"
	"strconv"
	"time"

	"settleflow/internal/core"
)

// Exporter publishes a report to one sink.
type Exporter interface {
	Name() string
	Export(ctx context.Context, report *core.CashflowReport) error
}

// SummaryHeader is the first row of the month summary table.
var SummaryHeader = []string{"Month", "Capex", "Opex", "Total", "Cumulative", "Records"}

// RecordHeader is the first row of the record listing.
var RecordHeader = []string{"Date", "Source", "Class", "Description", "Amount"}

// SummaryRows returns one row per month bin, amounts as fixed two-decimal strings.
func SummaryRows(report *core.CashflowReport) [][]string {
	rows := make([][]string, 0, len(report.Bins))
	for _, b := range report.Bins {
		rows = append(rows, []string{
			b.Bin.Label(),
			core.FormatAmount(b.Capex),
			core.FormatAmount(b.Opex),
			core.FormatAmount(b.Total),
			core.FormatAmount(b.Cumulative),
			strconv.Itoa(b.Count),
		})
	}
	return rows
}

// RecordRows lists every record of the report in series order.
func RecordRows(report *core.CashflowReport) [][]string {
	rows := make([][]string, 0, len(report.Records))
	for _, r := range report.Records {
		rows = append(rows, []string{
			r.Date.Format(time.DateTime),
			string(r.Source),
			string(r.Class),
			r.Description,
			core.FormatAmount(r.Amount),
		})
	}
	return rows
}
