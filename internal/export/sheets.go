package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"settleflow/internal/core"
	"settleflow/internal/log"
	"settleflow/internal/metrics"
)

// SheetsConfig selects the target spreadsheet and the credentials.
type SheetsConfig struct {
	SpreadsheetID      string
	SheetName          string // default "Cashflow"
	ServiceAccountJSON string
	ServiceAccountFile string
}

// SheetsFromEnv reads GOOGLE_SPREADSHEET_ID, GOOGLE_SHEET_NAME and the
// service account variables. Falls back to GOOGLE_APPLICATION_CREDENTIALS.
func SheetsFromEnv() SheetsConfig {
	cfg := SheetsConfig{
		SpreadsheetID:      strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID")),
		SheetName:          strings.TrimSpace(os.Getenv("GOOGLE_SHEET_NAME")),
		ServiceAccountJSON: strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON")),
		ServiceAccountFile: strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE")),
	}
	if cfg.ServiceAccountJSON == "" && cfg.ServiceAccountFile == "" {
		cfg.ServiceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	return cfg
}

// SheetsWriter replaces the summary table of one sheet with the report.
type SheetsWriter struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	logger        *log.Logger
}

// NewSheetsWriter authenticates with the service account named in cfg.
// Extra client options are appended, e.g. a custom endpoint.
func NewSheetsWriter(ctx context.Context, cfg SheetsConfig, logger *log.Logger, opts ...goption.ClientOption) (*SheetsWriter, error) {
	if cfg.SpreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	logger = log.OrDefault(logger, log.ComponentExport)

	var options []goption.ClientOption
	switch {
	case cfg.ServiceAccountJSON != "":
		logger.InfoContext(ctx, "Using inline service account credentials")
		options = append(options, goption.WithCredentialsJSON([]byte(cfg.ServiceAccountJSON)))
	case cfg.ServiceAccountFile != "":
		data, err := os.ReadFile(cfg.ServiceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		logger.InfoContext(ctx, "Reading credentials from file", "path", cfg.ServiceAccountFile)
		options = append(options, goption.WithCredentialsJSON(data))
	case len(opts) == 0:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
	options = append(options, goption.WithScopes(gsheet.SpreadsheetsScope))
	options = append(options, opts...)

	svc, err := gsheet.NewService(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	name := cfg.SheetName
	if name == "" {
		name = summarySheet
	}
	return &SheetsWriter{svc: svc, spreadsheetID: cfg.SpreadsheetID, sheetName: name, logger: logger}, nil
}

func (w *SheetsWriter) Name() string { return "sheets" }

// Export clears columns A:F of the sheet and writes the summary table.
func (w *SheetsWriter) Export(ctx context.Context, report *core.CashflowReport) error {
	err := w.export(ctx, report)
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.IncExport(w.Name(), result)
	return err
}

func (w *SheetsWriter) export(ctx context.Context, report *core.CashflowReport) error {
	if w.svc == nil {
		return errors.New("sheets service not initialized")
	}
	clearRange := fmt.Sprintf("%s!A:F", w.sheetName)
	if _, err := w.svc.Spreadsheets.Values.Clear(w.spreadsheetID, clearRange, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", clearRange, err)
	}

	vr := &gsheet.ValueRange{Values: SheetValues(report)}
	writeRange := fmt.Sprintf("%s!A1", w.sheetName)
	resp, err := w.svc.Spreadsheets.Values.Update(w.spreadsheetID, writeRange, vr).
		ValueInputOption("USER_ENTERED").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("update %s: %w", writeRange, err)
	}
	w.logger.InfoContext(ctx, "Cashflow sheet updated",
		"sheet", w.sheetName,
		"updated_rows", resp.UpdatedRows,
		log.FieldBins, len(report.Bins))
	return nil
}

// SheetValues is the header plus one row per month, ready for a ValueRange.
func SheetValues(report *core.CashflowReport) [][]interface{} {
	rows := SummaryRows(report)
	out := make([][]interface{}, 0, len(rows)+1)
	out = append(out, toAny(SummaryHeader))
	for _, r := range rows {
		out = append(out, toAny(r))
	}
	return out
}
