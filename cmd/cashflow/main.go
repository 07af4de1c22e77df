package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"settleflow/internal/backend"
	"settleflow/internal/cli"
	"settleflow/internal/config"
	"settleflow/internal/core"
	"settleflow/internal/export"
	"settleflow/internal/log"
	"settleflow/internal/services"
)

const usage = `usage: cashflow <command> [flags]

commands:
  report         monthly cashflow table (-from, -to, -class, -records, -xlsx, -sheets)
  import-ledger  load capex or opex rows from CSV (-class capex|opex file.csv)
  gaps           list holes between settlement periods
  sales          daily sales totals (-from, -to)
`

type app struct {
	logger *log.Logger
	cfg    *config.Config
	store  backend.Backend
	loc    *time.Location
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "help" {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
	cmd, rest := args[0], args[1:]

	cli.LoadEnvFile()
	logger := cli.SetupLogger("cashflow")
	cfg := cli.LoadAndValidateConfig(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loc, err := cfg.Location()
	if err != nil {
		logger.Error("Invalid report timezone", log.FieldError, err)
		return 1
	}
	res := cli.OpenBackend(ctx, logger, cfg)
	defer func() {
		if err := res.Close(); err != nil {
			logger.Error("Failed to close backend", log.FieldError, err)
		}
	}()
	a := &app{logger: logger, cfg: cfg, store: res.Backend, loc: loc}

	switch cmd {
	case "report":
		err = a.report(ctx, rest)
	case "import-ledger":
		err = a.importLedger(ctx, rest)
	case "gaps":
		err = a.gaps(ctx)
	case "sales":
		err = a.sales(ctx, rest)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		return 2
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}

func (a *app) report(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	from := fs.String("from", "", "first day, YYYY-MM-DD (default CASHFLOW_EPOCH)")
	to := fs.String("to", "", "last day, YYYY-MM-DD (default today)")
	class := fs.String("class", "all", "all, capex or opex")
	records := fs.Bool("records", false, "also list every record")
	xlsx := fs.String("xlsx", "", "write the workbook to this path")
	sheets := fs.Bool("sheets", false, "push the summary to GOOGLE_SPREADSHEET_ID")
	if err := fs.Parse(args); err != nil {
		return err
	}

	q := services.CashflowQuery{Class: core.ClassFilter(strings.ToLower(*class))}
	var err error
	if q.From, err = cli.ParseDate(*from, a.loc, false); err != nil {
		return err
	}
	if q.To, err = cli.ParseDate(*to, a.loc, true); err != nil {
		return err
	}

	ccfg, err := cli.CashflowConfig(a.cfg)
	if err != nil {
		return err
	}
	svc := services.NewCashflowService(a.store, ccfg, a.logger.WithComponent(log.ComponentCashflow))
	report, err := svc.Aggregate(ctx, q)
	if err != nil {
		return err
	}

	printTable(export.SummaryHeader, export.SummaryRows(report))
	fmt.Printf("\ntotal %s across %d months\n", core.FormatAmount(report.Total), len(report.Bins))
	if *records {
		fmt.Println()
		printTable(export.RecordHeader, export.RecordRows(report))
	}

	if *xlsx != "" {
		w := export.NewXLSXWriter(filepath.Dir(*xlsx), a.logger.WithComponent(log.ComponentExport))
		w.FileName = filepath.Base(*xlsx)
		if err := w.Export(ctx, report); err != nil {
			return err
		}
		fmt.Println("workbook written to", w.Path())
	}
	if *sheets {
		w, err := cli.SheetsWriter(ctx, a.logger, a.cfg)
		if err != nil {
			return err
		}
		if err := w.Export(ctx, report); err != nil {
			return err
		}
		fmt.Println("google sheet updated")
	}
	return nil
}

func (a *app) importLedger(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("import-ledger", flag.ContinueOnError)
	class := fs.String("class", "", "capex or opex")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("import-ledger needs exactly one CSV file")
	}
	c, err := core.ParseExpenditureClass(*class)
	if err != nil {
		return err
	}
	path := fs.Arg(0)
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	imp := services.NewLedgerImporter(a.store, a.loc, a.logger)
	n, err := imp.ImportCSV(ctx, c, filepath.Base(path), f)
	if err != nil {
		return err
	}
	fmt.Printf("imported %d %s rows from %s\n", n, c, path)
	return nil
}

func (a *app) gaps(ctx context.Context) error {
	gaps, err := services.NewSettlementAudit(a.store, a.logger.WithComponent(log.ComponentAudit)).MissingSettlements(ctx)
	if err != nil {
		return err
	}
	if len(gaps) == 0 {
		fmt.Println("no missing settlements")
		return nil
	}
	rows := make([][]string, 0, len(gaps))
	for _, g := range gaps {
		kind := "gap"
		if g.Overlap() {
			kind = "overlap"
		}
		rows = append(rows, []string{
			kind,
			fmt.Sprint(g.AfterID),
			g.From.In(a.loc).Format(time.DateTime),
			fmt.Sprint(g.BeforeID),
			g.To.In(a.loc).Format(time.DateTime),
		})
	}
	printTable([]string{"Kind", "After", "Ends", "Before", "Starts"}, rows)
	return nil
}

func (a *app) sales(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sales", flag.ContinueOnError)
	from := fs.String("from", "", "first day, YYYY-MM-DD (default 30 days ago)")
	to := fs.String("to", "", "last day, YYYY-MM-DD (default today)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	end := time.Now().In(a.loc)
	if t, err := cli.ParseDate(*to, a.loc, false); err != nil {
		return err
	} else if t != nil {
		end = *t
	}
	start := end.AddDate(0, 0, -29)
	if t, err := cli.ParseDate(*from, a.loc, false); err != nil {
		return err
	} else if t != nil {
		start = *t
	}

	days, err := services.NewSalesService(a.store, a.loc, a.logger).DailySales(ctx, start, end)
	if err != nil {
		return err
	}
	rows := make([][]string, 0, len(days))
	for _, d := range days {
		rows = append(rows, []string{d.Day.Format(time.DateOnly), core.FormatAmount(d.Amount)})
	}
	printTable([]string{"Day", "Sales"}, rows)
	return nil
}

func printTable(header []string, rows [][]string) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, strings.Join(header, "\t")+"\t")
	for _, r := range rows {
		fmt.Fprintln(tw, strings.Join(r, "\t")+"\t")
	}
	_ = tw.Flush()
}
