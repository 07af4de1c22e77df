package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"settleflow/internal/cli"
	"settleflow/internal/inbound"
	"settleflow/internal/log"
	"settleflow/internal/ports"
	"settleflow/internal/services"
	"settleflow/internal/settlement"
)

func main() {
	os.Exit(run())
}

func run() int {
	failOnGaps := flag.Bool("fail-on-gaps", false, "exit non-zero when settlement periods are not contiguous")
	file := flag.String("file", "", "ingest one file instead of scanning INBOUND_DIR")
	flag.Parse()

	cli.LoadEnvFile()
	logger := cli.SetupLogger("settle-ingest")
	cfg := cli.LoadAndValidateConfig(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res := cli.OpenBackend(ctx, logger, cfg)
	defer func() {
		if err := res.Close(); err != nil {
			logger.Error("Failed to close backend", log.FieldError, err)
		}
	}()

	loc, err := cfg.Location()
	if err != nil {
		logger.Error("Invalid report timezone", log.FieldError, err)
		return 1
	}

	var publisher ports.EventPublisher
	if client := cli.ConnectAMQP(logger, cfg); client != nil {
		defer client.Close()
		publisher = client
	}

	svc := services.NewIngestService(
		res.Backend,
		settlement.NewParser(loc),
		inbound.NewArchive(cfg.ArchiveDir),
		publisher,
		logger.WithComponent(log.ComponentIngest),
	)

	var results []services.IngestResult
	if *file != "" {
		results = append(results, svc.IngestFile(ctx, *file))
	} else {
		report, err := svc.IngestBatch(ctx, inbound.NewDir(cfg.InboundDir))
		if err != nil {
			logger.Error("Ingestion batch aborted", log.FieldError, err, log.FieldBatchID, report.BatchID)
			printResults(report.Results)
			return 1
		}
		results = report.Results
	}
	failed := printResults(results)

	gaps, err := services.NewSettlementAudit(res.Backend, logger.WithComponent(log.ComponentAudit)).MissingSettlements(ctx)
	if err != nil {
		logger.Error("Settlement audit failed", log.FieldError, err)
		return 1
	}
	for _, g := range gaps {
		kind := "gap"
		if g.Overlap() {
			kind = "overlap"
		}
		fmt.Printf("%s between settlement %d (ends %s) and %d (starts %s)\n",
			kind, g.AfterID, g.From.Format("2006-01-02 15:04:05"), g.BeforeID, g.To.Format("2006-01-02 15:04:05"))
	}

	if failed > 0 {
		return 1
	}
	if *failOnGaps && len(gaps) > 0 {
		return 2
	}
	return 0
}

func printResults(results []services.IngestResult) (failed int) {
	for _, r := range results {
		fmt.Println(r.String())
		if r.Status == services.StatusFailed {
			failed++
		}
	}
	return failed
}
