package main

import (
	"context"
	"errors"
	"os"
	"time"

	"settleflow/internal/cli"
	"settleflow/internal/log"
	"settleflow/internal/services"
	"settleflow/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger("report-worker")
	cfg := cli.LoadAndValidateConfig(logger)

	logger.Info("Starting report-worker")

	res := cli.OpenBackend(context.Background(), logger, cfg)

	ccfg, err := cli.CashflowConfig(cfg)
	if err != nil {
		logger.Error("Invalid cashflow configuration", log.FieldError, err)
		os.Exit(1)
	}
	exporters, err := cli.Exporters(context.Background(), logger, cfg)
	if err != nil {
		logger.Error("Failed to initialize exporters", log.FieldError, err)
		os.Exit(1)
	}

	cashflow := services.NewCashflowService(res.Backend, ccfg, logger.WithComponent(log.ComponentCashflow))
	w := worker.NewReportWorker(cashflow, exporters, worker.ReportWorkerConfig{
		RefreshInterval: cfg.RefreshInterval,
	}, logger.WithComponent(log.ComponentWorker))

	amqpClient := cli.ConnectAMQP(logger, cfg)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		if err := w.Stop(stopCtx); err != nil {
			logger.Warn("Report worker stop failed", log.FieldError, err)
		}
		if amqpClient != nil {
			_ = amqpClient.Close()
		}
		if err := res.Close(); err != nil {
			logger.Error("Failed to close backend", log.FieldError, err)
		}
	})

	if err := w.Start(ctx); err != nil {
		logger.Error("Failed to start report worker", log.FieldError, err)
		os.Exit(1)
	}

	if amqpClient != nil {
		go func() {
			err := amqpClient.ConsumeSettlementIngested(ctx, w.HandleSettlementIngested)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", log.FieldError, err)
			}
		}()
	} else {
		logger.Info("Running periodic refresh only", "refresh_interval", cfg.RefreshInterval.String())
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Report worker shutdown complete")
}
