package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"settleflow/internal/cli"
	apphttp "settleflow/internal/http"
	"settleflow/internal/log"
	"settleflow/internal/metrics"
	"settleflow/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger("cashflow-server")
	cfg := cli.LoadAndValidateConfig(logger)
	metrics.Init()

	res := cli.OpenBackend(context.Background(), logger, cfg)

	ccfg, err := cli.CashflowConfig(cfg)
	if err != nil {
		logger.Error("Invalid cashflow configuration", log.FieldError, err)
		os.Exit(1)
	}
	cashflow := services.NewCashflowService(res.Backend, ccfg, logger.WithComponent(log.ComponentCashflow))

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Cashflow: cashflow,
		Sales:    services.NewSalesService(res.Backend, ccfg.Location, logger.WithComponent(log.ComponentCashflow)),
		Audit:    services.NewSettlementAudit(res.Backend, logger.WithComponent(log.ComponentAudit)),
		Store:    res.Backend,
	}, apphttp.Options{}, logger.WithComponent(log.ComponentHTTP))

	srv.WriteTimeout = 30 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB
	srv.Start()

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		if err := res.Close(); err != nil {
			logger.Error("Failed to close backend", log.FieldError, err)
		}
	})

	logger.Info("Starting cashflow server", "port", cfg.Port, "backend", cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		_ = res.Close()
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
