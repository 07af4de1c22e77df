// Package cli provides common CLI initialization utilities shared by the
// commands under cmd/.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata" // report zones must resolve on hosts without zoneinfo

	"github.com/joho/godotenv"

	"settleflow/internal/amqp"
	"settleflow/internal/backend"
	"settleflow/internal/config"
	"settleflow/internal/export"
	"settleflow/internal/log"
	"settleflow/internal/services"
)

// SetupLogger initializes structured logging at LOG_LEVEL for component
// and installs it as the default logger.
func SetupLogger(component string) *log.Logger {
	cfg := log.DefaultConfig()
	cfg.Level = log.ParseLevel(os.Getenv("LOG_LEVEL"))
	cfg.Component = component
	logger := log.New(cfg)
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	return cfg
}

// OpenBackend creates the configured store.
// Returns the backend or exits the process on failure.
func OpenBackend(ctx context.Context, logger *log.Logger, cfg *config.Config) *backend.BackendResult {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger.WithComponent(log.ComponentBackend)).CreateBackend(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	return res
}

// CashflowConfig builds the aggregation settings from the application config.
func CashflowConfig(cfg *config.Config) (services.CashflowConfig, error) {
	cc := services.DefaultCashflowConfig()
	loc, err := cfg.Location()
	if err != nil {
		return cc, err
	}
	epoch, err := cfg.Epoch(loc)
	if err != nil {
		return cc, err
	}
	cc.Location, cc.Epoch = loc, epoch
	if len(cfg.ExcludedDescriptions) > 0 {
		cc.ExcludedDescriptions = cfg.ExcludedDescriptions
	}
	if len(cfg.ExcludedCategories) > 0 {
		cc.ExcludedCategories = cfg.ExcludedCategories
	}
	return cc, nil
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when shutdown is complete.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func()) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		cancel()

		finished := make(chan struct{})
		go func() {
			if cleanup != nil {
				cleanup()
			}
			close(finished)
		}()

		select {
		case <-finished:
			logger.Info("Shutdown complete")
		case <-time.After(timeout):
			logger.Warn("Shutdown timeout reached")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}

// ConnectAMQP returns a broker client when AMQP_URL is set. A broker that
// cannot be reached is logged and yields nil, so callers run without events.
func ConnectAMQP(logger *log.Logger, cfg *config.Config) *amqp.Client {
	if cfg.AMQPURL == "" {
		logger.Info("AMQP disabled - no AMQP_URL provided")
		return nil
	}
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger.WithComponent(log.ComponentAMQP))
	if err != nil {
		logger.Warn("Failed to connect to AMQP, continuing without events", log.FieldError, err)
		return nil
	}
	return client
}

// Exporters returns the workbook writer plus the Google Sheets writer when a
// spreadsheet is configured.
func Exporters(ctx context.Context, logger *log.Logger, cfg *config.Config) ([]export.Exporter, error) {
	exporters := []export.Exporter{export.NewXLSXWriter(cfg.ReportOutputDir, logger.WithComponent(log.ComponentExport))}
	if cfg.GoogleSpreadsheetID == "" {
		logger.Info("Google Sheets export disabled - no GOOGLE_SPREADSHEET_ID provided")
		return exporters, nil
	}
	sheets, err := SheetsWriter(ctx, logger, cfg)
	if err != nil {
		return nil, err
	}
	return append(exporters, sheets), nil
}

// SheetsWriter builds the Google Sheets exporter from the environment.
func SheetsWriter(ctx context.Context, logger *log.Logger, cfg *config.Config) (*export.SheetsWriter, error) {
	scfg := export.SheetsFromEnv()
	scfg.SpreadsheetID = cfg.GoogleSpreadsheetID
	scfg.SheetName = cfg.GoogleSheetName
	w, err := export.NewSheetsWriter(ctx, scfg, logger.WithComponent(log.ComponentExport))
	if err != nil {
		return nil, fmt.Errorf("google sheets: %w", err)
	}
	return w, nil
}

// ParseDate reads an optional YYYY-MM-DD flag value in loc. endOfDay moves
// the result to the last instant of that day.
func ParseDate(s string, loc *time.Location, endOfDay bool) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, s, loc)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	if endOfDay {
		t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return &t, nil
}
