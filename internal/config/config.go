package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const epochLayout = "2006-01-02"

type Config struct {
	// HTTP Server
	Port string

	// Backend selection
	DataBackend string

	// Database
	SQLiteDBPath   string
	DatabaseURL    string
	DBProfilesFile string
	DBProfile      string

	// Files
	InboundDir      string
	ArchiveDir      string
	ReportOutputDir string

	// Cashflow
	ReportTimezone       string
	CashflowEpoch        string
	ExcludedDescriptions []string
	ExcludedCategories   []string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets
	GoogleSpreadsheetID string
	GoogleSheetName     string

	// Worker
	RefreshInterval time.Duration

	LogLevel string
}

func Load() *Config {
	cfg := &Config{
		Port:        getEnv("PORT", "8081"),
		DataBackend: getEnv("DATA_BACKEND", "sqlite"),

		SQLiteDBPath:   getEnv("SQLITE_DB_PATH", "./data/settleflow.db"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		DBProfilesFile: getEnv("DB_PROFILES_FILE", ""),
		DBProfile:      getEnv("DB_PROFILE", ""),

		InboundDir:      getEnv("INBOUND_DIR", "./data/inbound"),
		ArchiveDir:      getEnv("ARCHIVE_DIR", "./data/archive"),
		ReportOutputDir: getEnv("REPORT_OUTPUT_DIR", "./data/reports"),

		ReportTimezone:       getEnv("REPORT_TIMEZONE", "UTC"),
		CashflowEpoch:        getEnv("CASHFLOW_EPOCH", "2020-01-01"),
		ExcludedDescriptions: getEnvList("CASHFLOW_EXCLUDED_DESCRIPTIONS", nil),
		ExcludedCategories:   getEnvList("CASHFLOW_EXCLUDED_CATEGORIES", nil),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "settleflow"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "settlement_ingested"),

		GoogleSpreadsheetID: getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:     getEnv("GOOGLE_SHEET_NAME", "Cashflow"),

		RefreshInterval: getEnvDuration("REPORT_REFRESH_INTERVAL", time.Hour),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg
}

// Validate validates the configuration and returns an error listing every problem
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	// Validate data backend
	validBackends := []string{"memory", "sqlite", "postgres"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "sqlite" && c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
	}

	// PostgreSQL needs a URL or an explicitly selected profile
	if c.DataBackend == "postgres" {
		switch {
		case c.DatabaseURL != "":
			if u, err := url.Parse(c.DatabaseURL); err != nil {
				errors = append(errors, fmt.Sprintf("invalid DATABASE_URL: %v", err))
			} else if u.Scheme != "postgres" && u.Scheme != "postgresql" {
				errors = append(errors, fmt.Sprintf("invalid DATABASE_URL scheme '%s': must be 'postgres' or 'postgresql'", u.Scheme))
			}
		case c.DBProfile != "":
			if c.DBProfilesFile == "" {
				errors = append(errors, "DB_PROFILES_FILE is required when DB_PROFILE is set")
			} else if _, err := os.Stat(c.DBProfilesFile); err != nil {
				errors = append(errors, fmt.Sprintf("database profiles file does not exist: %s", c.DBProfilesFile))
			}
		default:
			errors = append(errors, "either DATABASE_URL or DB_PROFILE must be provided for postgres backend")
		}
	}

	if c.InboundDir == "" {
		errors = append(errors, "inbound directory cannot be empty")
	}
	if c.ArchiveDir == "" {
		errors = append(errors, "archive directory cannot be empty")
	}
	if c.InboundDir != "" && filepath.Clean(c.InboundDir) == filepath.Clean(c.ArchiveDir) {
		errors = append(errors, "archive directory must differ from the inbound directory")
	}

	if _, err := time.LoadLocation(c.ReportTimezone); err != nil {
		errors = append(errors, fmt.Sprintf("invalid report timezone '%s': %v", c.ReportTimezone, err))
	}
	if _, err := time.Parse(epochLayout, c.CashflowEpoch); err != nil {
		errors = append(errors, fmt.Sprintf("invalid cashflow epoch '%s': must be YYYY-MM-DD", c.CashflowEpoch))
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.GoogleSpreadsheetID != "" && c.GoogleSheetName == "" {
		errors = append(errors, "Google Sheet name is required when a spreadsheet ID is set")
	}

	if c.RefreshInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid refresh interval %v: must be at least 1 minute", c.RefreshInterval))
	} else if c.RefreshInterval > 7*24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid refresh interval %v: must be at most 7 days", c.RefreshInterval))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be debug, info, warn or error", c.LogLevel))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// Location returns the report time zone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.ReportTimezone)
}

// Epoch returns the default start of a cashflow report in loc.
func (c *Config) Epoch(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(epochLayout, c.CashflowEpoch, loc)
}

// PostgresURL returns DATABASE_URL, or the URL of the selected profile.
func (c *Config) PostgresURL() (string, error) {
	if c.DatabaseURL != "" {
		return c.DatabaseURL, nil
	}
	profiles, err := LoadProfiles(c.DBProfilesFile)
	if err != nil {
		return "", err
	}
	p, err := profiles.Select(c.DBProfile)
	if err != nil {
		return "", err
	}
	return p.URL(), nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvList splits a comma separated value, trimming blanks.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
