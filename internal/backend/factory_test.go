package backend

import (
	"context"
	"path/filepath"
	"testing"

	_ "time/tzdata"

	"settleflow/internal/config"
	"settleflow/internal/log"
)

func TestCreateBackend(t *testing.T) {
	ctx := context.Background()
	f := NewFactory(log.Discard())

	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{name: "memory", config: Config{Type: MemoryBackend}},
		{name: "sqlite", config: Config{Type: SQLiteBackend, SQLiteDBPath: filepath.Join(t.TempDir(), "db", "s.db")}},
		{name: "sqlite without path", config: Config{Type: SQLiteBackend}, wantErr: true},
		{name: "postgres without url", config: Config{Type: PostgresBackend}, wantErr: true},
		{name: "unknown", config: Config{Type: "sheets"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.CreateBackend(ctx, tt.config)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CreateBackend() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			defer res.Close()
			if err := res.Backend.Ping(ctx); err != nil {
				t.Errorf("Ping() error = %v", err)
			}
			if exists, err := res.Backend.SettlementExists(ctx, 1); err != nil || exists {
				t.Errorf("SettlementExists() = %v, %v on an empty store", exists, err)
			}
		})
	}
}

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Error("nil config must fail")
	}

	cfg, err := FromAppConfig(&config.Config{DataBackend: "sqlite", SQLiteDBPath: "./x.db"})
	if err != nil {
		t.Fatalf("FromAppConfig() error = %v", err)
	}
	if cfg.Type != SQLiteBackend || cfg.SQLiteDBPath != "./x.db" {
		t.Errorf("FromAppConfig() = %+v", cfg)
	}

	cfg, err = FromAppConfig(&config.Config{DataBackend: "postgres", DatabaseURL: "postgres://db/settleflow"})
	if err != nil {
		t.Fatalf("FromAppConfig() error = %v", err)
	}
	if cfg.PostgresURL != "postgres://db/settleflow" {
		t.Errorf("PostgresURL = %s", cfg.PostgresURL)
	}

	if _, err := FromAppConfig(&config.Config{DataBackend: "postgres"}); err == nil {
		t.Error("postgres without url or profile must fail")
	}
	if _, err := FromAppConfig(&config.Config{DataBackend: "csv"}); err == nil {
		t.Error("unknown backend must fail")
	}

	cfg, err = FromAppConfig(&config.Config{DataBackend: "memory", ReportTimezone: "Europe/Berlin"})
	if err != nil {
		t.Fatalf("FromAppConfig() error = %v", err)
	}
	if cfg.Location == nil || cfg.Location.String() != "Europe/Berlin" {
		t.Errorf("Location = %v, want Europe/Berlin", cfg.Location)
	}
	if _, err := FromAppConfig(&config.Config{DataBackend: "memory", ReportTimezone: "Mars/Olympus"}); err == nil {
		t.Error("unknown report timezone must fail")
	}
}

func TestGetBackendTypeStrings(t *testing.T) {
	got := GetBackendTypeStrings()
	if len(got) != 3 || got[0] != "sqlite" || got[1] != "postgres" || got[2] != "memory" {
		t.Errorf("GetBackendTypeStrings() = %v", got)
	}
}
