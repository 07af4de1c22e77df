package backend

import (
	"fmt"

	"settleflow/internal/config"
)

// FromAppConfig converts the application config to backend config.
// For postgres the URL is resolved here, from DATABASE_URL or the selected profile.
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}

	loc, err := appConfig.Location()
	if err != nil {
		return Config{}, fmt.Errorf("invalid report timezone: %w", err)
	}
	cfg := Config{
		Type:         backendType,
		SQLiteDBPath: appConfig.SQLiteDBPath,
		Location:     loc,
	}
	if backendType == PostgresBackend {
		url, err := appConfig.PostgresURL()
		if err != nil {
			return Config{}, fmt.Errorf("resolve postgres connection: %w", err)
		}
		cfg.PostgresURL = url
	}
	return cfg, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}

	switch c.Type {
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return fmt.Errorf("SQLite database path is required for sqlite backend")
		}
	case PostgresBackend:
		if c.PostgresURL == "" {
			return fmt.Errorf("connection URL is required for postgres backend")
		}
	case MemoryBackend:
		// nothing to configure
	}

	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{SQLiteBackend, PostgresBackend, MemoryBackend}
}

// GetBackendTypeStrings returns all valid backend type strings
func GetBackendTypeStrings() []string {
	types := GetBackendTypes()
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = t.String()
	}
	return out
}
