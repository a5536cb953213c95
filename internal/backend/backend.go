// Package backend selects and builds the record data source named by
// DATA_BACKEND.
package backend

import (
	"errors"
	"fmt"
	"time"

	"adquisiciones/internal/config"
	"adquisiciones/internal/ports"
)

// Type names a data source.
type Type string

const (
	REST   Type = config.BackendREST
	SQLite Type = config.BackendSQLite
	Memory Type = config.BackendMemory
)

// Types lists the supported data sources in documentation order.
func Types() []Type { return []Type{REST, SQLite, Memory} }

func (t Type) Valid() bool {
	_, ok := constructors[t]
	return ok
}

// Config carries the settings of every data source; only those of Type
// are read.
type Config struct {
	Type Type

	APIBaseURL string
	APITimeout time.Duration

	SQLiteDBPath string

	// SeedFile preloads the memory store; empty means start empty.
	SeedFile string

	// DefaultActor is recorded in history when a request carries no user.
	DefaultActor string
}

// FromAppConfig picks the backend settings out of the application config.
func FromAppConfig(app *config.Config) (Config, error) {
	if app == nil {
		return Config{}, errors.New("app config is nil")
	}
	cfg := Config{
		Type:         Type(app.DataBackend),
		APIBaseURL:   app.APIBaseURL,
		APITimeout:   app.APITimeout,
		SQLiteDBPath: app.SQLiteDBPath,
		SeedFile:     app.MemorySeedFile,
		DefaultActor: app.DefaultUser,
	}
	if !cfg.Type.Valid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %q", app.DataBackend)
	}
	return cfg, nil
}

// Validate checks the settings the selected data source needs.
func (c Config) Validate() error {
	switch c.Type {
	case REST:
		if c.APIBaseURL == "" {
			return errors.New("API_BASE_URL is required for the rest backend")
		}
	case SQLite:
		if c.SQLiteDBPath == "" {
			return errors.New("SQLITE_DB_PATH is required for the sqlite backend")
		}
	case Memory:
	default:
		return fmt.Errorf("invalid backend type: %q", c.Type)
	}
	return nil
}

// Result is a ready data source together with the function releasing it.
type Result struct {
	Backend ports.Backend
	cleanup func() error
}

// Close releases the data source. Safe on a nil Result.
func (r *Result) Close() error {
	if r == nil || r.cleanup == nil {
		return nil
	}
	return r.cleanup()
}
