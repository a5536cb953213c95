package backend

import (
	"context"
	"log/slog"

	applog "adquisiciones/internal/log"
	"adquisiciones/internal/memory"
	"adquisiciones/internal/restclient"
	"adquisiciones/internal/storage"
)

type constructor func(ctx context.Context, cfg Config, logger *slog.Logger) (*Result, error)

var constructors = map[Type]constructor{
	REST:   newREST,
	SQLite: newSQLite,
	Memory: newMemory,
}

// Factory builds data sources.
type Factory struct {
	logger *slog.Logger
}

// NewFactory returns a Factory logging to logger, or slog.Default when nil.
func NewFactory(logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{logger: logger}
}

// CreateBackend validates cfg and builds the data source it names.
func (f *Factory) CreateBackend(ctx context.Context, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return constructors[cfg.Type](ctx, cfg, f.logger)
}

func newREST(_ context.Context, cfg Config, logger *slog.Logger) (*Result, error) {
	client := restclient.New(cfg.APIBaseURL, cfg.APITimeout)
	logger.Info("Using REST backend", applog.FieldComponent, applog.ComponentBackend, applog.FieldBackend, REST, "base_url", cfg.APIBaseURL, "timeout", cfg.APITimeout)
	return &Result{Backend: client}, nil
}

func newSQLite(_ context.Context, cfg Config, logger *slog.Logger) (*Result, error) {
	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath, cfg.DefaultActor)
	if err != nil {
		return nil, err
	}
	logger.Info("Using SQLite backend", applog.FieldComponent, applog.ComponentBackend, applog.FieldBackend, SQLite, "db_path", cfg.SQLiteDBPath)
	return &Result{Backend: repo, cleanup: repo.Close}, nil
}

func newMemory(_ context.Context, cfg Config, logger *slog.Logger) (*Result, error) {
	store, err := memory.NewFromFile(cfg.SeedFile)
	if err != nil {
		return nil, err
	}
	if cfg.DefaultActor != "" {
		store.Actor = cfg.DefaultActor
	}
	logger.Info("Using memory backend", applog.FieldComponent, applog.ComponentBackend, applog.FieldBackend, Memory, "seed_file", cfg.SeedFile)
	return &Result{Backend: store}, nil
}
