// Package cli provides common CLI initialization utilities shared by
// cmd/adquisiciones, cmd/adquisiciones-worker and cmd/adqctl.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"adquisiciones/internal/amqp"
	"adquisiciones/internal/backend"
	"adquisiciones/internal/config"
	"adquisiciones/internal/export/gsheets"
	applog "adquisiciones/internal/log"
	"adquisiciones/internal/services"
)

// SetupLogger initializes structured logging from the configuration and
// sets it as the default logger.
func SetupLogger(cfg *config.Config, component string) *applog.Logger {
	logger := applog.New(applog.Config{
		Level:     applog.ParseLevel(cfg.LogLevel),
		Format:    cfg.LogFormat,
		Component: component,
		Output:    os.Stdout,
	})
	applog.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
func LoadAndValidateConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// App bundles the record service with the resources it holds open.
type App struct {
	Service *services.RecordService
	// AMQP is nil when AMQP_URL is not set.
	AMQP    *amqp.Client
	closers []func() error
}

// Close releases every resource in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// InitApp creates the configured backend, the optional AMQP client and
// sheets exporter, and the record service on top of them. A failing AMQP
// connection is logged and leaves events disabled.
func InitApp(ctx context.Context, cfg *config.Config, logger *applog.Logger) (*App, error) {
	app := &App{}

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger.Logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, fmt.Errorf("create %s backend: %w", bcfg.Type, err)
	}
	app.closers = append(app.closers, res.Close)

	opts := services.Options{
		PreviewSize:  cfg.PreviewSize,
		PageSize:     cfg.PageSize,
		SnapshotTTL:  cfg.SnapshotTTL,
		DefaultActor: cfg.DefaultUser,
	}

	if cfg.AMQPEnabled() {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, record events disabled", applog.FieldError, err)
		} else {
			app.AMQP = client
			opts.Publisher = client
			app.closers = append(app.closers, client.Close)
			logger.Info("AMQP client connected", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	if cfg.ExportEnabled() {
		exporter, err := gsheets.New(ctx, gsheets.Config{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			SheetName:       cfg.GoogleSheetName,
			CredentialsJSON: cfg.GoogleServiceAccountJSON,
			CredentialsFile: cfg.GoogleServiceAccountFile,
		})
		if err != nil {
			_ = app.Close()
			return nil, fmt.Errorf("google sheets exporter: %w", err)
		}
		opts.Exporter = exporter
	}

	app.Service = services.NewRecordService(res.Backend, opts)
	return app, nil
}

// GracefulShutdown returns a context cancelled on SIGINT or SIGTERM. The
// cleanup function runs with a context bounded by timeout once a signal arrives.
func GracefulShutdown(logger *applog.Logger, timeout time.Duration, cleanup func(context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		cancel()
		if cleanup != nil {
			cleanup(shutdownCtx)
		}
		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
		} else {
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup finished.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
