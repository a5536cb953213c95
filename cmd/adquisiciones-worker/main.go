package main

import (
	"context"
	"os"
	"time"

	"adquisiciones/internal/cli"
	applog "adquisiciones/internal/log"
	"adquisiciones/internal/services"
	"adquisiciones/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		applog.New(applog.DefaultConfig()).Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}

	logger := cli.SetupLogger(cfg, applog.ComponentWorker)
	logger.Info("Starting adquisiciones-worker",
		"backend", cfg.DataBackend,
		"export_interval", cfg.ExportInterval.String())

	app, err := cli.InitApp(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize application", applog.FieldError, err)
		os.Exit(1)
	}
	defer app.Close()

	if !app.Service.CanExport() {
		logger.Error("Worker requires GOOGLE_SPREADSHEET_ID and service account credentials")
		_ = app.Close()
		os.Exit(1)
	}

	processor := services.NewExportProcessor(app.Service, services.ExportProcessorConfig{
		Interval: cfg.ExportInterval,
		Debounce: 2 * time.Second,
	})

	// A nil *amqp.Client must not reach the interface, or the worker would
	// try to consume from it.
	var events worker.EventSource
	if app.AMQP != nil {
		events = app.AMQP
	} else {
		logger.Info("AMQP disabled, exporting on interval only")
	}
	w := worker.NewExportWorker(events, processor)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	if err := w.Run(ctx); err != nil {
		logger.Error("Worker stopped with error", applog.FieldError, err)
		_ = app.Close()
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}
