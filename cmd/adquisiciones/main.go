package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"adquisiciones/internal/cli"
	apphttp "adquisiciones/internal/http"
	applog "adquisiciones/internal/log"
)

func main() {
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		applog.New(applog.DefaultConfig()).Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}

	logger := cli.SetupLogger(cfg, applog.ComponentApp)
	logger.Info("Starting adquisiciones",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"locale", cfg.Locale)

	app, err := cli.InitApp(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize application", applog.FieldError, err)
		os.Exit(1)
	}

	srv, err := apphttp.NewServer(":"+cfg.Port, app.Service, apphttp.Options{
		Logger:             logger,
		Locale:             cfg.Locale,
		TrustedProxies:     cfg.TrustedProxies,
		CacheSweepInterval: 10 * time.Minute,
	})
	if err != nil {
		logger.Error("Failed to create HTTP server", applog.FieldError, err)
		_ = app.Close()
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, 10*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("HTTP server shutdown failed", applog.FieldError, err)
		}
		if err := app.Close(); err != nil {
			logger.Error("Failed to release resources", applog.FieldError, err)
		}
	})

	logger.Info("HTTP server listening", "addr", srv.Addr, "export", app.Service.CanExport())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("HTTP server failed", applog.FieldError, err)
		_ = app.Close()
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
