// Command adqctl inspects and maintains procurement records from the terminal
// using the same backend configuration as the web server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"adquisiciones/internal/cli"
	"adquisiciones/internal/config"
	applog "adquisiciones/internal/log"
	"adquisiciones/internal/stats"
)

var version = "dev"

// appOpener builds the application for a command run.
type appOpener func(ctx context.Context) (*cli.App, *config.Config, error)

// env is shared by every subcommand of a single invocation.
type env struct {
	open      appOpener
	app       *cli.App
	formatter *stats.Formatter
}

func openFromEnvironment(ctx context.Context) (*cli.App, *config.Config, error) {
	cli.LoadEnvFile()
	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger := cli.SetupLogger(cfg, applog.ComponentCLI)
	app, err := cli.InitApp(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return app, cfg, nil
}

func newRootCmd(open appOpener) *cobra.Command {
	e := &env{open: open}
	root := &cobra.Command{
		Use:           "adqctl",
		Short:         "Inspect and maintain procurement records",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			app, cfg, err := e.open(cmd.Context())
			if err != nil {
				return err
			}
			e.app = app
			e.formatter = stats.NewFormatter(cfg.Locale)
			return nil
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			if e.app == nil {
				return nil
			}
			return e.app.Close()
		},
	}

	root.AddCommand(
		statsCmd(e),
		listCmd(e),
		historyCmd(e),
		toggleCmd(e, false),
		toggleCmd(e, true),
		exportCmd(e),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(openFromEnvironment).ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
