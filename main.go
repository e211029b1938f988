package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mahirjain10/savana-gateway/config"
	"github.com/mahirjain10/savana-gateway/internal/logging"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "savana",
		Short:        "Gateway and workers for actinia drain analyses",
		SilenceUsage: true,
	}
	root.AddCommand(
		newRunCommand("serve", "Run the HTTP gateway and websocket hub", (*App).Serve),
		newRunCommand("worker", "Run the queue workers", (*App).Work),
		newRunCommand("all", "Run the gateway and the workers in one process", runAll),
	)
	return root
}

func runAll(app *App, ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return app.Serve(ctx) })
	g.Go(func() error { return app.Work(ctx) })
	return g.Wait()
}

func newRunCommand(use, short string, run func(*App, context.Context) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			bootLogger := logrus.New()
			cfg, err := config.InitializeEnvs(bootLogger)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}

			app, err := NewApp(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			defer app.Close()

			logger.WithField("command", use).Info("application initialized successfully")
			return run(app, ctx)
		},
	}
}
