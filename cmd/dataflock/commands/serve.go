// Package commands implements the dataflock subcommands.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dataflock/dataflock/internal/config"
	"github.com/dataflock/dataflock/internal/observability"
	"github.com/dataflock/dataflock/internal/server"
	"github.com/dataflock/dataflock/pkg/kernel"
	"github.com/dataflock/dataflock/pkg/runner"
)

// NewServeCommand creates the serve subcommand.
func NewServeCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the dataflock server",
		Long:  `Start the HTTP server that hosts reactive computation environments.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runServe(configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")

	return cmd
}

func runServe(configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(cfg.Log.Level),
	}))

	registry := runner.NewRegistry(
		func() kernel.Kernel { return kernel.NewInterp() },
		runner.WithRegistryLogger(logger),
	)
	defer registry.Close()

	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(registry, metrics, logger, cfg.Server)

	return srv.Serve(ctx)
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
