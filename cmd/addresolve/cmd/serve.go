package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/addresolve/internal/logging"
	"github.com/Aman-CERP/addresolve/internal/mcp"
)

func newServeCmd() *cobra.Command {
	var transport string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the Model Context Protocol server over stdio.

stdout carries JSON-RPC only; logs go to ~/.addresolve/logs/addresolve.log
(or logging.file).

Tools: resolve_addresses, parse_address, resolver_stats.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), transport)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "", "Transport: stdio (default from config)")

	return cmd
}

func runServe(ctx context.Context, transport string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if transport == "" {
		transport = cfg.Server.Transport
	}

	level := cfg.Logging.Level
	if debugMode {
		level = "debug"
	}
	cleanup, err := logging.SetupServeMode(logging.Config{
		Level:     level,
		FilePath:  cfg.Logging.File,
		MaxSizeMB: cfg.Logging.MaxSizeMB,
		MaxFiles:  cfg.Logging.MaxFiles,
	})
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, cfg)
	if err != nil {
		slog.Error("serve_startup_failed", slog.String("error", err.Error()))
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			slog.Warn("close_failed", slog.String("error", cerr.Error()))
		}
	}()

	srv, err := mcp.NewServer(a.engine, cfg)
	if err != nil {
		return err
	}
	srv.SetMetrics(a.metrics)
	srv.SetCacheReporter(a.set)

	slog.Info("serve_ready",
		slog.Any("providers", a.engine.Providers()),
		slog.String("strategy", cfg.Resolver.Strategy))

	err = srv.Serve(ctx, transport)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
