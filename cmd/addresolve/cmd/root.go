// Package cmd provides the CLI commands for addresolve.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	rerrors "github.com/Aman-CERP/addresolve/internal/errors"
	"github.com/Aman-CERP/addresolve/internal/logging"
	"github.com/Aman-CERP/addresolve/pkg/version"
)

// Global flags
var (
	debugMode      bool
	configFile     string
	loggingCleanup func()
)

// NewRootCmd creates the root command for addresolve CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "addresolve",
		Short: "Batch address resolution against stored, dictionary and geocoder providers",
		Long: `addresolve turns free-form postal addresses into canonical records.

Each address is split into a house part and a unit part (flat, office,
parking space, storeroom), searched against a priority-ordered list of
providers, and returned with the unit carried over.

Run 'addresolve serve' to expose the resolver to AI clients over MCP.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("addresolve version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.addresolve/logs/")
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "Use this config file instead of the user/project hierarchy")

	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRunE = stopLogging

	cmd.AddCommand(newResolveCmd())
	cmd.AddCommand(newParseCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newStoreCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startLogging enables debug file logging when --debug is set.
func startLogging(_ *cobra.Command, _ []string) error {
	if !debugMode {
		return nil
	}
	cleanup, err := logging.SetupDefault()
	if err != nil {
		return fmt.Errorf("failed to setup debug logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.Info("debug_logging_enabled",
		slog.String("log_file", logging.DefaultLogPath()),
		slog.String("version", version.Version))
	return nil
}

// stopLogging flushes and closes the debug log.
func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		slog.Info("debug_logging_stopped")
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command and prints errors with their hints.
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil {
		fmt.Fprint(os.Stderr, rerrors.FormatForCLI(err))
	}
	return err
}
