// Package cmd provides the CLI commands for julie.
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/anortham/julie-go/internal/logging"
	"github.com/anortham/julie-go/pkg/version"
)

var debugMode bool

// NewRootCmd creates the root command for the julie CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "julie",
		Short: "Local-first code intelligence substrate",
		Long: `Julie extracts symbols from a codebase, keeps them current as
files change, and answers structural and semantic queries over them —
hybrid search, cross-language call tracing, and similarity lookup,
entirely on disk with no external service required.`,
		Version:       version.Short(),
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.SetVersionTemplate("julie version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to "+logging.DefaultLogPath())
	cmd.PersistentPreRunE = setupLogging

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newTraceCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newEmbedCmd())
	cmd.AddCommand(newWorkspaceCmd())
	cmd.AddCommand(newServeMetricsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

var loggingCleanup func()

func setupLogging(*cobra.Command, []string) error {
	cfg := logging.DefaultConfig()
	if debugMode {
		cfg = logging.DebugConfig()
	}
	logger, cleanup, err := logging.Setup(cfg)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	loggingCleanup = cleanup
	return nil
}

// Execute runs the root command.
func Execute() error {
	defer func() {
		if loggingCleanup != nil {
			loggingCleanup()
		}
	}()
	return NewRootCmd().Execute()
}
