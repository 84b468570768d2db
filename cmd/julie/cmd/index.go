package cmd

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/anortham/julie-go/internal/output"
)

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Index a directory",
		Long: `Walk a directory, extract symbols from every recognised source
file, and store the result for search and tracing.

Re-running index on an already-indexed directory only re-extracts files
whose bytes actually changed; unchanged files are skipped.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			return runIndex(cmd.Context(), cmd, path)
		},
	}
	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, path string) error {
	a, err := newApp(path)
	if err != nil {
		return err
	}

	s, err := a.openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	idx, err := a.newIndexer(s)
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	out.Statusf("📂", "Indexing %s", a.root)

	if err := idx.FullIndex(ctx, a.scanOptions()); err != nil {
		out.Errorf("indexing failed: %v", err)
		return err
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		return err
	}
	out.Successf("Indexed %d files, %d symbols, %d relationships",
		stats.FileCount, stats.SymbolCount, stats.RelationshipCount)
	slog.Info("index_complete",
		slog.String("root", a.root),
		slog.Int("files", stats.FileCount),
		slog.Int("symbols", stats.SymbolCount))
	return nil
}
