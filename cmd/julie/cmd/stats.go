package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/anortham/julie-go/internal/output"
)

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show store statistics",
		Long:  `Display file, symbol, identifier, relationship and embedding counts for the current project's index.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStats(cmd.Context(), cmd)
		},
	}
	return cmd
}

func runStats(ctx context.Context, cmd *cobra.Command) error {
	a, err := newApp(".")
	if err != nil {
		return err
	}

	s, err := a.openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	stats, err := s.Stats(ctx)
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	out.Statusf("", "Files:         %d", stats.FileCount)
	out.Statusf("", "Symbols:       %d", stats.SymbolCount)
	out.Statusf("", "Identifiers:   %d", stats.IdentifierCount)
	out.Statusf("", "Relationships: %d", stats.RelationshipCount)
	out.Statusf("", "Embeddings:    %d", stats.EmbeddingCount)
	if stats.SkippedFKCount > 0 {
		out.Warningf("Skipped rows (dangling foreign keys): %d", stats.SkippedFKCount)
	}
	return nil
}
