package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/anortham/julie-go/internal/output"
)

func newEmbedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "embed",
		Short: "Manage symbol embeddings",
	}
	cmd.AddCommand(newEmbedBackfillCmd())
	return cmd
}

func newEmbedBackfillCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Embed every symbol missing a vector and rebuild the HNSW index",
		Long: `Run one pass of the background embedding pipeline: embed
every symbol without a stored vector in bounded-concurrency batches,
then rebuild and save the HNSW index from everything now stored.

Stops early if the embedding circuit breaker trips (sustained failures
or a majority-failing run past the warm-up window).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEmbedBackfill(cmd.Context(), cmd)
		},
	}
	return cmd
}

func runEmbedBackfill(ctx context.Context, cmd *cobra.Command) error {
	a, err := newApp(".")
	if err != nil {
		return err
	}

	s, err := a.openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	vs, err := a.newVectorStore()
	if err != nil {
		return err
	}
	defer vs.Close()

	out := output.New(cmd.OutOrStdout())
	out.Status("🧠", "Embedding pending symbols...")

	gen := a.newGenerator(s, vs)
	if err := gen.Run(ctx); err != nil {
		out.Errorf("embedding backfill failed: %v", err)
		return err
	}

	out.Successf("Embedding backfill complete, semantic search ready: %v", gen.IsSemanticReady())
	return nil
}
