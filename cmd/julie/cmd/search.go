package cmd

import (
	"context"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/anortham/julie-go/internal/output"
	"github.com/anortham/julie-go/internal/store"
	"github.com/anortham/julie-go/internal/telemetry"
)

func newSearchCmd() *cobra.Command {
	var (
		limit   int
		symbols bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search indexed file content and symbols",
		Long: `Run a full-text search over indexed file content by default,
or over symbol names with --symbols.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, strings.Join(args, " "), limit, symbols)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().BoolVar(&symbols, "symbols", false, "Search symbol names instead of file content")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, limit int, symbols bool) error {
	a, err := newApp(".")
	if err != nil {
		return err
	}

	s, err := a.openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	qm, err := a.newQueryMetrics(s)
	if err != nil {
		return err
	}
	defer qm.Close()

	out := output.New(cmd.OutOrStdout())
	start := time.Now()

	if symbols {
		results, err := s.SearchSymbolsFTS(ctx, query, limit)
		if err != nil {
			return err
		}
		qm.Record(telemetry.QueryEvent{
			Query: query, QueryType: telemetry.QueryTypeLexical,
			ResultCount: len(results), Latency: time.Since(start), Timestamp: start,
		})
		if len(results) == 0 {
			out.Status("", "No matching symbols")
			return nil
		}
		for _, sym := range results {
			out.Statusf("", "%s  %s  %s:%d", sym.Kind, sym.Name, sym.FilePath, sym.Span.StartLine)
		}
		return nil
	}

	results, err := s.SearchFileContentFTS(ctx, query, limit, store.DefaultRankWeights())
	if err != nil {
		return err
	}
	qm.Record(telemetry.QueryEvent{
		Query: query, QueryType: telemetry.QueryTypeLexical,
		ResultCount: len(results), Latency: time.Since(start), Timestamp: start,
	})
	if len(results) == 0 {
		out.Status("", "No matching files")
		return nil
	}
	for _, r := range results {
		out.Statusf("", "%.3f  %s", r.Score, r.Path)
	}
	return nil
}
