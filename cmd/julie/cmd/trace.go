package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/anortham/julie-go/internal/output"
	"github.com/anortham/julie-go/internal/query"
	"github.com/anortham/julie-go/internal/store"
	"github.com/anortham/julie-go/internal/telemetry"
)

func newTraceCmd() *cobra.Command {
	var (
		direction string
		maxDepth  int
		budget    int
	)

	cmd := &cobra.Command{
		Use:   "trace <symbol>",
		Short: "Trace callers/callees of a symbol",
		Long: `Trace the call graph reachable from a symbol: its callers
(upstream), its callees (downstream), or both. A symbol may be named
either by its ID or by its unqualified name; the first FTS match wins
when a name is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(cmd.Context(), cmd, args[0], direction, maxDepth, budget)
		},
	}

	cmd.Flags().StringVar(&direction, "direction", "both", "upstream, downstream, or both")
	cmd.Flags().IntVar(&maxDepth, "depth", 5, "Maximum trace depth")
	cmd.Flags().IntVar(&budget, "budget", 4000, "Approximate token budget for the rendered trace")

	return cmd
}

func runTrace(ctx context.Context, cmd *cobra.Command, symbolRef, direction string, maxDepth, budget int) error {
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

	qm, err := a.newQueryMetrics(s)
	if err != nil {
		return err
	}
	defer qm.Close()

	symbolID, err := resolveSymbol(ctx, s, symbolRef)
	if err != nil {
		return err
	}

	start := time.Now()
	tracer := query.NewTracer(s, vs)
	result, err := tracer.Trace(ctx, symbolID, query.Direction(direction), maxDepth)
	if err != nil {
		return err
	}
	// Mixed: expand() always combines relationship/identifier direct edges
	// with naming-variant generation, plus an optional semantic/HNSW bridge.
	qm.Record(telemetry.QueryEvent{
		Query: symbolRef, QueryType: telemetry.QueryTypeMixed,
		ResultCount: result.TotalNodes, Latency: time.Since(start), Timestamp: start,
	})

	out := output.New(cmd.OutOrStdout())
	out.Code(query.RenderTrace(result, budget))
	return nil
}

// resolveSymbol accepts either a symbol ID or an unqualified name and
// returns a concrete symbol ID, preferring an exact ID lookup before
// falling back to the first name match.
func resolveSymbol(ctx context.Context, s *store.Store, ref string) (string, error) {
	if sym, err := s.GetSymbolByID(ctx, ref); err == nil && sym != nil {
		return sym.ID, nil
	}
	matches, err := s.FindSymbolsByName(ctx, ref, 1)
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no symbol found matching %q", ref)
	}
	return matches[0].ID, nil
}
