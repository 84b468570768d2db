package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/anortham/julie-go/internal/output"
	"github.com/anortham/julie-go/internal/telemetry"
)

func newServeMetricsCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve-metrics",
		Short: "Expose Prometheus metrics over HTTP",
		Long: `Start an HTTP server exposing /metrics in Prometheus
exposition format: bulk-store throughput, HNSW rebuild duration,
embedding circuit-breaker state, and indexed-file counts.

This is optional instrumentation, never required for indexing, watching,
or querying to function.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeMetrics(cmd.Context(), cmd, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:9090", "Address to listen on")
	return cmd
}

func runServeMetrics(ctx context.Context, cmd *cobra.Command, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", telemetry.Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	out := output.New(cmd.OutOrStdout())
	out.Statusf("📈", "Serving metrics on http://%s/metrics", addr)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		slog.Info("serve_metrics_stopping")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
