package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/anortham/julie-go/internal/output"
	"github.com/anortham/julie-go/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [path]",
		Short: "Watch a directory and keep its index current",
		Long: `Run a full index, then watch the directory for changes and
reconcile each one (create/modify/delete/rename) into the store as it
happens. Ctrl+C stops watching.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			return runWatch(cmd.Context(), cmd, path)
		},
	}
	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, path string) error {
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
		return err
	}

	w, err := watcher.NewHybridWatcher(watcher.DefaultOptions())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := w.Start(ctx, a.root); err != nil {
		return err
	}
	defer w.Stop()

	out.Success("Watching for changes, press Ctrl+C to stop")

	for {
		select {
		case <-ctx.Done():
			return nil
		case batch, ok := <-w.Events():
			if !ok {
				return nil
			}
			for _, ev := range batch {
				if ev.Operation == watcher.OpGitignoreChange || ev.Operation == watcher.OpConfigChange {
					if err := idx.FullIndex(ctx, a.scanOptions()); err != nil {
						slog.Error("watch_rescan_failed", slog.String("error", err.Error()))
					}
					continue
				}
				if err := idx.HandleEvent(ctx, ev); err != nil {
					slog.Error("watch_event_failed",
						slog.String("path", ev.Path),
						slog.String("op", ev.Operation.String()),
						slog.String("error", err.Error()))
				}
			}
		case err, ok := <-w.Errors():
			if !ok {
				continue
			}
			slog.Warn("watch_error", slog.String("error", err.Error()))
		}
	}
}
