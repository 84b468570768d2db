package cmd

import (
	"context"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/anortham/julie-go/internal/hashpath"
	"github.com/anortham/julie-go/internal/output"
	"github.com/anortham/julie-go/internal/store"
)

func newWorkspaceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workspace",
		Short: "Manage registered workspaces",
		Long:  `A workspace is one project root with its own index database under .julie/.`,
	}
	cmd.AddCommand(newWorkspaceListCmd())
	cmd.AddCommand(newWorkspaceAddCmd())
	cmd.AddCommand(newWorkspaceRemoveCmd())
	return cmd
}

func newWorkspaceListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered workspaces",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWorkspaceList(cmd.Context(), cmd)
		},
	}
}

func newWorkspaceAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <path>",
		Short: "Register a directory as a workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkspaceAdd(cmd.Context(), cmd, args[0])
		},
	}
}

func newWorkspaceRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Unregister a workspace by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkspaceRemove(cmd.Context(), cmd, args[0])
		},
	}
}

func runWorkspaceList(ctx context.Context, cmd *cobra.Command) error {
	a, err := newApp(".")
	if err != nil {
		return err
	}
	s, err := a.openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	workspaces, err := s.ListWorkspaces(ctx)
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	if len(workspaces) == 0 {
		out.Status("", "No registered workspaces")
		return nil
	}
	for _, ws := range workspaces {
		out.Statusf("", "%s  %s  (registered %s)", ws.ID, ws.Root, ws.CreatedAt.Format("2006-01-02"))
	}
	return nil
}

func runWorkspaceAdd(ctx context.Context, cmd *cobra.Command, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	a, err := newApp(abs)
	if err != nil {
		return err
	}
	s, err := a.openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	id := workspaceID(abs)
	if err := s.RegisterWorkspace(ctx, &store.Workspace{ID: id, Root: abs}); err != nil {
		return err
	}

	output.New(cmd.OutOrStdout()).Successf("Registered workspace %s at %s", id, abs)
	return nil
}

func runWorkspaceRemove(ctx context.Context, cmd *cobra.Command, id string) error {
	a, err := newApp(".")
	if err != nil {
		return err
	}
	s, err := a.openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.RemoveWorkspace(ctx, id); err != nil {
		return err
	}

	output.New(cmd.OutOrStdout()).Successf("Removed workspace %s", id)
	return nil
}

// workspaceID derives a stable id from the workspace root so `workspace
// add` is idempotent when re-run against the same path.
func workspaceID(absRoot string) string {
	return "ws-" + hashpath.HashBytes([]byte(absRoot))
}
