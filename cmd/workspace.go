package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// workspaceCmd represents the workspace command group
var workspaceCmd = &cobra.Command{
	Use:   "workspace",
	Short: "Manage the selected workspace",
	Long: `Manage the workspace (project) used as the default filter for list and
graph. The selection is stored per server next to the credentials.

Examples:
  mnemo workspace use 9b2d5d0e-8f43-4c5e-a3f1-1d1a3c1f6a77
  mnemo workspace show
  mnemo workspace clear`,
}

var workspaceUseCmd = &cobra.Command{
	Use:   "use <project-uuid>",
	Short: "Select a workspace",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkspaceUse,
}

var workspaceShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the selected workspace",
	Args:  cobra.NoArgs,
	RunE:  runWorkspaceShow,
}

var workspaceClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget the selected workspace",
	Args:  cobra.NoArgs,
	RunE:  runWorkspaceClear,
}

func init() {
	rootCmd.AddCommand(workspaceCmd)
	workspaceCmd.AddCommand(workspaceUseCmd)
	workspaceCmd.AddCommand(workspaceShowCmd)
	workspaceCmd.AddCommand(workspaceClearCmd)
}

func runWorkspaceUse(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid workspace id %q: must be a UUID", args[0])
	}

	rt, err := newRuntime()
	if err != nil {
		return err
	}
	if err := rt.store.SetWorkspace(id.String()); err != nil {
		return fmt.Errorf("failed to save workspace: %w", err)
	}
	authPrint("Using workspace %s\n", id)
	return nil
}

func runWorkspaceShow(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	if ws := rt.store.Workspace(); ws != "" {
		fmt.Fprintln(cmd.OutOrStdout(), ws)
		return nil
	}
	authPrintln("No workspace selected")
	return nil
}

func runWorkspaceClear(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	if err := rt.store.ClearWorkspace(); err != nil {
		return fmt.Errorf("failed to clear workspace: %w", err)
	}
	authPrintln("Workspace cleared")
	return nil
}
