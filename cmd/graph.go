package cmd

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"mnemo/internal/formatting"
)

var graphProject string

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Show the entity relationship graph of a project",
	Long: `Show the nodes and edges of a project's relationship graph.

The selected workspace is used unless --project is given.`,
	Args: cobra.NoArgs,
	RunE: runGraph,
}

func init() {
	rootCmd.AddCommand(graphCmd)

	graphCmd.Flags().StringVar(&graphProject, "project", "", "Project ID (default: selected workspace)")
	graphCmd.Flags().StringVarP(&outputFormat, "output", "o", "table", "Output format: table, json or yaml")
}

func runGraph(cmd *cobra.Command, args []string) error {
	format, err := formatting.ParseFormat(outputFormat)
	if err != nil {
		return err
	}

	rt, err := newRuntime()
	if err != nil {
		return err
	}
	m, _, err := requireSession(cmd.Context(), rt)
	if err != nil {
		return err
	}
	defer m.Close()

	project := graphProject
	if project == "" {
		project = rt.store.Workspace()
	}
	graph, err := rt.api.Graph(cmd.Context(), project)
	if err != nil {
		return apiError(rt, err)
	}

	out := cmd.OutOrStdout()
	if format == formatting.FormatJSON {
		fmt.Fprintln(out, formatting.PrettyJSON(graph))
		return nil
	}

	formatter, err := formatting.New(formatting.Options{Format: format})
	if err != nil {
		return err
	}
	authPrintln(text.FgHiBlue.Sprint("Nodes"))
	if err := formatter.FormatRecords(out, graph.Nodes); err != nil {
		return err
	}
	authPrintln(text.FgHiBlue.Sprint("\nEdges"))
	return formatter.FormatRecords(out, graph.Edges)
}
