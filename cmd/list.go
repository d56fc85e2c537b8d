package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"mnemo/internal/api"
	"mnemo/internal/formatting"
)

var (
	listLimit    int
	listOffset   int
	listProject  string
	listTemplate string
	outputFormat string
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list <resource>",
	Short: "List records of a resource",
	Long: `List records of one of the server's collections.

Resources: memories, entities, documents, code-artifacts, projects.
Singular names (memory, entity, ...) are accepted too.

The selected workspace (see 'mnemo workspace') is used as the project filter
unless --project is given. --template renders each record with Go's
text/template and the sprig function library.

Examples:
  mnemo list memories
  mnemo list entities --limit 50 --offset 50
  mnemo list documents -o json
  mnemo list memories --template '{{ .id }} {{ .title | upper }}'`,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeResources,
	RunE:              runList,
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().IntVar(&listLimit, "limit", 20, "Maximum number of records")
	listCmd.Flags().IntVar(&listOffset, "offset", 0, "Number of records to skip")
	listCmd.Flags().StringVar(&listProject, "project", "", "Project ID filter (default: selected workspace)")
	listCmd.Flags().StringVar(&listTemplate, "template", "", "Render each record with a Go template")
	listCmd.Flags().StringVarP(&outputFormat, "output", "o", "table", "Output format: table, json or yaml")
}

func completeResources(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return api.ResourceNames(), cobra.ShellCompDirectiveNoFileComp
}

func runList(cmd *cobra.Command, args []string) error {
	resource, err := api.ParseResource(args[0])
	if err != nil {
		return err
	}
	formatter, err := newFormatter(listTemplate)
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

	project := listProject
	if project == "" {
		project = rt.store.Workspace()
	}

	records, err := rt.api.List(cmd.Context(), resource, api.ListOptions{
		Limit:     listLimit,
		Offset:    listOffset,
		ProjectID: project,
	})
	if err != nil {
		return apiError(rt, err)
	}
	return formatter.FormatRecords(cmd.OutOrStdout(), records)
}

func newFormatter(tmpl string) (formatting.Formatter, error) {
	format, err := formatting.ParseFormat(outputFormat)
	if err != nil {
		return nil, err
	}
	return formatting.New(formatting.Options{Format: format, Template: tmpl})
}

// apiError turns a 401 from the API into the auth-required exit path. The
// session has already been signed out by the unauthorized signal.
func apiError(rt *runtime, err error) error {
	if api.IsUnauthorized(err) {
		return &AuthRequiredError{Server: rt.cfg.Server.URL}
	}
	if api.IsNotFound(err) {
		return fmt.Errorf("not found: %w", err)
	}
	return err
}
