package cmd

import (
	"github.com/spf13/cobra"

	"mnemo/internal/api"
)

var getTemplate string

// getCmd represents the get command
var getCmd = &cobra.Command{
	Use:   "get <resource> <id>",
	Short: "Show one record",
	Long: `Show a single record by ID.

Examples:
  mnemo get memories 7f3c
  mnemo get projects 12 -o yaml`,
	Args:              cobra.ExactArgs(2),
	ValidArgsFunction: completeResources,
	RunE:              runGet,
}

func init() {
	rootCmd.AddCommand(getCmd)

	getCmd.Flags().StringVar(&getTemplate, "template", "", "Render the record with a Go template")
	getCmd.Flags().StringVarP(&outputFormat, "output", "o", "table", "Output format: table, json or yaml")
}

func runGet(cmd *cobra.Command, args []string) error {
	resource, err := api.ParseResource(args[0])
	if err != nil {
		return err
	}
	formatter, err := newFormatter(getTemplate)
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

	record, err := rt.api.Get(cmd.Context(), resource, args[1])
	if err != nil {
		return apiError(rt, err)
	}
	return formatter.FormatRecord(cmd.OutOrStdout(), record)
}
