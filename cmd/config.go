package cmd

import (
	"fmt"
	"maps"
	"os"
	"slices"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/ollama/minbpe/envconfig"
)

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show effective settings",
		Long:  "Show settings resolved from the environment and the config file.",
		Args:  cobra.NoArgs,
		RunE:  configHandler,
	}

	cmd.Flags().Bool("example", false, "Print an example config file")
	return cmd
}

func configHandler(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	if example, _ := cmd.Flags().GetBool("example"); example {
		fmt.Fprint(out, envconfig.GenerateExampleConfig())
		return nil
	}

	vals := envconfig.Values()
	var data [][]string
	for _, k := range slices.Sorted(maps.Keys(vals)) {
		data = append(data, []string{k, vals[k]})
	}

	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"NAME", "VALUE"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()

	fmt.Fprintln(out, "\nConfig files:")
	for _, path := range envconfig.GetConfigPaths() {
		status := "not found"
		if _, err := os.Stat(path); err == nil {
			status = "found"
		}
		fmt.Fprintf(out, "    %s (%s)\n", path, status)
	}

	return nil
}
