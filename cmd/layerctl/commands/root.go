package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	return newRootCommand(version, commit, buildDate).ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "layerctl",
		Short: "Inspect and exercise map layer configurations",
		Long: `layerctl works with the layer configuration files consumed by the layer core.

It can validate and watch config files, show the effective state cascade of
a layer, query feature counts from map servers, evaluate scale ranges and
read the state journal.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")

	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newWatchCommand())
	rootCmd.AddCommand(newCascadeCommand())
	rootCmd.AddCommand(newCountCommand())
	rootCmd.AddCommand(newOffscaleCommand())
	rootCmd.AddCommand(newJournalCommand())
	rootCmd.AddCommand(newLegendCommand())

	return rootCmd
}

func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
