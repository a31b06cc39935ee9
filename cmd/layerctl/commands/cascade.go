package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/layerkit/layerkit/pkg/config"
	"github.com/layerkit/layerkit/pkg/layer"
)

type cascadeOutput struct {
	Layer   string             `json:"layer"`
	Ban     []config.Control   `json:"ban"`
	Root    layer.NodeConfig   `json:"root"`
	Entries []layer.NodeConfig `json:"entries"`
}

func newCascadeCommand() *cobra.Command {
	var (
		layerID       string
		dynamicLayers bool
	)

	cmd := &cobra.Command{
		Use:   "cascade <file>",
		Short: "Show the effective state and controls of a layer's entries",
		Long: `Resolve the state cascade of one layer: each entry inherits the state of
the layer root, then its controls are stripped of the ones the service
cannot support.

--dynamic-layers tells the cascade the service supports dynamic layers,
which keeps per-entry opacity.`,
		Example: `  layerctl cascade layers.yaml --layer hydro
  layerctl cascade layers.yaml --layer hydro --dynamic-layers --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := config.Load(args[0])
			if err != nil {
				return err
			}
			cfg, ok := f.Layer(layerID)
			if !ok {
				return fmt.Errorf("layer %q not found in %s", layerID, args[0])
			}

			c := layer.NewCascade(cfg, dynamicLayers)
			out := cascadeOutput{
				Layer:   cfg.ID,
				Ban:     c.Ban(),
				Root:    c.Root(),
				Entries: c.Entries(cfg),
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), out)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "layer %s (ban: %s)\n", out.Layer, joinControls(out.Ban))
			printNode(w, "root", out.Root)
			for _, n := range out.Entries {
				printNode(w, n.ID, n)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&layerID, "layer", "", "layer id")
	cmd.Flags().BoolVar(&dynamicLayers, "dynamic-layers", false, "the service supports dynamic layers")
	_ = cmd.MarkFlagRequired("layer")

	return cmd
}

func printNode(w io.Writer, label string, n layer.NodeConfig) {
	fmt.Fprintf(w, "  %-6s visible=%-5t opacity=%.2f query=%-5t controls=[%s]\n",
		label, n.State.IsVisible(), n.State.OpacityValue(), n.State.IsQueryable(), joinControls(n.Controls))
}

func joinControls(cs []config.Control) string {
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = string(c)
	}
	return strings.Join(parts, ",")
}
