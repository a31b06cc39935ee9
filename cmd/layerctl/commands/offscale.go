package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/layerkit/layerkit/pkg/layer"
)

func newOffscaleCommand() *cobra.Command {
	var scale, minScale, maxScale float64

	cmd := &cobra.Command{
		Use:   "offscale",
		Short: "Evaluate a visible scale range at a map scale",
		Long: `Report whether a layer with the given scale range is off scale at a map
scale, and which way the map must zoom to bring it back. A zero bound leaves
the range open on that side.`,
		Example: `  # Layer visible between 1:500000 and 1:5000, map at 1:1000000
  layerctl offscale --scale 1000000 --min 500000 --max 5000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if scale <= 0 {
				return fmt.Errorf("--scale must be positive")
			}
			res := layer.OffScale(scale, layer.ScaleSet{MinScale: minScale, MaxScale: maxScale})
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), res)
			}

			w := cmd.OutOrStdout()
			switch {
			case !res.OffScale:
				fmt.Fprintln(w, "on scale")
			case res.ZoomIn:
				fmt.Fprintln(w, "off scale: zoom in")
			default:
				fmt.Fprintln(w, "off scale: zoom out")
			}
			return nil
		},
	}

	cmd.Flags().Float64Var(&scale, "scale", 0, "map scale denominator")
	cmd.Flags().Float64Var(&minScale, "min", 0, "layer minimum scale (0 for none)")
	cmd.Flags().Float64Var(&maxScale, "max", 0, "layer maximum scale (0 for none)")
	_ = cmd.MarkFlagRequired("scale")

	return cmd
}
