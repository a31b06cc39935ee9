package commands

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/layerkit/layerkit/pkg/arcgis"
	"github.com/layerkit/layerkit/pkg/layer"
)

func newCountCommand() *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "count <layer-url>",
		Short: "Query the feature count of a map server layer",
		Long: `Send the feature count query to a map server or feature server layer.

A failed attempt is retried once before the command gives up.`,
		Example: `  layerctl count https://example.com/arcgis/rest/services/Hydro/MapServer/3`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			layerURL := strings.TrimRight(args[0], "/")
			client := arcgis.NewClient(arcgis.WithToken(token))

			n, err := layer.QueryCount(cmd.Context(), client, layerURL, func(err error) {
				log.Warn().Err(err).Str("url", layerURL).Msg("Retrying feature count")
			})
			if err != nil {
				return fmt.Errorf("%s: %w", layer.MsgFeatureCount, err)
			}

			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"url": layerURL, "count": n})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d\n", n)
			return nil
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "service token")
	return cmd
}
