package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/layerkit/layerkit/pkg/arcgis"
	"github.com/layerkit/layerkit/pkg/geo"
	"github.com/layerkit/layerkit/pkg/layer"
	"github.com/layerkit/layerkit/pkg/ogc"
)

// serviceLayer stands in for an engine layer when only the url matters.
type serviceLayer struct{ url string }

func (l serviceLayer) ID() string                             { return l.url }
func (l serviceLayer) Name() string                           { return l.url }
func (l serviceLayer) URL() string                            { return l.url }
func (l serviceLayer) Visible() bool                          { return true }
func (l serviceLayer) SetVisibility(bool)                     {}
func (l serviceLayer) Opacity() float64                       { return 1 }
func (l serviceLayer) SetOpacity(float64)                     {}
func (l serviceLayer) ScaleSet() layer.ScaleSet               { return layer.ScaleSet{} }
func (l serviceLayer) FullExtent() geo.Extent                 { return geo.Extent{} }
func (l serviceLayer) SpatialReference() geo.SpatialReference { return geo.SpatialReference{} }
func (l serviceLayer) Graphics() []layer.Graphic              { return nil }
func (l serviceLayer) LayerInfos() []layer.WMSLayerInfo       { return nil }

func newLegendCommand() *cobra.Command {
	var (
		index     string
		wmsLayers []string
		version   string
		token     string
	)

	cmd := &cobra.Command{
		Use:   "legend <service-url>",
		Short: "Print the legend symbols of a map server sublayer or WMS layers",
		Long: `Fetch the legend of one map server sublayer, or with --wms build the
GetLegendGraphic urls of WMS layers.`,
		Example: `  layerctl legend https://example.com/arcgis/rest/services/Hydro/MapServer --index 3
  layerctl legend https://example.com/wms --wms RADAR --wms ALERTS`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			serviceURL := strings.TrimRight(args[0], "/")

			var items []layer.SymbologyItem
			if len(wmsLayers) > 0 {
				urls := ogc.NewClient(ogc.WithVersion(version)).LegendURLs(serviceLayer{url: serviceURL}, wmsLayers)
				for i, id := range wmsLayers {
					items = append(items, layer.SymbologyItem{Name: id, ImageURL: urls[i]})
				}
			} else {
				sym := arcgis.NewSymbology(arcgis.NewClient(arcgis.WithToken(token)))
				var err error
				items, err = sym.MapServerLegend(cmd.Context(), serviceURL, index)
				if err != nil {
					return err
				}
			}

			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), items)
			}
			for _, it := range items {
				ref := it.ImageURL
				if ref == "" {
					ref = fmt.Sprintf("<svg %d bytes>", len(it.SVGCode))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-30s %s\n", it.Name, ref)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&index, "index", "0", "map server sublayer index")
	cmd.Flags().StringSliceVar(&wmsLayers, "wms", nil, "WMS layer names")
	cmd.Flags().StringVar(&version, "wms-version", ogc.Version130, "WMS protocol version")
	cmd.Flags().StringVar(&token, "token", "", "service token")

	return cmd
}
