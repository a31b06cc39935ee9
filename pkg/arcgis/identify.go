package arcgis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"github.com/layerkit/layerkit/pkg/config"
	"github.com/layerkit/layerkit/pkg/geo"
	"github.com/layerkit/layerkit/pkg/layer"
)

// errNoMap is returned when an identify request carries no map view.
var errNoMap = errors.New("arcgis: identify needs a map view")

type identifyResponse struct {
	Results []struct {
		LayerID    int            `json:"layerId"`
		LayerName  string         `json:"layerName"`
		Value      string         `json:"value"`
		Attributes map[string]any `json:"attributes"`
	} `json:"results"`
}

// Identifier runs the map server identify operation.
type Identifier struct {
	client *Client
}

var _ layer.ServerIdentifier = (*Identifier)(nil)

// NewIdentifier returns an identifier using client.
func NewIdentifier(client *Client) *Identifier {
	return &Identifier{client: client}
}

// Identify asks the map server behind l which features of opts.LayerIDs lie
// under the click, or within opts.Geometry when it is set. The ids are sent
// as an explicit list so sublayers the caller filtered out stay out.
func (id *Identifier) Identify(ctx context.Context, l layer.DynamicLayer, opts layer.IdentifyOptions) ([]layer.IdentifyHit, error) {
	if opts.Map == nil {
		return nil, errNoMap
	}
	params, err := identifyParams(opts)
	if err != nil {
		return nil, err
	}

	var resp identifyResponse
	endpoint := strings.TrimRight(l.URL(), "/") + "/identify"
	if err := id.client.GetJSON(ctx, endpoint, params, &resp); err != nil {
		return nil, err
	}

	hits := make([]layer.IdentifyHit, 0, len(resp.Results))
	for _, r := range resp.Results {
		hits = append(hits, layer.IdentifyHit{
			LayerID:    r.LayerID,
			Value:      r.Value,
			Attributes: r.Attributes,
		})
	}
	return hits, nil
}

func identifyParams(opts layer.IdentifyOptions) (url.Values, error) {
	m := opts.Map
	sr := m.SpatialReference()
	extent := m.Extent()

	geomType, geom, err := identifyGeometry(opts, sr)
	if err != nil {
		return nil, err
	}

	tolerance := opts.Tolerance
	if tolerance <= 0 {
		tolerance = config.DefaultTolerance
	}

	ids := make([]string, 0, len(opts.LayerIDs))
	for _, i := range opts.LayerIDs {
		ids = append(ids, strconv.Itoa(i))
	}

	width := m.WidthPx()
	height := width
	if extent.Width() > 0 {
		height = int(math.Round(float64(width) * extent.Height() / extent.Width()))
	}

	params := url.Values{
		"f":              {"json"},
		"geometry":       {geom},
		"geometryType":   {geomType},
		"sr":             {strconv.Itoa(wkid(sr))},
		"tolerance":      {strconv.Itoa(tolerance)},
		"mapExtent":      {bboxString(extent.Bound)},
		"imageDisplay":   {fmt.Sprintf("%d,%d,96", width, height)},
		"layers":         {"all:" + strings.Join(ids, ",")},
		"returnGeometry": {"false"},
	}
	return params, nil
}

func identifyGeometry(opts layer.IdentifyOptions, sr geo.SpatialReference) (string, string, error) {
	srJSON := map[string]int{"wkid": wkid(sr)}
	switch g := opts.Geometry.(type) {
	case nil:
		p := opts.Click.MapPoint.Point
		b, err := json.Marshal(map[string]any{"x": p[0], "y": p[1], "spatialReference": srJSON})
		return "esriGeometryPoint", string(b), err
	case orb.Point:
		b, err := json.Marshal(map[string]any{"x": g[0], "y": g[1], "spatialReference": srJSON})
		return "esriGeometryPoint", string(b), err
	case orb.Bound:
		b, err := json.Marshal(map[string]any{
			"xmin": g.Min[0], "ymin": g.Min[1], "xmax": g.Max[0], "ymax": g.Max[1],
			"spatialReference": srJSON,
		})
		return "esriGeometryEnvelope", string(b), err
	case orb.Polygon:
		rings := make([][][2]float64, 0, len(g))
		for _, ring := range g {
			pts := make([][2]float64, 0, len(ring))
			for _, p := range ring {
				pts = append(pts, [2]float64(p))
			}
			rings = append(rings, pts)
		}
		b, err := json.Marshal(map[string]any{"rings": rings, "spatialReference": srJSON})
		return "esriGeometryPolygon", string(b), err
	default:
		return "", "", fmt.Errorf("arcgis: unsupported identify geometry %s", g.GeoJSONType())
	}
}

func wkid(sr geo.SpatialReference) int {
	if sr.LatestWKID != 0 {
		return sr.LatestWKID
	}
	return sr.WKID
}

func bboxString(b orb.Bound) string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return strings.Join([]string{f(b.Min[0]), f(b.Min[1]), f(b.Max[0]), f(b.Max[1])}, ",")
}
