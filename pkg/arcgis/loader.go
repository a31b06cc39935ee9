package arcgis

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/layerkit/layerkit/pkg/layer"
)

// DefaultPageSize is the record count requested per attribute page.
const DefaultPageSize = 1000

const featureLayerType = "Feature Layer"

// Loader builds attribute packages for service and file layers.
type Loader struct {
	client   *Client
	pageSize int
}

var _ layer.AttributeLoader = (*Loader)(nil)

// NewLoader returns a loader fetching pageSize records per request. A
// non-positive size uses DefaultPageSize.
func NewLoader(client *Client, pageSize int) *Loader {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Loader{client: client, pageSize: pageSize}
}

// LoadLayerAttribs lists the sublayer packages of l. Dynamic layers get one
// package per leaf sublayer, feature layers one for their own index, and file
// layers one package over their local graphics.
func (ld *Loader) LoadLayerAttribs(l layer.PhysicalLayer) *layer.AttributeBundle {
	bundle := &layer.AttributeBundle{Packages: make(map[string]layer.LayerPackage)}
	base := strings.TrimRight(l.URL(), "/")

	if base == "" {
		bundle.Indexes = []string{"0"}
		bundle.Packages["0"] = newLocalPackage(l.Graphics())
		return bundle
	}

	if dl, ok := l.(layer.DynamicLayer); ok {
		for _, info := range dl.LayerInfos() {
			if len(info.SubLayerIDs) > 0 {
				continue
			}
			idx := strconv.Itoa(info.ID)
			bundle.Indexes = append(bundle.Indexes, idx)
			bundle.Packages[idx] = ld.servicePackage(base + "/" + idx)
		}
		return bundle
	}

	idx := "0"
	if i := strings.LastIndex(base, "/"); i >= 0 {
		if _, err := strconv.Atoi(base[i+1:]); err == nil {
			idx = base[i+1:]
		}
	}
	bundle.Indexes = []string{idx}
	bundle.Packages[idx] = ld.servicePackage(base)
	return bundle
}

func (ld *Loader) servicePackage(layerURL string) *servicePackage {
	return &servicePackage{client: ld.client, url: layerURL, pageSize: ld.pageSize}
}

type wireRenderer struct {
	Type             string  `json:"type"`
	Label            string  `json:"label"`
	Field1           string  `json:"field1"`
	Field2           string  `json:"field2"`
	Field3           string  `json:"field3"`
	Field            string  `json:"field"`
	DefaultLabel     string  `json:"defaultLabel"`
	MinValue         float64 `json:"minValue"`
	UniqueValueInfos []struct {
		Value any    `json:"value"`
		Label string `json:"label"`
	} `json:"uniqueValueInfos"`
	ClassBreakInfos []layer.ClassBreakInfo `json:"classBreakInfos"`
}

type layerResponse struct {
	Type          string        `json:"type"`
	GeometryType  string        `json:"geometryType"`
	ObjectIDField string        `json:"objectIdField"`
	Fields        []layer.Field `json:"fields"`
	MinScale      float64       `json:"minScale"`
	MaxScale      float64       `json:"maxScale"`
	DrawingInfo   struct {
		Renderer *wireRenderer `json:"renderer"`
	} `json:"drawingInfo"`
}

type queryResponse struct {
	Features []struct {
		Attributes map[string]any `json:"attributes"`
	} `json:"features"`
	ExceededTransferLimit bool `json:"exceededTransferLimit"`
}

// servicePackage reads one service sublayer. It does no caching; the layer
// core memoizes its results.
type servicePackage struct {
	client   *Client
	url      string
	pageSize int
}

func (p *servicePackage) LayerData(ctx context.Context) (*layer.LayerData, error) {
	var resp layerResponse
	if err := p.client.GetJSON(ctx, p.url, url.Values{"f": {"json"}}, &resp); err != nil {
		return nil, fmt.Errorf("layer metadata of %s: %w", p.url, err)
	}

	ld := &layer.LayerData{
		Fields:           resp.Fields,
		OIDField:         resp.ObjectIDField,
		MinScale:         resp.MinScale,
		MaxScale:         resp.MaxScale,
		GeometryType:     resp.GeometryType,
		LayerType:        resp.Type,
		SupportsFeatures: resp.Type == featureLayerType,
	}
	if ld.OIDField == "" {
		for _, f := range resp.Fields {
			if f.Type == "esriFieldTypeOID" {
				ld.OIDField = f.Name
				break
			}
		}
	}
	if w := resp.DrawingInfo.Renderer; w != nil {
		ld.Renderer = w.renderer()
	}
	return ld, nil
}

func (p *servicePackage) Attribs(ctx context.Context) (*layer.AttributeData, error) {
	meta, err := p.LayerData(ctx)
	if err != nil {
		return nil, err
	}
	if !meta.SupportsFeatures {
		return &layer.AttributeData{Features: []layer.Graphic{}, OIDIndex: map[string]int{}}, nil
	}

	data := &layer.AttributeData{OIDIndex: make(map[string]int)}
	for offset := 0; ; offset += p.pageSize {
		params := url.Values{
			"where":             {"1=1"},
			"outFields":         {"*"},
			"returnGeometry":    {"false"},
			"resultOffset":      {strconv.Itoa(offset)},
			"resultRecordCount": {strconv.Itoa(p.pageSize)},
		}
		if meta.OIDField != "" {
			params.Set("orderByFields", meta.OIDField)
		}

		var page queryResponse
		if err := p.client.GetJSON(ctx, p.url+"/query", params, &page); err != nil {
			return nil, fmt.Errorf("attributes of %s: %w", p.url, err)
		}
		for _, f := range page.Features {
			if meta.OIDField != "" {
				data.OIDIndex[attrString(f.Attributes[meta.OIDField])] = len(data.Features)
			}
			data.Features = append(data.Features, layer.Graphic{Attributes: f.Attributes})
		}
		if !page.ExceededTransferLimit || len(page.Features) == 0 {
			break
		}
	}
	return data, nil
}

// localPackage serves the graphics of a file based layer.
type localPackage struct {
	graphics []layer.Graphic
}

func newLocalPackage(graphics []layer.Graphic) *localPackage {
	return &localPackage{graphics: graphics}
}

func (p *localPackage) LayerData(context.Context) (*layer.LayerData, error) {
	ld := &layer.LayerData{LayerType: featureLayerType, SupportsFeatures: true}
	seen := make(map[string]any)
	for _, g := range p.graphics {
		for name, v := range g.Attributes {
			if _, ok := seen[name]; !ok {
				seen[name] = v
			}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ld.Fields = append(ld.Fields, layer.Field{Name: name, Alias: name, Type: fieldType(seen[name])})
	}
	for _, candidate := range []string{"OBJECTID", "FID", "OID"} {
		if _, ok := seen[candidate]; ok {
			ld.OIDField = candidate
			break
		}
	}
	return ld, nil
}

func (p *localPackage) Attribs(ctx context.Context) (*layer.AttributeData, error) {
	meta, _ := p.LayerData(ctx)
	data := &layer.AttributeData{
		Features: append([]layer.Graphic(nil), p.graphics...),
		OIDIndex: make(map[string]int, len(p.graphics)),
	}
	for i, g := range p.graphics {
		key := strconv.Itoa(i)
		if meta.OIDField != "" {
			key = attrString(g.Attributes[meta.OIDField])
		}
		data.OIDIndex[key] = i
	}
	return data, nil
}

func fieldType(v any) string {
	switch v.(type) {
	case float64, float32:
		return "esriFieldTypeDouble"
	case int, int32, int64:
		return "esriFieldTypeInteger"
	default:
		return "esriFieldTypeString"
	}
}

func (w *wireRenderer) renderer() *layer.Renderer {
	r := &layer.Renderer{
		Type:            w.Type,
		Label:           w.Label,
		Field1:          w.Field1,
		Field2:          w.Field2,
		Field3:          w.Field3,
		Field:           w.Field,
		DefaultLabel:    w.DefaultLabel,
		MinValue:        w.MinValue,
		ClassBreakInfos: w.ClassBreakInfos,
	}
	for _, info := range w.UniqueValueInfos {
		r.UniqueValueInfos = append(r.UniqueValueInfos, layer.UniqueValueInfo{
			Value: attrString(info.Value),
			Label: info.Label,
		})
	}
	return r
}
