package arcgis

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layerkit/layerkit/pkg/layer"
)

const legendJSON = `{
  "layers": [
    {"layerId": 1, "layerName": "Rivers", "legend": [
      {"label": "Major", "imageData": "AAAA", "contentType": "image/png", "width": 16, "height": 16},
      {"label": "Minor", "url": "abc123"}
    ]},
    {"layerId": 2, "layerName": "Lakes", "legend": [
      {"label": "", "imageData": "BBBB", "contentType": "image/png"}
    ]}
  ]
}`

func TestSymbology_MapServerLegend(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		_, _ = w.Write([]byte(legendJSON))
	}))
	defer srv.Close()

	s := NewSymbology(NewClient(WithHTTPClient(srv.Client())))
	items, err := s.MapServerLegend(context.Background(), srv.URL+"/rest/services/Water/FeatureServer", "1")
	require.NoError(t, err)
	assert.Equal(t, []string{"/rest/services/Water/MapServer/legend"}, paths, "feature servers are asked through their map server")

	require.Len(t, items, 2)
	assert.Equal(t, "Major", items[0].Name)
	assert.Contains(t, items[0].SVGCode, "data:image/png;base64,AAAA")
	assert.Contains(t, items[0].SVGCode, `width="16"`)
	assert.Equal(t, srv.URL+"/rest/services/Water/MapServer/1/images/abc123", items[1].ImageURL)
	assert.Empty(t, items[1].SVGCode)

	// Icons seen in a legend are reused for graphics with the same label.
	icon := s.GraphicIcon(map[string]any{}, &layer.Renderer{Type: RendererSimple, Label: "Major"})
	assert.Equal(t, items[0].SVGCode, icon)

	_, err = s.MapServerLegend(context.Background(), srv.URL+"/rest/services/Water/MapServer", "9")
	assert.Error(t, err)
	_, err = s.MapServerLegend(context.Background(), srv.URL+"/rest/services/Water/MapServer", "x")
	assert.Error(t, err)
}

func TestRendererLabel(t *testing.T) {
	unique := &layer.Renderer{
		Type:         RendererUniqueValue,
		Field1:       "TYPE",
		Field2:       "CLASS",
		DefaultLabel: "Other",
		UniqueValueInfos: []layer.UniqueValueInfo{
			{Value: "Road, 1", Label: "Primary road"},
			{Value: "Road, 2", Label: "Secondary road"},
		},
	}
	breaks := &layer.Renderer{
		Type:         RendererClassBreaks,
		Field:        "POP",
		MinValue:     0,
		DefaultLabel: "Unknown",
		ClassBreakInfos: []layer.ClassBreakInfo{
			{ClassMaxValue: 100, Label: "Small"},
			{ClassMaxValue: 1000, Label: "Medium"},
		},
	}

	tests := []struct {
		name     string
		attrs    map[string]any
		renderer *layer.Renderer
		expected string
	}{
		{"nil renderer", nil, nil, ""},
		{"simple", nil, &layer.Renderer{Type: RendererSimple, Label: "Wells"}, "Wells"},
		{"unique multi field", map[string]any{"TYPE": "Road", "CLASS": float64(2)}, unique, "Secondary road"},
		{"unique default", map[string]any{"TYPE": "Rail", "CLASS": float64(1)}, unique, "Other"},
		{"first break includes lower bound", map[string]any{"POP": float64(0)}, breaks, "Small"},
		{"break upper bound inclusive", map[string]any{"POP": float64(100)}, breaks, "Small"},
		{"second break excludes lower bound", map[string]any{"POP": float64(100.5)}, breaks, "Medium"},
		{"above every break", map[string]any{"POP": float64(5000)}, breaks, "Unknown"},
		{"below min", map[string]any{"POP": float64(-1)}, breaks, "Unknown"},
		{"numeric string", map[string]any{"POP": "250"}, breaks, "Medium"},
		{"missing field", map[string]any{}, breaks, "Unknown"},
		{"unknown type", nil, &layer.Renderer{Type: "heatmap", DefaultLabel: "Heat"}, "Heat"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, RendererLabel(tt.attrs, tt.renderer))
		})
	}
}

func TestSymbology_GraphicIconSwatch(t *testing.T) {
	s := NewSymbology(NewClient())
	r := &layer.Renderer{Type: RendererSimple, Label: "Parks & gardens"}

	icon := s.GraphicIcon(nil, r)
	assert.Contains(t, icon, "<title>Parks &amp; gardens</title>")
	assert.Equal(t, icon, s.GraphicIcon(nil, r), "same label, same swatch")
	assert.NotEqual(t, icon, s.GraphicIcon(nil, &layer.Renderer{Type: RendererSimple, Label: "Lakes"}))
}

func TestSymbology_PlaceholderSymbol(t *testing.T) {
	s := NewSymbology(NewClient())

	item := s.PlaceholderSymbol("rivers", layer.PlaceholderColour)
	assert.Equal(t, "rivers", item.Name)
	assert.Contains(t, item.SVGCode, `fill="#16bf27"`)
	assert.Contains(t, item.SVGCode, ">R</text>")

	assert.Contains(t, s.PlaceholderSymbol("", "#000").SVGCode, ">?</text>")
}
