package arcgis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layerkit/layerkit/pkg/layer"
)

const riversMeta = `{
  "type": "Feature Layer",
  "geometryType": "esriGeometryPolyline",
  "fields": [
    {"name": "FID", "alias": "Id", "type": "esriFieldTypeOID"},
    {"name": "NAME", "alias": "Name", "type": "esriFieldTypeString"}
  ],
  "minScale": 500000,
  "drawingInfo": {"renderer": {
    "type": "uniqueValue",
    "field1": "CLASS",
    "defaultLabel": "Other",
    "uniqueValueInfos": [{"value": 1, "label": "Major"}, {"value": "2", "label": "Minor"}]
  }}
}`

// newRiverServer serves a 5 record feature layer at /MapServer/1 in pages of
// at most two records.
func newRiverServer(t *testing.T) (*httptest.Server, *[]string) {
	var (
		mu      sync.Mutex
		offsets []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/MapServer/1":
			_, _ = w.Write([]byte(riversMeta))
		case "/MapServer/1/query":
			q := r.URL.Query()
			assert.Equal(t, "FID", q.Get("orderByFields"))
			mu.Lock()
			offsets = append(offsets, q.Get("resultOffset"))
			mu.Unlock()

			offset, _ := strconv.Atoi(q.Get("resultOffset"))
			count, _ := strconv.Atoi(q.Get("resultRecordCount"))
			var feats []map[string]any
			for i := offset; i < offset+count && i < 5; i++ {
				feats = append(feats, map[string]any{"attributes": map[string]any{"FID": 100 + i, "NAME": "river"}})
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"features":              feats,
				"exceededTransferLimit": offset+count < 5,
			})
		case "/MapServer/2":
			_, _ = w.Write([]byte(`{"type": "Raster Layer"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	return srv, &offsets
}

func TestLoader_DynamicLayer(t *testing.T) {
	srv, _ := newRiverServer(t)
	defer srv.Close()

	l := &stubLayer{
		url: srv.URL + "/MapServer/",
		infos: []layer.SublayerInfo{
			{ID: 0, Name: "Hydro", SubLayerIDs: []int{1, 2}, ParentLayerID: -1},
			{ID: 1, Name: "Rivers", ParentLayerID: 0},
			{ID: 2, Name: "Imagery", ParentLayerID: 0},
		},
	}
	bundle := NewLoader(NewClient(WithHTTPClient(srv.Client())), 0).LoadLayerAttribs(l)
	assert.Equal(t, []string{"1", "2"}, bundle.Indexes, "only leaves get packages")

	meta, err := bundle.Packages["1"].LayerData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "FID", meta.OIDField, "oid falls back to the oid typed field")
	assert.True(t, meta.SupportsFeatures)
	assert.Equal(t, 500000.0, meta.MinScale)
	require.NotNil(t, meta.Renderer)
	assert.Equal(t, []layer.UniqueValueInfo{{Value: "1", Label: "Major"}, {Value: "2", Label: "Minor"}}, meta.Renderer.UniqueValueInfos)

	raster, err := bundle.Packages["2"].Attribs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, raster.Features)
}

func TestLoader_AttribsPages(t *testing.T) {
	srv, offsets := newRiverServer(t)
	defer srv.Close()

	l := &stubLayer{url: srv.URL + "/MapServer/1"}
	bundle := NewLoader(NewClient(WithHTTPClient(srv.Client())), 2).LoadLayerAttribs(plainLayer{l})
	require.Equal(t, []string{"1"}, bundle.Indexes)

	data, err := bundle.Packages["1"].Attribs(context.Background())
	require.NoError(t, err)
	assert.Len(t, data.Features, 5)
	assert.Equal(t, []string{"0", "2", "4"}, *offsets)
	assert.Equal(t, 3, data.OIDIndex["103"])
}

func TestLoader_MetadataError(t *testing.T) {
	srv, _ := newRiverServer(t)
	defer srv.Close()

	l := &stubLayer{url: srv.URL + "/MapServer/9"}
	bundle := NewLoader(NewClient(WithHTTPClient(srv.Client())), 0).LoadLayerAttribs(plainLayer{l})

	_, err := bundle.Packages["9"].Attribs(context.Background())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "/MapServer/9"))
}

func TestLoader_FileLayer(t *testing.T) {
	l := &stubLayer{graphics: []layer.Graphic{
		{Attributes: map[string]any{"OBJECTID": float64(7), "NAME": "a"}},
		{Attributes: map[string]any{"OBJECTID": float64(9), "NAME": "b", "DEPTH": float64(3)}},
	}}
	bundle := NewLoader(NewClient(), 0).LoadLayerAttribs(plainLayer{l})
	require.Equal(t, []string{"0"}, bundle.Indexes)

	meta, err := bundle.Packages["0"].LayerData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "OBJECTID", meta.OIDField)
	assert.Equal(t, []layer.Field{
		{Name: "DEPTH", Alias: "DEPTH", Type: "esriFieldTypeDouble"},
		{Name: "NAME", Alias: "NAME", Type: "esriFieldTypeString"},
		{Name: "OBJECTID", Alias: "OBJECTID", Type: "esriFieldTypeDouble"},
	}, meta.Fields)

	data, err := bundle.Packages["0"].Attribs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"7": 0, "9": 1}, data.OIDIndex)
}
