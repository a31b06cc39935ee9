package layer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layerkit/layerkit/pkg/config"
	"github.com/layerkit/layerkit/pkg/geo"
)

const wmsURL = "https://maps.test/geoserver/wms"

func newWMSFixture(ogc fakeOGC, mime string) (*fakeWMSLayer, *fakeFactory, Services, *config.LayerConfig) {
	wl := &fakeWMSLayer{
		fakeLayer: newFakeLayer("weather", "Weather", wmsURL),
		infos: []WMSLayerInfo{{
			Name:  "root",
			Title: "Root",
			Children: []WMSLayerInfo{
				{Name: "radar", Title: "Radar composite"},
				{Name: "lightning", Title: ""},
			},
		}},
	}
	factory := &fakeFactory{layer: wl}
	svc := Services{
		Factory:   factory,
		Symbology: fakeSymbology{},
		OGC:       ogc,
		Observer:  &recordingObserver{},
	}
	cfg := &config.LayerConfig{
		ID:                  "weather",
		LayerType:           config.KindWMS,
		URL:                 wmsURL,
		FeatureInfoMimeType: mime,
		LayerEntries: []config.LayerEntry{
			{ID: "radar"},
			{ID: "lightning"},
			{ID: "warnings", Name: "Warnings"},
		},
	}
	return wl, factory, svc, cfg
}

func TestWMSRecord_VisibleLayersAndLegend(t *testing.T) {
	wl, factory, svc, cfg := newWMSFixture(fakeOGC{}, "")
	rec, err := NewWMSRecord(cfg, svc, nil)
	require.NoError(t, err)

	assert.Equal(t, config.KindWMS, factory.kind)
	assert.Equal(t, []string{"radar", "lightning", "warnings"}, factory.opts.VisibleLayers)

	wl.load()
	require.Equal(t, StateLoaded, rec.State())
	assert.Equal(t, "none", rec.DefaultFC().GeomType())

	assert.Eventually(t, func() bool { return len(rec.Symbology().Stack()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []SymbologyItem{
		{Name: "Radar composite", ImageURL: "https://wms.test/legend?layer=radar"},
		{Name: "lightning", ImageURL: "https://wms.test/legend?layer=lightning"},
		{Name: "Warnings", ImageURL: "https://wms.test/legend?layer=warnings"},
	}, rec.Symbology().Stack())
	assert.Equal(t, RenderStyleImages, rec.Symbology().RenderStyle())
}

func TestWMSRecord_Identify(t *testing.T) {
	click := ClickEvent{MapPoint: geo.NewPoint(1, 1, webMercator)}

	tests := []struct {
		name    string
		ogc     fakeOGC
		mime    string
		results int
		items   int
		format  string
		wantErr bool
	}{
		{name: "unsupported mime", ogc: fakeOGC{info: "<p/>"}, mime: "image/png", results: 0},
		{name: "no mime", ogc: fakeOGC{info: "<p/>"}, mime: "", results: 0},
		{name: "html summary", ogc: fakeOGC{info: "<table/>"}, mime: "text/html;fgpv=summary", results: 1, items: 1, format: FormatHTML},
		{name: "plain text", ogc: fakeOGC{info: "radar: 40dBZ"}, mime: "text/plain", results: 1, items: 1, format: FormatText},
		{name: "json", ogc: fakeOGC{info: `{"features":[]}`}, mime: "application/json", results: 1, items: 1, format: FormatEsri},
		{name: "no results text", ogc: fakeOGC{info: "<p>Search returned no results</p>"}, mime: "text/html", results: 1, format: FormatHTML},
		{name: "empty body", ogc: fakeOGC{}, mime: "text/plain", results: 1, format: FormatText},
		{name: "service error", ogc: fakeOGC{err: errors.New("500")}, mime: "text/plain", results: 1, format: FormatText, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wl, _, svc, cfg := newWMSFixture(tt.ogc, tt.mime)
			rec, err := NewWMSRecord(cfg, svc, wl)
			require.NoError(t, err)

			batch := rec.Identify(context.Background(), IdentifyOptions{RequestID: "r", Click: click, Map: newFakeMap()})
			require.Len(t, batch.Results, tt.results)
			_, err = batch.Done.Wait(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			if tt.results == 0 {
				return
			}

			res := batch.Results[0]
			assert.False(t, res.IsLoading())
			assert.Len(t, res.Data(), tt.items)
			assert.Equal(t, tt.format, res.Requester.Format)
			assert.Equal(t, "weather", res.Requester.LayerID)
			if tt.items > 0 {
				assert.Equal(t, tt.ogc.info, res.Data()[0].Content)
			}
		})
	}
}

func TestWMSEntryName(t *testing.T) {
	infos := []WMSLayerInfo{{Name: "a", Title: "A", Children: []WMSLayerInfo{{Name: "b", Title: "Deep"}}}}

	assert.Equal(t, "Named", wmsEntryName(config.LayerEntry{ID: "b", Name: "Named"}, infos))
	assert.Equal(t, "Deep", wmsEntryName(config.LayerEntry{ID: "b"}, infos))
	assert.Equal(t, "missing", wmsEntryName(config.LayerEntry{ID: "missing"}, infos))
}

func TestSimpleRecords(t *testing.T) {
	fx := newFeatureFixture()

	tileLayer := newFakeLayer("base", "Base", dynamicURL)
	tile, err := NewTileRecord(&config.LayerConfig{ID: "base", LayerType: config.KindTile, URL: dynamicURL}, fx.svc, tileLayer)
	require.NoError(t, err)
	assert.Equal(t, TypeTile, tile.LayerType())
	assert.Equal(t, []string{"0"}, tile.FeatureClassIndexes())
	assert.Eventually(t, func() bool {
		stack := tile.Symbology().Stack()
		return len(stack) == 1 && stack[0].Name == "legend 0"
	}, time.Second, 5*time.Millisecond, "tile symbology is adopted by the record")

	// The legend follows the engine layer's url; a trailing sublayer index
	// there picks the legend entry.
	indexed, err := NewTileRecord(&config.LayerConfig{ID: "wells", LayerType: config.KindTile, URL: dynamicURL}, fx.svc, fx.layer)
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		stack := indexed.Symbology().Stack()
		return len(stack) == 1 && stack[0].Name == "legend 3"
	}, time.Second, 5*time.Millisecond)

	img, err := NewImageRecord(&config.LayerConfig{ID: "ortho", LayerType: config.KindImage, URL: dynamicURL}, fx.svc, newFakeLayer("ortho", "Ortho", dynamicURL))
	require.NoError(t, err)
	assert.Equal(t, TypeImage, img.LayerType())
	assert.Equal(t, "0", img.DefaultFC().Index())
	n, err := img.FeatureCount(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSplitLayerURL(t *testing.T) {
	tests := []struct {
		in, base, idx string
	}{
		{dynamicURL, dynamicURL, ""},
		{dynamicURL + "/", dynamicURL, ""},
		{featureURL, "https://maps.test/arcgis/rest/services/Water/FeatureServer", "3"},
		{"layer", "layer", ""},
	}
	for _, tt := range tests {
		base, idx := splitLayerURL(tt.in)
		assert.Equal(t, tt.base, base, tt.in)
		assert.Equal(t, tt.idx, idx, tt.in)
	}
}
