package layer

import (
	"context"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layerkit/layerkit/pkg/config"
	"github.com/layerkit/layerkit/pkg/geo"
)

func TestOffScale(t *testing.T) {
	tests := []struct {
		name     string
		scale    float64
		set      ScaleSet
		expected OffScaleResult
	}{
		{"open range", 50000, ScaleSet{}, OffScaleResult{}},
		{"inside", 50000, ScaleSet{MinScale: 100000, MaxScale: 10000}, OffScaleResult{}},
		{"too far in", 5000, ScaleSet{MinScale: 100000, MaxScale: 10000}, OffScaleResult{OffScale: true, ZoomIn: false}},
		{"too far out", 200000, ScaleSet{MinScale: 100000, MaxScale: 10000}, OffScaleResult{OffScale: true, ZoomIn: true}},
		{"on max bound", 10000, ScaleSet{MinScale: 100000, MaxScale: 10000}, OffScaleResult{}},
		{"on min bound", 100000, ScaleSet{MinScale: 100000, MaxScale: 10000}, OffScaleResult{}},
		{"only max", 500, ScaleSet{MaxScale: 1000}, OffScaleResult{OffScale: true, ZoomIn: false}},
		{"only min", 5e6, ScaleSet{MinScale: 1e6}, OffScaleResult{OffScale: true, ZoomIn: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, OffScale(tt.scale, tt.set))
		})
	}
}

var testLODs = []geo.LOD{
	{Level: 0, Resolution: 1000, Scale: 4e6},
	{Level: 1, Resolution: 500, Scale: 2e6},
	{Level: 2, Resolution: 250, Scale: 1e6},
	{Level: 3, Resolution: 125, Scale: 5e5},
	{Level: 4, Resolution: 60, Scale: 2.5e5},
}

func TestFindZoomScale(t *testing.T) {
	set := ScaleSet{MinScale: 1.5e6, MaxScale: 3e5}

	lod, ok := FindZoomScale(testLODs, set, true, false)
	require.True(t, ok)
	assert.Equal(t, 2, lod.Level, "first level below the min scale")

	lod, ok = FindZoomScale(testLODs, set, false, false)
	require.True(t, ok)
	assert.Equal(t, 3, lod.Level, "last level above the max scale")

	lod, ok = FindZoomScale(testLODs, set, true, true)
	require.True(t, ok)
	assert.Equal(t, 3, lod.Level, "graphics always search outward")

	_, ok = FindZoomScale(testLODs, ScaleSet{MinScale: 1000}, true, false)
	assert.False(t, ok)
}

func TestMakeClickBuffer(t *testing.T) {
	m := newFakeMap()
	p := geo.NewPoint(200, 300, webMercator)

	buf := MakeClickBuffer(p, m, 0)
	assert.InDelta(t, 2*config.DefaultTolerance*10, buf.Width(), 1e-9)
	assert.InDelta(t, buf.Width(), buf.Height(), 1e-9)
	assert.Equal(t, p.Point, buf.Center().Point)

	buf = MakeClickBuffer(p, m, 2)
	assert.InDelta(t, 40, buf.Width(), 1e-9)
}

func TestRecord_ZoomToScale(t *testing.T) {
	fx := newFeatureFixture()
	fx.layer.scales = ScaleSet{MinScale: 1.5e6, MaxScale: 3e5}
	fx.layer.extent = geo.NewExtent(5000, 5000, 6000, 6000, webMercator)
	rec, err := NewTileRecord(&config.LayerConfig{ID: "base", LayerType: config.KindTile, URL: dynamicURL}, fx.svc, fx.layer)
	require.NoError(t, err)

	m := newFakeMap()
	require.NoError(t, rec.ZoomToScale(context.Background(), m, testLODs, true, false))
	assert.Equal(t, 1e6, m.scale)
	require.NotNil(t, m.centre, "the view did not overlap the layer")
	assert.Equal(t, [2]float64{5500, 5500}, [2]float64(m.centre.Point))

	m = newFakeMap()
	require.NoError(t, rec.ZoomToScale(context.Background(), m, testLODs, false, false))
	assert.Equal(t, 5e5, m.scale)
	assert.Nil(t, m.centre)
}

func TestRecord_ZoomToBoundaryFallsBackToGraphics(t *testing.T) {
	fx := newFeatureFixture()
	fx.layer.url = ""
	fx.layer.extent = geo.Extent{SR: webMercator}
	fx.layer.graphics = []Graphic{
		{Geometry: orb.Point{10, 20}},
		{Geometry: orb.Point{30, 5}},
	}
	rec, err := NewFeatureRecord(&config.LayerConfig{ID: "upload", LayerType: config.KindFeature}, fx.svc, fx.layer)
	require.NoError(t, err)

	m := newFakeMap()
	require.NoError(t, rec.ZoomToBoundary(context.Background(), m))
	assert.InDelta(t, 10, m.extent.Bound.Min[0], 1e-9)
	assert.InDelta(t, 5, m.extent.Bound.Min[1], 1e-9)
	assert.InDelta(t, 30, m.extent.Bound.Max[0], 1e-9)
	assert.InDelta(t, 20, m.extent.Bound.Max[1], 1e-9)

	n, err := rec.FeatureCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n, "file layers count their graphics")
	assert.True(t, rec.IsFileLayer())
}
