package arcgis

import (
	"context"

	"github.com/layerkit/layerkit/pkg/geo"
	"github.com/layerkit/layerkit/pkg/layer"
)

type stubLayer struct {
	url      string
	infos    []layer.SublayerInfo
	graphics []layer.Graphic
}

func (l *stubLayer) ID() string                                          { return "stub" }
func (l *stubLayer) Name() string                                        { return "Stub" }
func (l *stubLayer) URL() string                                         { return l.url }
func (l *stubLayer) Visible() bool                                       { return true }
func (l *stubLayer) SetVisibility(bool)                                  {}
func (l *stubLayer) Opacity() float64                                    { return 1 }
func (l *stubLayer) SetOpacity(float64)                                  {}
func (l *stubLayer) ScaleSet() layer.ScaleSet                            { return layer.ScaleSet{} }
func (l *stubLayer) FullExtent() geo.Extent                              { return geo.Extent{} }
func (l *stubLayer) SpatialReference() geo.SpatialReference              { return geo.SpatialReference{WKID: 3857} }
func (l *stubLayer) Graphics() []layer.Graphic                           { return l.graphics }
func (l *stubLayer) SupportsDynamicLayers() bool                         { return true }
func (l *stubLayer) LayerInfos() []layer.SublayerInfo                    { return l.infos }
func (l *stubLayer) VisibleLayers() []int                                { return nil }
func (l *stubLayer) SetVisibleLayers([]int)                              {}
func (l *stubLayer) SetLayerDrawingOptions(map[int]layer.DrawingOptions) {}

// plainLayer hides the dynamic methods of stubLayer.
type plainLayer struct{ l *stubLayer }

func (p plainLayer) ID() string                             { return p.l.ID() }
func (p plainLayer) Name() string                           { return p.l.Name() }
func (p plainLayer) URL() string                            { return p.l.URL() }
func (p plainLayer) Visible() bool                          { return true }
func (p plainLayer) SetVisibility(bool)                     {}
func (p plainLayer) Opacity() float64                       { return 1 }
func (p plainLayer) SetOpacity(float64)                     {}
func (p plainLayer) ScaleSet() layer.ScaleSet               { return layer.ScaleSet{} }
func (p plainLayer) FullExtent() geo.Extent                 { return geo.Extent{} }
func (p plainLayer) SpatialReference() geo.SpatialReference { return p.l.SpatialReference() }
func (p plainLayer) Graphics() []layer.Graphic              { return p.l.graphics }

type stubMap struct {
	extent geo.Extent
	width  int
}

func (m *stubMap) Extent() geo.Extent                          { return m.extent }
func (m *stubMap) WidthPx() int                                { return m.width }
func (m *stubMap) SpatialReference() geo.SpatialReference      { return m.extent.SR }
func (m *stubMap) SetScale(context.Context, float64) error     { return nil }
func (m *stubMap) CenterAt(context.Context, geo.Point) error   { return nil }
func (m *stubMap) SetExtent(context.Context, geo.Extent) error { return nil }
func (m *stubMap) RemoveLayer(string)                          {}
