package layer

import (
	"context"
	"fmt"
	"slices"

	"github.com/paulmach/orb"

	"github.com/layerkit/layerkit/pkg/config"
	"github.com/layerkit/layerkit/pkg/geo"
)

// FindZoomScale picks the level of detail to zoom to so that a sublayer with
// the given scale range becomes visible. With zoomIn the levels are searched
// in order for the first scale below the min scale; otherwise they are
// searched from the end for the first scale above the max scale. Zooming to a
// graphic always searches outward. ok is false when no level qualifies.
func FindZoomScale(lods []geo.LOD, s ScaleSet, zoomIn, zoomGraphic bool) (lod geo.LOD, ok bool) {
	if zoomGraphic {
		zoomIn = false
	}

	search := lods
	if !zoomIn {
		search = slices.Clone(lods)
		slices.Reverse(search)
	}

	for _, l := range search {
		if zoomIn && l.Scale < s.MinScale {
			return l, true
		}
		if !zoomIn && l.Scale > s.MaxScale {
			return l, true
		}
	}
	return geo.LOD{}, false
}

// SetMapScale sets the map to the scale of lod. When zooming in, the map is
// re-centred on the layer if the new view does not overlap its full extent.
func (r *Record) SetMapScale(ctx context.Context, m MapView, lod geo.LOD, zoomIn bool) error {
	if !zoomIn {
		return m.SetScale(ctx, lod.Scale)
	}

	l := r.Layer()
	if l == nil {
		return NewUsageError("layer has not been constructed").WithLayer(r.cfg.ID)
	}
	full, err := r.projectExtent(l.FullExtent(), m.SpatialReference())
	if err != nil {
		return err
	}

	if err := m.SetScale(ctx, lod.Scale); err != nil {
		return err
	}
	if !full.Intersects(m.Extent()) {
		return m.CenterAt(ctx, full.Center())
	}
	return nil
}

// ZoomToScale zooms the map until the default feature class is on scale.
func (r *Record) ZoomToScale(ctx context.Context, m MapView, lods []geo.LOD, zoomIn, zoomGraphic bool) error {
	fc, err := r.defaultClass()
	if err != nil {
		return err
	}
	s, err := fc.ScaleSet(ctx)
	if err != nil {
		return err
	}
	return r.zoomToScaleSet(ctx, m, lods, zoomIn, s, zoomGraphic)
}

func (r *Record) zoomToScaleSet(ctx context.Context, m MapView, lods []geo.LOD, zoomIn bool, s ScaleSet, zoomGraphic bool) error {
	if zoomGraphic {
		zoomIn = false
	}
	lod, ok := FindZoomScale(lods, s, zoomIn, zoomGraphic)
	if !ok {
		return fmt.Errorf("no level of detail brings layer %s on scale", r.cfg.ID)
	}
	r.log.WithFields(map[string]interface{}{"scale": lod.Scale, "zoom_in": zoomIn}).Debug("Zooming to scale")
	return r.SetMapScale(ctx, m, lod, zoomIn)
}

// ZoomToBoundary sets the map extent to the layer's full extent. Layers that
// report an empty full extent are zoomed to the extent of their graphics.
func (r *Record) ZoomToBoundary(ctx context.Context, m MapView) error {
	l := r.Layer()
	if l == nil {
		return NewUsageError("layer has not been constructed").WithLayer(r.cfg.ID)
	}

	ext := l.FullExtent()
	if ext.IsEmpty() {
		graphics := l.Graphics()
		geoms := make([]orb.Geometry, 0, len(graphics))
		for _, g := range graphics {
			geoms = append(geoms, g.Geometry)
		}
		ext = geo.BoundOf(geoms, l.SpatialReference())
	}

	ext, err := r.projectExtent(ext, m.SpatialReference())
	if err != nil {
		return err
	}
	return m.SetExtent(ctx, ext)
}

func (r *Record) projectExtent(e geo.Extent, sr geo.SpatialReference) (geo.Extent, error) {
	if r.svc.Projection == nil || e.SR.Equal(sr) {
		return e, nil
	}
	return r.svc.Projection.ProjectExtent(e, sr)
}

// MakeClickBuffer returns a square extent centred on p whose side is twice
// the pixel tolerance converted to map units at the current scale.
func MakeClickBuffer(p geo.Point, m MapView, tolerance int) geo.Extent {
	if tolerance <= 0 {
		tolerance = config.DefaultTolerance
	}
	var size float64
	if w := m.WidthPx(); w > 0 {
		size = 2 * float64(tolerance) * m.Extent().Width() / float64(w)
	}
	return geo.NewExtent(0, 0, size, size, p.SR).CenterAt(p)
}

// GeomType is empty for layers without geometry.
func (r *Record) GeomType() string { return "" }
