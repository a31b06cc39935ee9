// Package geo holds the small set of map geometry values the layer core passes
// to and from the mapping engine: spatial references, points, extents and
// levels of detail. Bounds math is delegated to github.com/paulmach/orb.
package geo

import (
	"fmt"

	"github.com/paulmach/orb"
)

// SpatialReference identifies a coordinate system by well-known id or WKT.
type SpatialReference struct {
	WKID       int    `json:"wkid,omitempty" yaml:"wkid,omitempty"`
	LatestWKID int    `json:"latestWkid,omitempty" yaml:"latestWkid,omitempty"`
	WKT        string `json:"wkt,omitempty" yaml:"wkt,omitempty"`
}

// Equal reports whether two references describe the same system.
func (sr SpatialReference) Equal(other SpatialReference) bool {
	if sr.WKID != 0 && other.WKID != 0 {
		return sr.WKID == other.WKID
	}
	if sr.LatestWKID != 0 && other.LatestWKID != 0 {
		return sr.LatestWKID == other.LatestWKID
	}
	return sr.WKT != "" && sr.WKT == other.WKT
}

func (sr SpatialReference) String() string {
	switch {
	case sr.WKID != 0:
		return fmt.Sprintf("EPSG:%d", sr.WKID)
	case sr.WKT != "":
		return "WKT"
	default:
		return "unknown"
	}
}

// Point is a map coordinate in a given spatial reference.
type Point struct {
	orb.Point
	SR SpatialReference
}

// NewPoint builds a Point.
func NewPoint(x, y float64, sr SpatialReference) Point {
	return Point{Point: orb.Point{x, y}, SR: sr}
}

// ScreenPoint is a pixel position within the map view.
type ScreenPoint struct {
	X int
	Y int
}

// Extent is an axis-aligned rectangle in a spatial reference.
type Extent struct {
	Bound orb.Bound
	SR    SpatialReference
}

// NewExtent builds an Extent from its corner coordinates.
func NewExtent(xmin, ymin, xmax, ymax float64, sr SpatialReference) Extent {
	return Extent{
		Bound: orb.Bound{Min: orb.Point{xmin, ymin}, Max: orb.Point{xmax, ymax}},
		SR:    sr,
	}
}

// IsEmpty reports whether the extent carries no usable coordinates. Engines
// report full extents of some user-added layers with all corners unset.
func (e Extent) IsEmpty() bool {
	return e.Bound.IsZero() || e.Bound.Min[0] == 0 && e.Bound.Max[0] == 0
}

// Width is the horizontal span in map units.
func (e Extent) Width() float64 {
	return e.Bound.Right() - e.Bound.Left()
}

// Height is the vertical span in map units.
func (e Extent) Height() float64 {
	return e.Bound.Top() - e.Bound.Bottom()
}

// Center returns the middle of the extent.
func (e Extent) Center() Point {
	return Point{Point: e.Bound.Center(), SR: e.SR}
}

// Intersects reports whether two extents overlap.
func (e Extent) Intersects(other Extent) bool {
	return e.Bound.Intersects(other.Bound)
}

// CenterAt returns a copy of e with the same size, centred on p.
func (e Extent) CenterAt(p Point) Extent {
	hw, hh := e.Width()/2, e.Height()/2
	return NewExtent(p.X()-hw, p.Y()-hh, p.X()+hw, p.Y()+hh, e.SR)
}

// BoundOf returns the smallest extent containing every geometry.
func BoundOf(geoms []orb.Geometry, sr SpatialReference) Extent {
	var b orb.Bound
	first := true
	for _, g := range geoms {
		if g == nil {
			continue
		}
		if first {
			b = g.Bound()
			first = false
			continue
		}
		b = b.Union(g.Bound())
	}
	return Extent{Bound: b, SR: sr}
}

// LOD is one discrete zoom step of the base map.
type LOD struct {
	Level      int     `json:"level" yaml:"level"`
	Resolution float64 `json:"resolution" yaml:"resolution"`
	Scale      float64 `json:"scale" yaml:"scale"`
}
