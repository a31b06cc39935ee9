package geo

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
)

var webMercator = SpatialReference{WKID: 3857}

func TestExtentCenterAt(t *testing.T) {
	e := NewExtent(0, 0, 10, 4, webMercator)
	moved := e.CenterAt(NewPoint(100, 50, webMercator))

	assert.InDelta(t, 95, moved.Bound.Left(), 1e-9)
	assert.InDelta(t, 105, moved.Bound.Right(), 1e-9)
	assert.InDelta(t, 48, moved.Bound.Bottom(), 1e-9)
	assert.InDelta(t, 52, moved.Bound.Top(), 1e-9)
	assert.Equal(t, webMercator, moved.SR)
}

func TestExtentIntersects(t *testing.T) {
	a := NewExtent(0, 0, 10, 10, webMercator)
	assert.True(t, a.Intersects(NewExtent(5, 5, 20, 20, webMercator)))
	assert.False(t, a.Intersects(NewExtent(11, 11, 20, 20, webMercator)))
}

func TestExtentIsEmpty(t *testing.T) {
	assert.True(t, Extent{}.IsEmpty())
	assert.False(t, NewExtent(-5, 0, 5, 1, webMercator).IsEmpty())
}

func TestBoundOf(t *testing.T) {
	e := BoundOf([]orb.Geometry{orb.Point{1, 2}, nil, orb.Point{-3, 8}}, webMercator)
	assert.Equal(t, orb.Point{-3, 2}, e.Bound.Min)
	assert.Equal(t, orb.Point{1, 8}, e.Bound.Max)
}

func TestSpatialReferenceEqual(t *testing.T) {
	assert.True(t, webMercator.Equal(SpatialReference{WKID: 3857}))
	assert.False(t, webMercator.Equal(SpatialReference{WKID: 4326}))
	assert.True(t, SpatialReference{WKT: "X"}.Equal(SpatialReference{WKT: "X"}))
	assert.False(t, SpatialReference{}.Equal(SpatialReference{}))
}
