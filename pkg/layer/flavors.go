package layer

import (
	"context"
	"errors"
	"fmt"

	"github.com/layerkit/layerkit/pkg/deferred"
)

// LayerSource is what a single layer interface reads from.
type LayerSource interface {
	Name() string
	Symbology() *SymbologyBundle
	LayerType() LayerType
	State() State
	Visibility() bool
	SetVisibility(visible bool)
	Opacity() float64
	SetOpacity(opacity float64)
	IsBBoxVisible() bool
	SetBBoxVisible(visible bool)
	IsQueryable() bool
	SetQueryable(queryable bool)
}

// FeatureSource adds what a feature layer interface reads.
type FeatureSource interface {
	LayerSource
	GeomType() string
	CachedFeatureCount() int
	IsSnapshot() bool
	FormattedAttributes(ctx context.Context) *deferred.Deferred[*FormattedAttributes]
}

type singleLayerFlavor struct {
	unsupported
	src LayerSource
}

func (f singleLayerFlavor) source() any                          { return f.src }
func (f singleLayerFlavor) name() (string, error)                { return f.src.Name(), nil }
func (f singleLayerFlavor) symbology() (*SymbologyBundle, error) { return f.src.Symbology(), nil }
func (f singleLayerFlavor) layerType() (LayerType, error)        { return f.src.LayerType(), nil }
func (f singleLayerFlavor) geometryType() (string, error)        { return "", nil }
func (f singleLayerFlavor) featureCount() (int, error)           { return -1, nil }
func (f singleLayerFlavor) state() (State, error)                { return f.src.State().Collapse(), nil }
func (f singleLayerFlavor) isRefreshing() (bool, error)          { return f.src.State().IsRefreshing(), nil }
func (f singleLayerFlavor) visibility() (bool, error)            { return f.src.Visibility(), nil }
func (f singleLayerFlavor) opacity() (float64, error)            { return f.src.Opacity(), nil }
func (f singleLayerFlavor) boundingBox() (bool, error)           { return f.src.IsBBoxVisible(), nil }
func (f singleLayerFlavor) query() (bool, error)                 { return f.src.IsQueryable(), nil }

func (f singleLayerFlavor) setVisibility(v bool) error {
	f.src.SetVisibility(v)
	return nil
}

func (f singleLayerFlavor) setOpacity(v float64) error {
	f.src.SetOpacity(v)
	return nil
}

func (f singleLayerFlavor) setBoundingBox(v bool) error {
	f.src.SetBBoxVisible(v)
	return nil
}

func (f singleLayerFlavor) setQuery(v bool) error {
	f.src.SetQueryable(v)
	return nil
}

type featureLayerFlavor struct {
	singleLayerFlavor
	feat FeatureSource
}

func (f featureLayerFlavor) geometryType() (string, error) { return f.feat.GeomType(), nil }
func (f featureLayerFlavor) featureCount() (int, error)    { return f.feat.CachedFeatureCount(), nil }
func (f featureLayerFlavor) snapshot() (bool, error)       { return f.feat.IsSnapshot(), nil }

func (f featureLayerFlavor) formattedAttributes(ctx context.Context) (*deferred.Deferred[*FormattedAttributes], error) {
	return f.feat.FormattedAttributes(ctx), nil
}

type dynamicLeafFlavor struct {
	unsupported
	fc *DynamicFC
}

func (f dynamicLeafFlavor) source() any                          { return f.fc }
func (f dynamicLeafFlavor) name() (string, error)                { return f.fc.Name(), nil }
func (f dynamicLeafFlavor) symbology() (*SymbologyBundle, error) { return f.fc.Symbology(), nil }
func (f dynamicLeafFlavor) layerType() (LayerType, error)        { return f.fc.LayerType(), nil }
func (f dynamicLeafFlavor) geometryType() (string, error)        { return f.fc.GeomType(), nil }
func (f dynamicLeafFlavor) featureCount() (int, error)           { return f.fc.FeatureCount(), nil }
func (f dynamicLeafFlavor) state() (State, error)                { return f.fc.State().Collapse(), nil }
func (f dynamicLeafFlavor) isRefreshing() (bool, error)          { return f.fc.State().IsRefreshing(), nil }
func (f dynamicLeafFlavor) visibility() (bool, error)            { return f.fc.Visibility(), nil }
func (f dynamicLeafFlavor) opacity() (float64, error)            { return f.fc.Opacity(), nil }
func (f dynamicLeafFlavor) query() (bool, error)                 { return f.fc.Queryable(), nil }

func (f dynamicLeafFlavor) formattedAttributes(ctx context.Context) (*deferred.Deferred[*FormattedAttributes], error) {
	return f.fc.FormattedAttributes(ctx), nil
}

func (f dynamicLeafFlavor) setVisibility(v bool) error {
	f.fc.SetVisibility(v)
	return nil
}

func (f dynamicLeafFlavor) setOpacity(v float64) error {
	f.fc.SetOpacity(v)
	return nil
}

func (f dynamicLeafFlavor) setQuery(v bool) error {
	f.fc.SetQueryable(v)
	return nil
}

func (f dynamicLeafFlavor) rebind(src any) (flavor, error) {
	fc, ok := src.(*DynamicFC)
	if !ok {
		return nil, fmt.Errorf("dynamic leaf cannot read from %T", src)
	}
	return dynamicLeafFlavor{fc: fc}, nil
}

// dynamicGroupFlavor never stores visibility: it is the OR of the leaves and
// setting it goes straight to every leaf.
type dynamicGroupFlavor struct {
	unsupported
	rec       *DynamicRecord
	groupID   string
	groupName string
	leaves    *Shared[*Interface]
}

func (f dynamicGroupFlavor) source() any                   { return f.rec }
func (f dynamicGroupFlavor) name() (string, error)         { return f.groupName, nil }
func (f dynamicGroupFlavor) layerType() (LayerType, error) { return TypeGroup, nil }
func (f dynamicGroupFlavor) state() (State, error)         { return f.rec.State().Collapse(), nil }
func (f dynamicGroupFlavor) isRefreshing() (bool, error)   { return f.rec.State().IsRefreshing(), nil }

func (f dynamicGroupFlavor) visibility() (bool, error) {
	for _, leaf := range f.leaves.Items() {
		if v, err := leaf.Visibility(); err == nil && v {
			return true, nil
		}
	}
	return false, nil
}

func (f dynamicGroupFlavor) setVisibility(v bool) error {
	for _, leaf := range f.leaves.Items() {
		if err := leaf.SetVisibility(v); err != nil && !errors.Is(err, ErrNotSupported) {
			return err
		}
	}
	return nil
}

type placeholderFlavor struct {
	unsupported
	fc *PlaceholderFC
}

func (f placeholderFlavor) source() any                          { return f.fc }
func (f placeholderFlavor) name() (string, error)                { return f.fc.Name(), nil }
func (f placeholderFlavor) symbology() (*SymbologyBundle, error) { return f.fc.Symbology(), nil }
func (f placeholderFlavor) state() (State, error)                { return f.fc.State().Collapse(), nil }
func (f placeholderFlavor) isRefreshing() (bool, error)          { return true, nil }

func (f placeholderFlavor) rebind(src any) (flavor, error) {
	fc, ok := src.(*PlaceholderFC)
	if !ok {
		return nil, fmt.Errorf("placeholder cannot read from %T", src)
	}
	return placeholderFlavor{fc: fc}, nil
}

// legendComposite is a legend item aggregating child interfaces.
type legendComposite interface {
	Name() string
	Visibility() bool
	SetVisibility(visible bool)
	IsQueryable() bool
	SetQueryable(queryable bool)
}

type legendGroupFlavor struct {
	unsupported
	src legendComposite
}

func (f legendGroupFlavor) source() any                   { return f.src }
func (f legendGroupFlavor) name() (string, error)         { return f.src.Name(), nil }
func (f legendGroupFlavor) layerType() (LayerType, error) { return TypeGroup, nil }
func (f legendGroupFlavor) state() (State, error)         { return StateDefault.Collapse(), nil }
func (f legendGroupFlavor) isRefreshing() (bool, error)   { return false, nil }
func (f legendGroupFlavor) visibility() (bool, error)     { return f.src.Visibility(), nil }
func (f legendGroupFlavor) query() (bool, error)          { return f.src.IsQueryable(), nil }

func (f legendGroupFlavor) setVisibility(v bool) error {
	f.src.SetVisibility(v)
	return nil
}

func (f legendGroupFlavor) setQuery(v bool) error {
	f.src.SetQueryable(v)
	return nil
}

// legendEntryFlavor reads through to the entry's master interface, except
// for visibility, query and opacity changes which go to the children.
type legendEntryFlavor struct {
	unsupported
	entry *LegendEntry
}

func (f legendEntryFlavor) master() flavor {
	if m := f.entry.Master(); m != nil {
		return m.current()
	}
	return unsupported{}
}

func (f legendEntryFlavor) source() any                          { return f.entry }
func (f legendEntryFlavor) name() (string, error)                { return f.master().name() }
func (f legendEntryFlavor) symbology() (*SymbologyBundle, error) { return f.master().symbology() }
func (f legendEntryFlavor) layerType() (LayerType, error)        { return f.master().layerType() }
func (f legendEntryFlavor) geometryType() (string, error)        { return f.master().geometryType() }
func (f legendEntryFlavor) featureCount() (int, error)           { return f.master().featureCount() }
func (f legendEntryFlavor) state() (State, error)                { return f.master().state() }
func (f legendEntryFlavor) isRefreshing() (bool, error)          { return f.master().isRefreshing() }
func (f legendEntryFlavor) opacity() (float64, error)            { return f.master().opacity() }
func (f legendEntryFlavor) boundingBox() (bool, error)           { return f.master().boundingBox() }
func (f legendEntryFlavor) snapshot() (bool, error)              { return f.master().snapshot() }
func (f legendEntryFlavor) setBoundingBox(v bool) error          { return f.master().setBoundingBox(v) }
func (f legendEntryFlavor) visibility() (bool, error)            { return f.entry.Visibility(), nil }
func (f legendEntryFlavor) query() (bool, error)                 { return f.entry.IsQueryable(), nil }

func (f legendEntryFlavor) formattedAttributes(ctx context.Context) (*deferred.Deferred[*FormattedAttributes], error) {
	return f.master().formattedAttributes(ctx)
}

func (f legendEntryFlavor) setVisibility(v bool) error {
	f.entry.SetVisibility(v)
	return nil
}

func (f legendEntryFlavor) setQuery(v bool) error {
	f.entry.SetQueryable(v)
	return nil
}

func (f legendEntryFlavor) setOpacity(v float64) error {
	f.entry.SetOpacity(v)
	return nil
}
