package layer

import (
	"context"
	"sync"

	"github.com/layerkit/layerkit/pkg/config"
	"github.com/layerkit/layerkit/pkg/deferred"
)

// flavor is the accessor set an Interface currently exposes. Accessors a
// flavor does not override report ErrNotSupported.
type flavor interface {
	source() any
	name() (string, error)
	symbology() (*SymbologyBundle, error)
	layerType() (LayerType, error)
	geometryType() (string, error)
	featureCount() (int, error)
	state() (State, error)
	isRefreshing() (bool, error)
	visibility() (bool, error)
	opacity() (float64, error)
	boundingBox() (bool, error)
	query() (bool, error)
	snapshot() (bool, error)
	formattedAttributes(ctx context.Context) (*deferred.Deferred[*FormattedAttributes], error)
	setVisibility(v bool) error
	setOpacity(v float64) error
	setBoundingBox(v bool) error
	setQuery(v bool) error
	setSnapshot(v bool) error
}

type unsupported struct{}

func (unsupported) source() any                          { return nil }
func (unsupported) name() (string, error)                { return "", ErrNotSupported }
func (unsupported) symbology() (*SymbologyBundle, error) { return nil, ErrNotSupported }
func (unsupported) layerType() (LayerType, error)        { return "", ErrNotSupported }
func (unsupported) geometryType() (string, error)        { return "", ErrNotSupported }
func (unsupported) featureCount() (int, error)           { return 0, ErrNotSupported }
func (unsupported) state() (State, error)                { return "", ErrNotSupported }
func (unsupported) isRefreshing() (bool, error)          { return false, ErrNotSupported }
func (unsupported) visibility() (bool, error)            { return false, ErrNotSupported }
func (unsupported) opacity() (float64, error)            { return 0, ErrNotSupported }
func (unsupported) boundingBox() (bool, error)           { return false, ErrNotSupported }
func (unsupported) query() (bool, error)                 { return false, ErrNotSupported }
func (unsupported) snapshot() (bool, error)              { return false, ErrNotSupported }
func (unsupported) setVisibility(bool) error             { return ErrNotSupported }
func (unsupported) setOpacity(float64) error             { return ErrNotSupported }
func (unsupported) setBoundingBox(bool) error            { return ErrNotSupported }
func (unsupported) setQuery(bool) error                  { return ErrNotSupported }
func (unsupported) setSnapshot(bool) error               { return ErrNotSupported }
func (unsupported) formattedAttributes(context.Context) (*deferred.Deferred[*FormattedAttributes], error) {
	return nil, ErrNotSupported
}

// rebinder is implemented by flavors whose source can be swapped without a
// flavor change.
type rebinder interface {
	rebind(src any) (flavor, error)
}

// Interface is the handle a legend binds to. It is created once per legend
// position and never replaced; converting it swaps the source and the
// accessors it exposes. A new Interface supports no accessor at all.
type Interface struct {
	mu            sync.RWMutex
	fl            flavor
	placeholder   bool
	available     *Shared[config.Control]
	disabled      *Shared[config.Control]
	leaves        *Shared[*Interface]
	staticContent bool
}

// NewInterface returns a placeholder interface exposing the given controls.
func NewInterface(available, disabled []config.Control) *Interface {
	return &Interface{
		fl:          unsupported{},
		placeholder: true,
		available:   NewShared(available...),
		disabled:    NewShared(disabled...),
	}
}

func (i *Interface) current() flavor {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.fl
}

func (i *Interface) convert(fl flavor, placeholder bool) {
	i.mu.Lock()
	i.fl = fl
	i.placeholder = placeholder
	i.mu.Unlock()
}

// IsPlaceholder reports whether the interface still stands in for data that
// has not loaded.
func (i *Interface) IsPlaceholder() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.placeholder
}

// IsStatic reports whether the interface was converted to static content.
func (i *Interface) IsStatic() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.staticContent
}

// AvailableControls is the shared list of controls the legend shows.
func (i *Interface) AvailableControls() *Shared[config.Control] { return i.available }

// DisabledControls is the shared list of controls shown but not usable.
func (i *Interface) DisabledControls() *Shared[config.Control] { return i.disabled }

// ChildLeaves returns the flattened leaf list of a dynamic group, nil for
// other flavors.
func (i *Interface) ChildLeaves() *Shared[*Interface] {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.leaves
}

// Source returns what the interface currently reads from.
func (i *Interface) Source() any { return i.current().source() }

func (i *Interface) Name() (string, error)                { return i.current().name() }
func (i *Interface) Symbology() (*SymbologyBundle, error) { return i.current().symbology() }
func (i *Interface) LayerType() (LayerType, error)        { return i.current().layerType() }
func (i *Interface) GeometryType() (string, error)        { return i.current().geometryType() }

// FeatureCount is -1 when the count is not known.
func (i *Interface) FeatureCount() (int, error) { return i.current().featureCount() }

// State is the collapsed load state.
func (i *Interface) State() (State, error) { return i.current().state() }

func (i *Interface) IsRefreshing() (bool, error) { return i.current().isRefreshing() }
func (i *Interface) Visibility() (bool, error)   { return i.current().visibility() }
func (i *Interface) Opacity() (float64, error)   { return i.current().opacity() }
func (i *Interface) BoundingBox() (bool, error)  { return i.current().boundingBox() }
func (i *Interface) Query() (bool, error)        { return i.current().query() }
func (i *Interface) Snapshot() (bool, error)     { return i.current().snapshot() }

// FormattedAttributes returns the datagrid table of the source.
func (i *Interface) FormattedAttributes(ctx context.Context) (*deferred.Deferred[*FormattedAttributes], error) {
	return i.current().formattedAttributes(ctx)
}

func (i *Interface) SetVisibility(v bool) error  { return i.current().setVisibility(v) }
func (i *Interface) SetOpacity(v float64) error  { return i.current().setOpacity(v) }
func (i *Interface) SetBoundingBox(v bool) error { return i.current().setBoundingBox(v) }
func (i *Interface) SetQuery(v bool) error       { return i.current().setQuery(v) }
func (i *Interface) SetSnapshot(v bool) error    { return i.current().setSnapshot(v) }

// UpdateSource points the current flavor at a new source of the same kind.
func (i *Interface) UpdateSource(src any) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	rb, ok := i.fl.(rebinder)
	if !ok {
		return ErrNotSupported
	}
	fl, err := rb.rebind(src)
	if err != nil {
		return err
	}
	i.fl = fl
	return nil
}

// ConvertToSingleLayer reads from a layer record.
func (i *Interface) ConvertToSingleLayer(src LayerSource) {
	i.convert(singleLayerFlavor{src: src}, false)
}

// ConvertToFeatureLayer reads from a feature layer record.
func (i *Interface) ConvertToFeatureLayer(src FeatureSource) {
	i.convert(featureLayerFlavor{singleLayerFlavor: singleLayerFlavor{src: src}, feat: src}, false)
}

// ConvertToDynamicLeaf reads from one dynamic sublayer.
func (i *Interface) ConvertToDynamicLeaf(fc *DynamicFC) {
	i.convert(dynamicLeafFlavor{fc: fc}, false)
}

// ConvertToDynamicGroup makes the interface a group of rec's sublayer
// groupID. The leaf list starts empty and is filled by the caller.
func (i *Interface) ConvertToDynamicGroup(rec *DynamicRecord, groupID, name string) *Shared[*Interface] {
	leaves := NewShared[*Interface]()
	i.mu.Lock()
	i.fl = dynamicGroupFlavor{rec: rec, groupID: groupID, groupName: name, leaves: leaves}
	i.placeholder = false
	i.leaves = leaves
	i.mu.Unlock()
	return leaves
}

// ConvertToStatic marks the interface as static legend content.
func (i *Interface) ConvertToStatic() {
	i.mu.Lock()
	i.placeholder = false
	i.staticContent = true
	i.mu.Unlock()
}

// ConvertToLegendGroup reads from a legend composite.
func (i *Interface) ConvertToLegendGroup(src legendComposite) {
	i.convert(legendGroupFlavor{src: src}, false)
}

// ConvertToLegendEntry reads from a legend entry.
func (i *Interface) ConvertToLegendEntry(src *LegendEntry) {
	i.convert(legendEntryFlavor{entry: src}, false)
}

// ConvertToPlaceholder reads from a placeholder feature class.
func (i *Interface) ConvertToPlaceholder(fc *PlaceholderFC) {
	i.convert(placeholderFlavor{fc: fc}, true)
}
