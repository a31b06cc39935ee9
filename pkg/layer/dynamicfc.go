package layer

import (
	"context"
	"strconv"
	"sync"
)

// DynamicFC is one sublayer of a dynamic layer. Its visibility lives in the
// record's visible index set and its scales come from its own metadata.
type DynamicFC struct {
	*AttribFC

	dyn    *DynamicRecord
	intIdx int

	dmu          sync.RWMutex
	name         string
	opacity      float64
	layerType    LayerType
	geomType     string
	featureCount int
}

func newDynamicFC(dyn *DynamicRecord, idx string, pkg LayerPackage, sub NodeConfig, infoName string) *DynamicFC {
	intIdx, _ := strconv.Atoi(idx)
	fc := &DynamicFC{
		AttribFC:     newAttribFC(dyn.Record, idx, pkg, sub.State.IsQueryable()),
		dyn:          dyn,
		intIdx:       intIdx,
		name:         infoName,
		opacity:      1,
		featureCount: -1,
	}
	if sub.Name != "" {
		fc.name = sub.Name
	}
	fc.scales = fc.metadataScaleSet
	fc.SetOpacity(sub.State.OpacityValue())
	return fc
}

func (fc *DynamicFC) metadataScaleSet(ctx context.Context) (ScaleSet, error) {
	ld, err := fc.LayerData(ctx).Wait(ctx)
	if err != nil {
		return ScaleSet{}, err
	}
	return ScaleSet{MinScale: ld.MinScale, MaxScale: ld.MaxScale}, nil
}

// Name is the configured name, or the name the server reports.
func (fc *DynamicFC) Name() string {
	fc.dmu.RLock()
	defer fc.dmu.RUnlock()
	return fc.name
}

// LayerType is the client type derived from the server metadata, empty
// until the metadata arrives.
func (fc *DynamicFC) LayerType() LayerType {
	fc.dmu.RLock()
	defer fc.dmu.RUnlock()
	return fc.layerType
}

// GeomType is the geometry type of feature sublayers.
func (fc *DynamicFC) GeomType() string {
	fc.dmu.RLock()
	defer fc.dmu.RUnlock()
	return fc.geomType
}

// FeatureCount is the count fetched on load, -1 until it arrives.
func (fc *DynamicFC) FeatureCount() int {
	fc.dmu.RLock()
	defer fc.dmu.RUnlock()
	return fc.featureCount
}

func (fc *DynamicFC) setServerType(t LayerType, geomType string) {
	fc.dmu.Lock()
	fc.layerType = t
	if t == TypeFeature {
		fc.geomType = geomType
	}
	fc.dmu.Unlock()
}

func (fc *DynamicFC) setFeatureCount(n int) {
	fc.dmu.Lock()
	fc.featureCount = n
	fc.dmu.Unlock()
}

// Opacity is the last opacity set on the sublayer.
func (fc *DynamicFC) Opacity() float64 {
	fc.dmu.RLock()
	defer fc.dmu.RUnlock()
	return fc.opacity
}

// SetOpacity stores the opacity and, when the server can draw sublayers
// individually, sends it as a transparency from 0 to 100.
func (fc *DynamicFC) SetOpacity(opacity float64) {
	fc.dmu.Lock()
	fc.opacity = opacity
	fc.dmu.Unlock()

	dl, ok := fc.rec.Layer().(DynamicLayer)
	if !ok || !dl.SupportsDynamicLayers() {
		return
	}
	dl.SetLayerDrawingOptions(map[int]DrawingOptions{
		fc.intIdx: {Transparency: (opacity - 1) * -100},
	})
}

// Visibility reports whether the sublayer index is in the visible set.
func (fc *DynamicFC) Visibility() bool {
	return fc.dyn.visible.Contains(fc.intIdx)
}

// SetVisibility adds or removes the sublayer index from the visible set and
// pushes the set to the engine.
func (fc *DynamicFC) SetVisibility(visible bool) {
	if visible {
		fc.dyn.visible.Add(fc.intIdx)
	} else {
		fc.dyn.visible.Remove(fc.intIdx)
	}
	fc.dyn.pushVisible()
	fc.visibleChanged(visible)
}
