package layer

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/layerkit/layerkit/pkg/config"
	"github.com/layerkit/layerkit/pkg/deferred"
	"github.com/layerkit/layerkit/pkg/geo"
	"github.com/layerkit/layerkit/pkg/telemetry"
)

// kind is what a concrete record adds to the shared lifecycle.
type kind interface {
	layerKind() config.LayerKind
	layerType() LayerType
	layerOptions(opts LayerOptions) LayerOptions

	// setup creates the feature classes once the physical layer has loaded.
	setup(ctx context.Context)

	featureCount(ctx context.Context) (int, error)
	rootFlavor(i *Interface)
	pointerEnter(e PointerEvent)
	pointerLeave(e PointerEvent)
}

// kindDefaults supplies the behaviour of records that add nothing.
type kindDefaults struct {
	rec *Record
}

func (k kindDefaults) layerOptions(opts LayerOptions) LayerOptions { return opts }

func (k kindDefaults) featureCount(context.Context) (int, error) { return 0, nil }

func (k kindDefaults) rootFlavor(i *Interface) { i.ConvertToSingleLayer(k.rec) }

func (k kindDefaults) pointerEnter(PointerEvent) {}

func (k kindDefaults) pointerLeave(PointerEvent) {}

// HoverEvent is fired to hover listeners of feature layers.
type HoverEvent struct {
	Type    string
	Point   geo.ScreenPoint
	Target  any
	Name    string
	SVGCode string
}

// Hover event types.
const (
	HoverMouseOver = "mouseOver"
	HoverTipLoaded = "tipLoaded"
	HoverMouseOut  = "mouseOut"
)

// Record tracks one physical layer: its load state, its feature classes and
// the zoom and scale helpers that act on it. Concrete kinds embed it.
type Record struct {
	cfg  config.LayerConfig
	svc  Services
	tel  *telemetry.Telemetry
	log  *telemetry.Logger
	obs  Observer
	kind kind

	mu          sync.RWMutex
	state       State
	name        string
	layer       PhysicalLayer
	prebuilt    bool
	featClasses map[string]FeatureClass
	defaultFC   string
	bbox        BoundingBox
	rootProxy   *Interface
	symbology   *SymbologyBundle
	userLayer   bool

	loadOnce       sync.Once
	stateListeners Listeners[State]
	hoverListeners Listeners[HoverEvent]
}

func newRecord(cfg *config.LayerConfig, svc Services, k kind) *Record {
	c := *cfg
	c.ApplyDefaults()

	tel := svc.Telemetry
	if tel == nil {
		tel = telemetry.Nop()
	}

	r := &Record{
		cfg:         c,
		svc:         svc,
		tel:         tel,
		log:         tel.Logger.NewComponentLogger("layer").WithLayerID(c.ID),
		obs:         Observers{telemetryObserver{tel: tel}, svc.Observer},
		kind:        k,
		state:       StateNew,
		name:        c.Name,
		featClasses: make(map[string]FeatureClass),
		defaultFC:   "0",
	}
	r.symbology = r.placeholderBundle(r.name)
	return r
}

// start either adopts a pre-built layer or builds a new one.
func (r *Record) start(prebuilt PhysicalLayer) error {
	if prebuilt != nil {
		r.mu.Lock()
		r.prebuilt = true
		r.layer = prebuilt
		r.state = StateLoaded
		if r.name == "" {
			r.name = prebuilt.Name()
		}
		r.mu.Unlock()

		r.bindEvents(prebuilt)
		// The load event of a pre-built layer has usually fired already.
		r.loadOnce.Do(func() { r.kind.setup(r.opCtx(context.Background())) })
		return nil
	}

	_, err := r.ConstructLayer()
	return err
}

// ConstructLayer asks the factory for the physical layer and binds its events.
// The record is LOADING before the events are bound, so a load event that
// fires during binding cannot be overtaken.
func (r *Record) ConstructLayer() (PhysicalLayer, error) {
	r.mu.RLock()
	prebuilt := r.prebuilt
	r.mu.RUnlock()
	if prebuilt {
		return nil, ErrPrebuiltLayer.WithLayer(r.cfg.ID)
	}
	if r.svc.Factory == nil {
		return nil, NewLoadError("no layer factory", nil).WithLayer(r.cfg.ID)
	}

	l, err := r.svc.Factory.NewLayer(r.kind.layerKind(), r.cfg.URL, r.MakeLayerConfig())
	if err != nil {
		return nil, NewLoadError("failed to construct layer", err).WithLayer(r.cfg.ID)
	}

	r.mu.Lock()
	r.layer = l
	r.mu.Unlock()
	r.stateChange(StateLoading)
	r.bindEvents(l)
	return l, nil
}

// MakeLayerConfig translates the configuration into engine options.
func (r *Record) MakeLayerConfig() LayerOptions {
	return r.kind.layerOptions(LayerOptions{
		ID:      r.cfg.ID,
		Opacity: r.cfg.State.OpacityValue(),
		Visible: r.cfg.State.IsVisible(),
	})
}

type selfBinder interface {
	Bind(h EventHandlers)
}

func (r *Record) bindEvents(l PhysicalLayer) {
	h := EventHandlers{
		Load:         r.onLoad,
		Error:        r.onError,
		UpdateStart:  r.onUpdateStart,
		UpdateEnd:    r.onUpdateEnd,
		PointerEnter: r.kind.pointerEnter,
		PointerLeave: r.kind.pointerLeave,
	}
	switch {
	case r.svc.Events != nil:
		r.svc.Events.Bind(l, h)
	default:
		if b, ok := l.(selfBinder); ok {
			b.Bind(h)
		}
	}
}

func (r *Record) onLoad() {
	r.loadOnce.Do(func() {
		ctx := r.opCtx(context.Background())

		r.mu.Lock()
		if r.name == "" {
			r.name = r.layer.Name()
		}
		r.mu.Unlock()
		r.log.Info("Layer loaded")

		r.kind.setup(ctx)

		if r.svc.EPSGLookup == nil || r.svc.Projection == nil {
			r.stateChange(StateLoaded)
			return
		}
		sr := r.layer.SpatialReference()
		go func() {
			if err := r.svc.Projection.CheckProjection(ctx, sr, r.svc.EPSGLookup); err != nil {
				r.fail(NewLoadError("projection lookup failed", err).WithLayer(r.cfg.ID))
				return
			}
			r.stateChange(StateLoaded)
		}()
	})
}

func (r *Record) onError(err error) {
	r.fail(NewLoadError("layer error", err).WithLayer(r.cfg.ID))
}

func (r *Record) fail(err *LayerError) {
	r.log.WithError(err).Warn("Layer error")
	r.tel.Metrics.RecordError(err.ErrorClass(), err.Code)
	r.stateChange(StateError)
}

func (r *Record) onUpdateStart() { r.stateChange(StateRefresh) }

func (r *Record) onUpdateEnd() { r.stateChange(StateLoaded) }

// stateChange moves to next and notifies observers and listeners. Moves the
// lifecycle does not allow are dropped.
func (r *Record) stateChange(next State) {
	r.mu.Lock()
	prev := r.state
	if !prev.CanTransition(next) {
		r.mu.Unlock()
		return
	}
	r.state = next
	r.mu.Unlock()

	r.obs.StateChanged(StateChange{
		LayerID:   r.cfg.ID,
		LayerType: r.kind.layerType(),
		From:      prev,
		To:        next,
		At:        time.Now(),
	})
	r.stateListeners.Fire(next)
}

// opCtx attaches the record's telemetry to ctx.
func (r *Record) opCtx(ctx context.Context) context.Context {
	if telemetry.FromTelemetryContext(ctx) == r.tel {
		return ctx
	}
	return r.tel.WithContext(ctx)
}

func (r *Record) placeholderBundle(name string) *SymbologyBundle {
	if name == "" {
		name = "?"
	}
	if r.svc.Symbology == nil {
		return NewSymbologyBundle()
	}
	return NewSymbologyBundle(r.svc.Symbology.PlaceholderSymbol(name, PlaceholderColour))
}

// registerFC stores fc under its index, optionally as the default class.
func (r *Record) registerFC(fc FeatureClass, asDefault bool) {
	r.mu.Lock()
	r.featClasses[fc.Index()] = fc
	if asDefault {
		r.defaultFC = fc.Index()
	}
	r.mu.Unlock()
}

// adoptSymbology loads fc's symbols and copies them into the record bundle.
func (r *Record) adoptSymbology(ctx context.Context, fc FeatureClass, style string) {
	d := fc.LoadSymbology(ctx)
	go func() {
		items, err := d.Wait(ctx)
		if err != nil {
			return
		}
		r.symbology.Replace(items...)
		if style != "" {
			r.symbology.SetRenderStyle(style)
		}
	}()
}

// LayerID is the configured layer id.
func (r *Record) LayerID() string { return r.cfg.ID }

// Config returns the merged configuration.
func (r *Record) Config() config.LayerConfig { return r.cfg }

// LayerType is the client type of the record.
func (r *Record) LayerType() LayerType { return r.kind.layerType() }

// State returns the raw load state.
func (r *Record) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Name is the configured name, or the name the layer reported on load.
func (r *Record) Name() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.name
}

// SetName overrides the display name.
func (r *Record) SetName(name string) {
	r.mu.Lock()
	r.name = name
	r.mu.Unlock()
}

// UserLayer reports whether the layer was added by a user.
func (r *Record) UserLayer() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.userLayer
}

// SetUserLayer marks the layer as added by a user.
func (r *Record) SetUserLayer(v bool) {
	r.mu.Lock()
	r.userLayer = v
	r.mu.Unlock()
}

// Layer returns the physical layer, nil before construction.
func (r *Record) Layer() PhysicalLayer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.layer
}

// Symbology returns the record level symbol bundle.
func (r *Record) Symbology() *SymbologyBundle { return r.symbology }

// Visibility reads the physical layer, true while there is none.
func (r *Record) Visibility() bool {
	if l := r.Layer(); l != nil {
		return l.Visible()
	}
	return true
}

// SetVisibility sets the physical layer visibility.
func (r *Record) SetVisibility(visible bool) {
	if l := r.Layer(); l != nil {
		l.SetVisibility(visible)
	}
}

// Opacity reads the physical layer, 1 while there is none.
func (r *Record) Opacity() float64 {
	if l := r.Layer(); l != nil {
		return l.Opacity()
	}
	return 1
}

// SetOpacity sets the physical layer opacity.
func (r *Record) SetOpacity(opacity float64) {
	if l := r.Layer(); l != nil {
		l.SetOpacity(opacity)
	}
}

// SpatialReference of the physical layer.
func (r *Record) SpatialReference() geo.SpatialReference {
	if l := r.Layer(); l != nil {
		return l.SpatialReference()
	}
	return geo.SpatialReference{}
}

// AddStateListener registers fn for state changes.
func (r *Record) AddStateListener(fn func(State)) Token { return r.stateListeners.Add(fn) }

// RemoveStateListener unregisters a state listener.
func (r *Record) RemoveStateListener(tok Token) error { return r.stateListeners.Remove(tok) }

// AddHoverListener registers fn for hover events.
func (r *Record) AddHoverListener(fn func(HoverEvent)) Token { return r.hoverListeners.Add(fn) }

// RemoveHoverListener unregisters a hover listener.
func (r *Record) RemoveHoverListener(tok Token) error { return r.hoverListeners.Remove(tok) }

// FeatureClass returns the class registered under idx.
func (r *Record) FeatureClass(idx string) (FeatureClass, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fc, ok := r.featClasses[idx]
	return fc, ok
}

// FeatureClassIndexes lists the registered indexes in order.
func (r *Record) FeatureClassIndexes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.featClasses))
	for k := range r.featClasses {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// DefaultFC returns the default feature class, nil before load.
func (r *Record) DefaultFC() FeatureClass {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.featClasses[r.defaultFC]
}

func (r *Record) defaultClass() (FeatureClass, error) {
	fc := r.DefaultFC()
	if fc == nil {
		return nil, NewUsageError("layer has no feature class before load").WithLayer(r.cfg.ID)
	}
	return fc, nil
}

// CreateBBox builds the bounding box once and returns it.
func (r *Record) CreateBBox(sr geo.SpatialReference) BoundingBox {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bbox == nil && r.svc.BBoxes != nil && r.layer != nil {
		r.bbox = r.svc.BBoxes.MakeBoundingBox("bbox_"+r.layer.ID(), r.layer.FullExtent(), sr)
	}
	return r.bbox
}

// DestroyBBox removes the bounding box from the map and forgets it.
func (r *Record) DestroyBBox(m MapView) {
	r.mu.Lock()
	b := r.bbox
	r.bbox = nil
	r.mu.Unlock()
	if b != nil && m != nil {
		m.RemoveLayer(b.ID())
	}
}

// BBox returns the bounding box, nil when none was created.
func (r *Record) BBox() BoundingBox {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.bbox
}

// IsBBoxVisible reports whether a bounding box exists and is shown.
func (r *Record) IsBBoxVisible() bool {
	b := r.BBox()
	return b != nil && b.Visible()
}

// SetBBoxVisible shows or hides the bounding box if one was created.
func (r *Record) SetBBoxVisible(visible bool) {
	if b := r.BBox(); b != nil {
		b.SetVisibility(visible)
	}
}

// IsQueryable reads the default class.
func (r *Record) IsQueryable() bool {
	fc := r.DefaultFC()
	return fc != nil && fc.Queryable()
}

// SetQueryable sets the default class.
func (r *Record) SetQueryable(queryable bool) {
	if fc := r.DefaultFC(); fc != nil {
		fc.SetQueryable(queryable)
	}
}

// VisibleScales returns the physical layer's scale range.
func (r *Record) VisibleScales() ScaleSet {
	if l := r.Layer(); l != nil {
		return l.ScaleSet()
	}
	return ScaleSet{}
}

// IsOffScale tests the default class against mapScale.
func (r *Record) IsOffScale(ctx context.Context, mapScale float64) (OffScaleResult, error) {
	fc, err := r.defaultClass()
	if err != nil {
		return OffScaleResult{}, err
	}
	return fc.IsOffScale(ctx, mapScale)
}

// LoadSymbology returns the default class symbols.
func (r *Record) LoadSymbology(ctx context.Context) *deferred.Deferred[[]SymbologyItem] {
	fc, err := r.defaultClass()
	if err != nil {
		return deferred.Rejected[[]SymbologyItem](err)
	}
	return fc.LoadSymbology(ctx)
}

// FeatureCount returns the number of features the layer serves. Layers
// without features report 0.
func (r *Record) FeatureCount(ctx context.Context) (int, error) {
	return r.kind.featureCount(r.opCtx(ctx))
}

// Proxy returns the facade of the layer root, creating it on first use.
func (r *Record) Proxy() *Interface {
	r.mu.Lock()
	if r.rootProxy != nil {
		p := r.rootProxy
		r.mu.Unlock()
		return p
	}
	p := NewInterface(r.cfg.Controls, r.cfg.DisabledControls)
	r.rootProxy = p
	r.mu.Unlock()

	r.kind.rootFlavor(p)
	return p
}

// Release records the removal of the layer from the map.
func (r *Record) Release(m MapView) {
	r.DestroyBBox(m)
	r.tel.Metrics.RecordLayerRemoved(string(r.LayerType()), string(r.State()))
}
