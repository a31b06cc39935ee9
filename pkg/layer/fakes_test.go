package layer

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"sync"

	"github.com/layerkit/layerkit/pkg/config"
	"github.com/layerkit/layerkit/pkg/geo"
)

var webMercator = geo.SpatialReference{WKID: 102100}

// fakeLayer is an engine layer driven by the test through its handlers.
type fakeLayer struct {
	mu       sync.Mutex
	id       string
	name     string
	url      string
	visible  bool
	opacity  float64
	scales   ScaleSet
	extent   geo.Extent
	graphics []Graphic
	handlers EventHandlers
}

func newFakeLayer(id, name, u string) *fakeLayer {
	return &fakeLayer{
		id:      id,
		name:    name,
		url:     u,
		visible: true,
		opacity: 1,
		extent:  geo.NewExtent(0, 0, 100, 100, webMercator),
	}
}

func (l *fakeLayer) Bind(h EventHandlers) {
	l.mu.Lock()
	l.handlers = h
	l.mu.Unlock()
}

func (l *fakeLayer) fire(fn func(h EventHandlers)) {
	l.mu.Lock()
	h := l.handlers
	l.mu.Unlock()
	fn(h)
}

func (l *fakeLayer) load()                  { l.fire(func(h EventHandlers) { h.Load() }) }
func (l *fakeLayer) fail(err error)         { l.fire(func(h EventHandlers) { h.Error(err) }) }
func (l *fakeLayer) updateStart()           { l.fire(func(h EventHandlers) { h.UpdateStart() }) }
func (l *fakeLayer) updateEnd()             { l.fire(func(h EventHandlers) { h.UpdateEnd() }) }
func (l *fakeLayer) enter(e PointerEvent)   { l.fire(func(h EventHandlers) { h.PointerEnter(e) }) }
func (l *fakeLayer) leave(e PointerEvent)   { l.fire(func(h EventHandlers) { h.PointerLeave(e) }) }
func (l *fakeLayer) ID() string             { return l.id }
func (l *fakeLayer) Name() string           { return l.name }
func (l *fakeLayer) URL() string            { return l.url }
func (l *fakeLayer) ScaleSet() ScaleSet     { return l.scales }
func (l *fakeLayer) FullExtent() geo.Extent { return l.extent }
func (l *fakeLayer) Graphics() []Graphic    { return l.graphics }

func (l *fakeLayer) SpatialReference() geo.SpatialReference { return webMercator }

func (l *fakeLayer) Visible() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.visible
}

func (l *fakeLayer) SetVisibility(v bool) {
	l.mu.Lock()
	l.visible = v
	l.mu.Unlock()
}

func (l *fakeLayer) Opacity() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.opacity
}

func (l *fakeLayer) SetOpacity(o float64) {
	l.mu.Lock()
	l.opacity = o
	l.mu.Unlock()
}

type fakeFeatureLayer struct {
	*fakeLayer
	geomType     string
	displayField string
	hits         []Graphic
	queries      []Query
}

// cachedFeatureLayer fires load while its events are being bound, the way an
// engine does for a layer it already has in memory.
type cachedFeatureLayer struct {
	*fakeFeatureLayer
}

func (l *cachedFeatureLayer) Bind(h EventHandlers) {
	l.fakeLayer.Bind(h)
	h.Load()
}

func (l *fakeFeatureLayer) DisplayField() string { return l.displayField }
func (l *fakeFeatureLayer) GeometryType() string { return l.geomType }

func (l *fakeFeatureLayer) QueryFeatures(_ context.Context, q Query) ([]Graphic, error) {
	l.mu.Lock()
	l.queries = append(l.queries, q)
	l.mu.Unlock()
	return l.hits, nil
}

type fakeDynamicLayer struct {
	*fakeLayer
	dynamic bool
	infos   []SublayerInfo

	pushed  [][]int
	drawing []map[int]DrawingOptions
}

func (l *fakeDynamicLayer) SupportsDynamicLayers() bool { return l.dynamic }
func (l *fakeDynamicLayer) LayerInfos() []SublayerInfo  { return l.infos }

func (l *fakeDynamicLayer) VisibleLayers() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.pushed) == 0 {
		return nil
	}
	return l.pushed[len(l.pushed)-1]
}

func (l *fakeDynamicLayer) SetVisibleLayers(indexes []int) {
	l.mu.Lock()
	l.pushed = append(l.pushed, append([]int(nil), indexes...))
	l.mu.Unlock()
}

func (l *fakeDynamicLayer) SetLayerDrawingOptions(opts map[int]DrawingOptions) {
	l.mu.Lock()
	l.drawing = append(l.drawing, opts)
	l.mu.Unlock()
}

type fakeWMSLayer struct {
	*fakeLayer
	infos []WMSLayerInfo
}

func (l *fakeWMSLayer) LayerInfos() []WMSLayerInfo { return l.infos }

// fakeFactory hands out a prepared layer and records the options it was given.
type fakeFactory struct {
	layer PhysicalLayer
	err   error

	kind config.LayerKind
	opts LayerOptions
}

func (f *fakeFactory) NewLayer(kind config.LayerKind, _ string, opts LayerOptions) (PhysicalLayer, error) {
	f.kind = kind
	f.opts = opts
	return f.layer, f.err
}

type fakePackage struct {
	mu      sync.Mutex
	attribs *AttributeData
	data    *LayerData
	err     error
	dataErr error
	calls   int
}

func (p *fakePackage) Attribs(context.Context) (*AttributeData, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return p.attribs, nil
}

func (p *fakePackage) LayerData(context.Context) (*LayerData, error) {
	if p.dataErr != nil {
		return nil, p.dataErr
	}
	return p.data, nil
}

func (p *fakePackage) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type fakeLoader struct {
	bundle *AttributeBundle
}

func (f fakeLoader) LoadLayerAttribs(PhysicalLayer) *AttributeBundle { return f.bundle }

func bundleOf(pkgs map[string]*fakePackage, order ...string) *AttributeBundle {
	b := &AttributeBundle{Indexes: order, Packages: make(map[string]LayerPackage)}
	for k, v := range pkgs {
		b.Packages[k] = v
	}
	return b
}

type fakeSymbology struct{}

func (fakeSymbology) MapServerLegend(_ context.Context, _, index string) ([]SymbologyItem, error) {
	return []SymbologyItem{{Name: "legend " + index, SVGCode: "<svg/>"}}, nil
}

func (fakeSymbology) GraphicIcon(map[string]any, *Renderer) string { return "<svg icon/>" }

func (fakeSymbology) PlaceholderSymbol(name, colour string) SymbologyItem {
	return SymbologyItem{Name: name, SVGCode: colour}
}

// fakeRequester answers queries from a script of responses, repeating the
// last one when the script runs out.
type fakeRequester struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	endpoints []string
}

func (r *fakeRequester) Query(_ context.Context, endpoint string, _ url.Values) (json.RawMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.endpoints)
	r.endpoints = append(r.endpoints, endpoint)

	if n < len(r.errs) && r.errs[n] != nil {
		return nil, r.errs[n]
	}
	if len(r.responses) == 0 {
		return nil, errors.New("no response")
	}
	if n >= len(r.responses) {
		n = len(r.responses) - 1
	}
	return json.RawMessage(r.responses[n]), nil
}

func (r *fakeRequester) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.endpoints)
}

type fakeIdentifier struct {
	hits []IdentifyHit
	err  error
}

func (f fakeIdentifier) Identify(context.Context, DynamicLayer, IdentifyOptions) ([]IdentifyHit, error) {
	return f.hits, f.err
}

// gatedIdentifier holds its answer until release is closed.
type gatedIdentifier struct {
	hits    []IdentifyHit
	release chan struct{}
}

func (f gatedIdentifier) Identify(ctx context.Context, _ DynamicLayer, _ IdentifyOptions) ([]IdentifyHit, error) {
	select {
	case <-f.release:
		return f.hits, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type fakeOGC struct {
	info string
	err  error
}

func (f fakeOGC) LegendURLs(_ WMSLayer, ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = "https://wms.test/legend?layer=" + id
	}
	return out
}

func (f fakeOGC) GetFeatureInfo(context.Context, WMSLayer, MapView, ClickEvent, []string, string) (string, error) {
	return f.info, f.err
}

type fakeMap struct {
	mu      sync.Mutex
	extent  geo.Extent
	widthPx int
	scale   float64
	centre  *geo.Point
	removed []string
}

func newFakeMap() *fakeMap {
	return &fakeMap{extent: geo.NewExtent(0, 0, 1000, 500, webMercator), widthPx: 100}
}

func (m *fakeMap) Extent() geo.Extent                     { return m.extent }
func (m *fakeMap) WidthPx() int                           { return m.widthPx }
func (m *fakeMap) SpatialReference() geo.SpatialReference { return webMercator }

func (m *fakeMap) SetScale(_ context.Context, scale float64) error {
	m.mu.Lock()
	m.scale = scale
	m.mu.Unlock()
	return nil
}

func (m *fakeMap) CenterAt(_ context.Context, p geo.Point) error {
	m.mu.Lock()
	m.centre = &p
	m.mu.Unlock()
	return nil
}

func (m *fakeMap) SetExtent(_ context.Context, e geo.Extent) error {
	m.mu.Lock()
	m.extent = e
	m.mu.Unlock()
	return nil
}

func (m *fakeMap) RemoveLayer(id string) {
	m.mu.Lock()
	m.removed = append(m.removed, id)
	m.mu.Unlock()
}

type fakeBBox struct {
	id      string
	visible bool
}

func (b *fakeBBox) ID() string           { return b.id }
func (b *fakeBBox) Visible() bool        { return b.visible }
func (b *fakeBBox) SetVisibility(v bool) { b.visible = v }

type fakeBBoxFactory struct{ made int }

func (f *fakeBBoxFactory) MakeBoundingBox(id string, _ geo.Extent, _ geo.SpatialReference) BoundingBox {
	f.made++
	return &fakeBBox{id: id}
}

type fakeProjection struct{}

func (fakeProjection) ProjectExtent(e geo.Extent, sr geo.SpatialReference) (geo.Extent, error) {
	e.SR = sr
	return e, nil
}

func (fakeProjection) CheckProjection(context.Context, geo.SpatialReference, EPSGLookup) error {
	return nil
}

// recordingObserver keeps every report it receives.
type recordingObserver struct {
	mu       sync.Mutex
	changes  []StateChange
	identify []IdentifyReport
}

func (o *recordingObserver) StateChanged(c StateChange) {
	o.mu.Lock()
	o.changes = append(o.changes, c)
	o.mu.Unlock()
}

func (o *recordingObserver) IdentifyCompleted(r IdentifyReport) {
	o.mu.Lock()
	o.identify = append(o.identify, r)
	o.mu.Unlock()
}

func (o *recordingObserver) states() []State {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]State, 0, len(o.changes))
	for _, c := range o.changes {
		out = append(out, c.To)
	}
	return out
}

func (o *recordingObserver) identifyReports() []IdentifyReport {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]IdentifyReport(nil), o.identify...)
}
