package layer

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/layerkit/layerkit/pkg/deferred"
	"github.com/layerkit/layerkit/pkg/telemetry"
)

// OffScaleResult tells whether a sublayer is hidden at a map scale and which
// way a zoom request should search for a visible level.
//
// ZoomIn is false when the map has zoomed in past the max scale. The naming
// follows the zoom helpers that consume it: with ZoomIn false they search the
// levels from the largest scale down.
type OffScaleResult struct {
	OffScale bool `json:"offScale"`
	ZoomIn   bool `json:"zoomIn"`
}

// OffScale applies the visible scale range to a map scale. Scales grow as the
// map zooms out. A zero bound is open; landing exactly on a bound is on scale.
func OffScale(mapScale float64, s ScaleSet) OffScaleResult {
	switch {
	case mapScale < s.MaxScale && s.MaxScale != 0:
		return OffScaleResult{OffScale: true, ZoomIn: false}
	case mapScale > s.MinScale && s.MinScale != 0:
		return OffScaleResult{OffScale: true, ZoomIn: true}
	default:
		return OffScaleResult{}
	}
}

// FeatureClass is one logical sublayer of a record.
type FeatureClass interface {
	Index() string
	State() State
	Queryable() bool
	SetQueryable(queryable bool)
	ScaleSet(ctx context.Context) (ScaleSet, error)
	IsOffScale(ctx context.Context, mapScale float64) (OffScaleResult, error)
	Visibility() bool
	SetVisibility(visible bool)
	GeomType() string
	Symbology() *SymbologyBundle
	LoadSymbology(ctx context.Context) *deferred.Deferred[[]SymbologyItem]
	AddVisibleListener(fn func()) Token
	RemoveVisibleListener(tok Token) error
}

// fcCore holds what every feature class shares. The scale and symbology
// sources are filled in by the concrete kind.
type fcCore struct {
	rec *Record
	idx string

	mu        sync.RWMutex
	queryable bool
	symbology *SymbologyBundle

	scales         func(ctx context.Context) (ScaleSet, error)
	fetchSymbology func(ctx context.Context) ([]SymbologyItem, error)
	renderStyle    string

	symMemo deferred.Memo[[]SymbologyItem]
	visible Listeners[struct{}]
}

func (c *fcCore) init(rec *Record, idx string, queryable bool) {
	c.rec = rec
	c.idx = idx
	c.queryable = queryable
	c.symbology = rec.placeholderBundle(rec.Name())
	c.symMemo.ClearOnError = true
	c.scales = c.layerScaleSet
	c.fetchSymbology = c.serviceLegend
}

// Index returns the service index of the sublayer, "0" for unindexed sources.
func (c *fcCore) Index() string { return c.idx }

// State is the load state of the owning record.
func (c *fcCore) State() State { return c.rec.State() }

// Queryable reports whether identify should include this sublayer.
func (c *fcCore) Queryable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.queryable
}

// SetQueryable toggles identify participation.
func (c *fcCore) SetQueryable(queryable bool) {
	c.mu.Lock()
	c.queryable = queryable
	c.mu.Unlock()
}

// ScaleSet returns the visible scale range.
func (c *fcCore) ScaleSet(ctx context.Context) (ScaleSet, error) {
	return c.scales(ctx)
}

// IsOffScale reports whether the sublayer is hidden at mapScale.
func (c *fcCore) IsOffScale(ctx context.Context, mapScale float64) (OffScaleResult, error) {
	s, err := c.scales(ctx)
	if err != nil {
		return OffScaleResult{}, err
	}
	return OffScale(mapScale, s), nil
}

// Visibility reads the physical layer.
func (c *fcCore) Visibility() bool {
	l := c.rec.Layer()
	return l != nil && l.Visible()
}

// SetVisibility sets the physical layer.
func (c *fcCore) SetVisibility(visible bool) {
	if l := c.rec.Layer(); l != nil {
		l.SetVisibility(visible)
	}
	c.visibleChanged(visible)
}

// Symbology returns the bundle legends bind to.
func (c *fcCore) Symbology() *SymbologyBundle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.symbology
}

// adoptSymbology makes b the bundle this class fills. It is used to keep a
// placeholder's bundle alive when the real class takes over.
func (c *fcCore) adoptSymbology(b *SymbologyBundle) {
	c.mu.Lock()
	c.symbology = b
	c.mu.Unlock()
}

// LoadSymbology fetches the real symbols once and writes them into the
// bundle. Concurrent callers share the fetch; a failed fetch is retried by
// the next call.
func (c *fcCore) LoadSymbology(ctx context.Context) *deferred.Deferred[[]SymbologyItem] {
	ctx = context.WithoutCancel(c.rec.opCtx(ctx))
	return c.symMemo.Get(func() ([]SymbologyItem, error) {
		items, err := c.fetchSymbology(ctx)
		if err != nil {
			c.rec.tel.Metrics.RecordSymbologyLoad(telemetry.OutcomeFailure)
			c.rec.log.WithSublayer(c.idx).WithError(err).Warn("symbology load failed")
			return nil, err
		}
		c.rec.tel.Metrics.RecordSymbologyLoad(telemetry.OutcomeSuccess)
		b := c.Symbology()
		b.Replace(items...)
		if c.renderStyle != "" {
			b.SetRenderStyle(c.renderStyle)
		}
		return items, nil
	})
}

// AddVisibleListener registers fn to run whenever the sublayer becomes visible.
func (c *fcCore) AddVisibleListener(fn func()) Token {
	return c.visible.Add(func(struct{}) { fn() })
}

// RemoveVisibleListener unregisters a visible listener.
func (c *fcCore) RemoveVisibleListener(tok Token) error {
	return c.visible.Remove(tok)
}

// visibleChanged notifies listeners. Only becoming visible is reported.
func (c *fcCore) visibleChanged(visible bool) {
	if visible {
		c.visible.Fire(struct{}{})
	}
}

func (c *fcCore) layerScaleSet(context.Context) (ScaleSet, error) {
	l := c.rec.Layer()
	if l == nil {
		return ScaleSet{}, nil
	}
	return l.ScaleSet(), nil
}

func (c *fcCore) serviceLegend(ctx context.Context) ([]SymbologyItem, error) {
	l := c.rec.Layer()
	if l == nil || l.URL() == "" {
		return nil, ErrNoRendererNoURL
	}
	if c.rec.svc.Symbology == nil {
		return nil, ErrNotSupported
	}
	base, idx := splitLayerURL(l.URL())
	if idx == "" {
		base, idx = l.URL(), c.idx
	}
	return c.rec.svc.Symbology.MapServerLegend(ctx, base, idx)
}

// splitLayerURL separates a trailing numeric sublayer index from a service url.
func splitLayerURL(u string) (base, idx string) {
	u = strings.TrimRight(u, "/")
	i := strings.LastIndex(u, "/")
	if i < 0 {
		return u, ""
	}
	if _, err := strconv.Atoi(u[i+1:]); err != nil {
		return u, ""
	}
	return u[:i], u[i+1:]
}

// BasicFC is the feature class of tile and image layers: scales, visibility
// and the service legend.
type BasicFC struct {
	fcCore
}

func newBasicFC(rec *Record, idx string) *BasicFC {
	fc := &BasicFC{}
	fc.init(rec, idx, rec.cfg.State.IsQueryable())
	return fc
}

// GeomType is "none"; basic sources carry no geometry.
func (fc *BasicFC) GeomType() string { return "none" }

// PlaceholderFC stands in for a sublayer whose data is not known yet.
type PlaceholderFC struct {
	rec       *Record
	name      string
	symbology *SymbologyBundle
}

// NewPlaceholderFC builds a placeholder for a sublayer of rec.
func NewPlaceholderFC(rec *Record, name string) *PlaceholderFC {
	return &PlaceholderFC{
		rec:       rec,
		name:      name,
		symbology: rec.placeholderBundle(name),
	}
}

// Name returns the name the placeholder was created with.
func (p *PlaceholderFC) Name() string { return p.name }

// Visibility is always true.
func (p *PlaceholderFC) Visibility() bool { return true }

// Symbology returns the placeholder bundle.
func (p *PlaceholderFC) Symbology() *SymbologyBundle { return p.symbology }

// State is the owning record's state.
func (p *PlaceholderFC) State() State { return p.rec.State() }
