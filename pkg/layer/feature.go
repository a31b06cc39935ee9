package layer

import (
	"context"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"

	"github.com/layerkit/layerkit/pkg/config"
	"github.com/layerkit/layerkit/pkg/deferred"
)

// FeatureRecord is a layer serving a single feature class, either from a
// feature service or from a file loaded into the engine.
type FeatureRecord struct {
	*Record
	kindDefaults

	countMu sync.RWMutex
	count   int
}

// NewFeatureRecord builds the record. With a pre-built layer the record is
// loaded immediately; otherwise the engine layer is constructed and loads
// asynchronously.
func NewFeatureRecord(cfg *config.LayerConfig, svc Services, prebuilt PhysicalLayer) (*FeatureRecord, error) {
	r := &FeatureRecord{count: -1}
	r.Record = newRecord(cfg, svc, r)
	r.kindDefaults = kindDefaults{rec: r.Record}
	if err := r.start(prebuilt); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *FeatureRecord) layerKind() config.LayerKind { return config.KindFeature }
func (r *FeatureRecord) layerType() LayerType        { return TypeFeature }

func (r *FeatureRecord) layerOptions(opts LayerOptions) LayerOptions {
	opts.Mode = ModeOnDemand
	if r.cfg.State.IsSnapshot() {
		opts.Mode = ModeSnapshot
	}
	return opts
}

func (r *FeatureRecord) rootFlavor(i *Interface) { i.ConvertToFeatureLayer(r) }

func (r *FeatureRecord) setup(ctx context.Context) {
	if r.svc.Attributes == nil {
		r.log.Warn("no attribute loader, feature class not created")
		return
	}
	bundle := r.svc.Attributes.LoadLayerAttribs(r.Layer())
	if bundle == nil || len(bundle.Indexes) == 0 {
		r.log.Warn("attribute loader returned no sublayers")
		return
	}

	idx := bundle.Indexes[0]
	fc := newAttribFC(r.Record, idx, bundle.Packages[idx], r.cfg.State.IsQueryable())
	fc.nameField = r.cfg.NameField
	fc.adoptSymbology(r.symbology)
	r.registerFC(fc, true)
	fc.LoadSymbology(ctx)

	go func() {
		n, err := r.featureCount(ctx)
		if err != nil {
			return
		}
		r.countMu.Lock()
		r.count = n
		r.countMu.Unlock()
	}()
}

func (r *FeatureRecord) featureCount(ctx context.Context) (int, error) {
	return r.countFeatures(ctx, r.cfg.URL, r.defaultFC)
}

// CachedFeatureCount is the count fetched on load, -1 until it arrives.
func (r *FeatureRecord) CachedFeatureCount() int {
	r.countMu.RLock()
	defer r.countMu.RUnlock()
	return r.count
}

// IsFileLayer reports whether the features came from a file rather than a
// service.
func (r *FeatureRecord) IsFileLayer() bool { return r.cfg.URL == "" }

// IsSnapshot reports whether the layer loads all features up front.
func (r *FeatureRecord) IsSnapshot() bool { return r.cfg.State.IsSnapshot() }

// GeomType is the engine's geometry type for the layer.
func (r *FeatureRecord) GeomType() string {
	if fl, ok := r.Layer().(FeatureLayer); ok {
		return fl.GeometryType()
	}
	return ""
}

func (r *FeatureRecord) attribFC() (*AttribFC, error) {
	fc, err := r.defaultClass()
	if err != nil {
		return nil, err
	}
	afc, ok := fc.(*AttribFC)
	if !ok {
		return nil, ErrNotSupported
	}
	return afc, nil
}

// FormattedAttributes returns the datagrid table of the layer.
func (r *FeatureRecord) FormattedAttributes(ctx context.Context) *deferred.Deferred[*FormattedAttributes] {
	fc, err := r.attribFC()
	if err != nil {
		return deferred.Rejected[*FormattedAttributes](err)
	}
	return fc.FormattedAttributes(ctx)
}

// Attribs returns the attribute download of the layer.
func (r *FeatureRecord) Attribs(ctx context.Context) *deferred.Deferred[*AttributeData] {
	fc, err := r.attribFC()
	if err != nil {
		return deferred.Rejected[*AttributeData](err)
	}
	return fc.Attribs(ctx)
}

// LayerData returns the metadata of the layer.
func (r *FeatureRecord) LayerData(ctx context.Context) *deferred.Deferred[*LayerData] {
	fc, err := r.attribFC()
	if err != nil {
		return deferred.Rejected[*LayerData](err)
	}
	return fc.LayerData(ctx)
}

// CleanUpAttribs drops the cached attributes.
func (r *FeatureRecord) CleanUpAttribs() {
	if fc, err := r.attribFC(); err == nil {
		fc.CleanUpAttribs()
	}
}

func (r *FeatureRecord) pointerEnter(e PointerEvent) {
	if r.hoverListeners.Len() == 0 {
		return
	}
	r.hoverListeners.Fire(HoverEvent{Type: HoverMouseOver, Point: e.ScreenPoint, Target: e.Target})

	fc, err := r.attribFC()
	if err != nil || e.Graphic == nil {
		return
	}
	go func() {
		ctx := r.opCtx(context.Background())
		lData, err := fc.LayerData(ctx).Wait(ctx)
		if err != nil {
			return
		}
		aData, err := fc.Attribs(ctx).Wait(ctx)
		if err != nil {
			return
		}

		oid := OIDKey(e.Graphic.Attributes[lData.OIDField])
		attrs := featureAttributes(aData, oid, e.Graphic.Attributes)
		name, err := fc.FeatureName(ctx, oid, attrs)
		if err != nil {
			return
		}
		r.hoverListeners.Fire(HoverEvent{
			Type:    HoverTipLoaded,
			Name:    name,
			Target:  e.Target,
			SVGCode: r.graphicIcon(attrs, lData.Renderer),
		})
	}()
}

func (r *FeatureRecord) pointerLeave(e PointerEvent) {
	r.hoverListeners.Fire(HoverEvent{Type: HoverMouseOut, Target: e.Target})
}

func (r *Record) graphicIcon(attrs map[string]any, renderer *Renderer) string {
	if r.svc.Symbology == nil || renderer == nil {
		return ""
	}
	return r.svc.Symbology.GraphicIcon(attrs, renderer)
}

// featureAttributes finds the downloaded attributes of oid, falling back to
// the attributes the engine holds.
func featureAttributes(aData *AttributeData, oid string, fallback map[string]any) map[string]any {
	if pos, ok := aData.OIDIndex[oid]; ok && pos < len(aData.Features) {
		return aData.Features[pos].Attributes
	}
	return fallback
}

// Identify queries the features under the click. Polygon service layers use
// the caller's geometry when one is given; everything else uses a buffer
// around the click point.
func (r *FeatureRecord) Identify(ctx context.Context, opts IdentifyOptions) IdentifyBatch {
	fc, err := r.attribFC()
	fl, ok := r.Layer().(FeatureLayer)
	if err != nil || !ok {
		return emptyBatch()
	}

	res := NewIdentifyResult(opts.RequestID, ResultRequester{
		Name:       r.Name(),
		Symbology:  r.symbology,
		Format:     FormatEsri,
		LayerID:    r.cfg.ID,
		FeatureIdx: fc.Index(),
	})

	var geom orb.Geometry
	switch {
	case fl.GeometryType() == "esriGeometryPolygon" && !r.IsFileLayer() && opts.Geometry != nil:
		geom = opts.Geometry
	case opts.Map != nil:
		tol := opts.Tolerance
		if tol == 0 {
			tol = r.cfg.Tolerance
		}
		geom = MakeClickBuffer(opts.Click.MapPoint, opts.Map, tol).Bound
	default:
		err := NewUsageError("identify needs a map or a query geometry").WithLayer(r.cfg.ID)
		res.Complete()
		return IdentifyBatch{Results: []*IdentifyResult{res}, Done: deferred.Rejected[struct{}](err)}
	}

	ctx = context.WithoutCancel(r.opCtx(ctx))
	done := deferred.Go(func() (struct{}, error) {
		start := time.Now()
		ctx, span := r.tel.Tracer.StartIdentifySpan(ctx, opts.RequestID, r.cfg.ID, []string{fc.Index()})
		defer span.End()

		var (
			aData *AttributeData
			hits  []Graphic
			lData *LayerData
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			aData, err = fc.Attribs(gctx).Wait(gctx)
			return err
		})
		g.Go(func() (err error) {
			hits, err = fl.QueryFeatures(gctx, Query{
				Geometry:  geom,
				SR:        opts.Click.MapPoint.SR,
				OutFields: []string{"*"},
			})
			return err
		})
		g.Go(func() (err error) {
			lData, err = fc.LayerData(gctx).Wait(gctx)
			return err
		})

		err := g.Wait()
		if err == nil {
			items := make([]IdentifyItem, 0, len(hits))
			for _, hit := range hits {
				oidVal := hit.Attributes[lData.OIDField]
				oid := OIDKey(oidVal)
				attrs := featureAttributes(aData, oid, hit.Attributes)
				name, err := fc.FeatureName(ctx, oid, attrs)
				if err != nil {
					r.log.WithSublayer(fc.Index()).WithError(err).Debug("feature name lookup failed")
					name = "Feature " + oid
				}
				items = append(items, IdentifyItem{
					Name:      name,
					Details:   AttributesToDetails(attrs, lData.Fields),
					OID:       oidVal,
					Symbology: []SymbologyItem{{SVGCode: r.graphicIcon(attrs, lData.Renderer)}},
				})
			}
			res.Complete(items...)
		} else {
			res.Complete()
		}

		r.obs.IdentifyCompleted(IdentifyReport{
			RequestID: opts.RequestID,
			LayerID:   r.cfg.ID,
			LayerType: TypeFeature,
			Sublayers: []string{fc.Index()},
			Hits:      len(res.Data()),
			Duration:  time.Since(start),
			Err:       err,
		})
		return struct{}{}, err
	})

	return IdentifyBatch{Results: []*IdentifyResult{res}, Done: done}
}
