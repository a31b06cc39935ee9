package layer

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/layerkit/layerkit/pkg/config"
	"github.com/layerkit/layerkit/pkg/deferred"
	"github.com/layerkit/layerkit/pkg/geo"
)

// allInvisible is what the engine expects in place of an empty visible set.
const allInvisible = -1

// TreeNode mirrors the server's sublayer tree. Leaves have no children.
type TreeNode struct {
	ID       int        `json:"id"`
	Children []TreeNode `json:"childs,omitempty"`
}

// DynamicRecord is a map server layer drawing many sublayers in one image.
type DynamicRecord struct {
	*Record
	kindDefaults

	visible *IndexSet

	dmu     sync.RWMutex
	proxies map[string]*Interface
	tree    []TreeNode
	cascade *Cascade
	infos   map[int]SublayerInfo
}

// NewDynamicRecord builds the record. With a pre-built layer the sublayer
// tree is built immediately.
func NewDynamicRecord(cfg *config.LayerConfig, svc Services, prebuilt PhysicalLayer) (*DynamicRecord, error) {
	r := &DynamicRecord{
		visible: NewIndexSet(),
		proxies: make(map[string]*Interface),
	}
	r.Record = newRecord(cfg, svc, r)
	r.kindDefaults = kindDefaults{rec: r.Record}
	if err := r.start(prebuilt); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *DynamicRecord) layerKind() config.LayerKind { return config.KindDynamic }

func (r *DynamicRecord) layerType() LayerType { return TypeDynamic }

// VisibleIndexes is the shared set of visible sublayer indexes.
func (r *DynamicRecord) VisibleIndexes() *IndexSet { return r.visible }

func (r *DynamicRecord) pushVisible() {
	dl, ok := r.Layer().(DynamicLayer)
	if !ok {
		return
	}
	items := r.visible.Items()
	if len(items) == 0 {
		items = []int{allInvisible}
	}
	dl.SetVisibleLayers(items)
}

func (r *DynamicRecord) setup(ctx context.Context) {
	dl, ok := r.Layer().(DynamicLayer)
	if !ok {
		r.log.Error("dynamic record holds a layer without sublayers")
		return
	}

	cascade := NewCascade(&r.cfg, dl.SupportsDynamicLayers())
	infos := make(map[int]SublayerInfo)
	for _, info := range dl.LayerInfos() {
		infos[info.ID] = info
	}

	r.dmu.Lock()
	r.cascade = cascade
	r.infos = infos
	r.dmu.Unlock()

	tree := []TreeNode{}
	for _, e := range r.cfg.LayerEntries {
		if e.StateOnly {
			continue
		}
		info, ok := infos[e.Index]
		if !ok {
			r.log.WithSublayer(strconv.Itoa(e.Index)).Warn("configured sublayer not reported by server")
			continue
		}
		r.processLayerInfo(info, &tree, RootID)
	}

	r.dmu.Lock()
	r.tree = tree
	r.dmu.Unlock()

	r.setupFeatureClasses(ctx, dl)

	// Groups never expose opacity, whatever they inherited.
	r.dmu.RLock()
	for _, p := range r.proxies {
		if p.IsPlaceholder() {
			continue
		}
		if t, err := p.LayerType(); err == nil && t == TypeGroup {
			p.AvailableControls().Remove(config.ControlOpacity)
		}
	}
	r.dmu.RUnlock()
}

// processLayerInfo builds the interfaces below info and returns the leaves.
func (r *DynamicRecord) processLayerInfo(info SublayerInfo, tree *[]TreeNode, parentID string) []*Interface {
	sID := strconv.Itoa(info.ID)
	sub := r.cascade.Resolve(sID, parentID)

	if len(info.SubLayerIDs) > 0 {
		group := r.proxy(sID, sub.Controls)
		name := sub.Name
		if name == "" {
			name = info.Name
		}
		leaves := group.ConvertToDynamicGroup(r, sID, name)

		node := TreeNode{ID: info.ID, Children: []TreeNode{}}
		var collected []*Interface
		for _, childID := range info.SubLayerIDs {
			child, ok := r.infos[childID]
			if !ok {
				continue
			}
			collected = append(collected, r.processLayerInfo(child, &node.Children, sID)...)
		}
		leaves.Append(collected...)
		*tree = append(*tree, node)
		return collected
	}

	pfc := NewPlaceholderFC(r.Record, info.Name)
	r.dmu.Lock()
	leaf, ok := r.proxies[sID]
	if !ok {
		leaf = NewInterface(sub.Controls, nil)
		r.proxies[sID] = leaf
	}
	r.dmu.Unlock()
	if ok {
		// Keep the bundle a legend may already be bound to.
		if b, err := leaf.Symbology(); err == nil && b != nil {
			b.Replace(pfc.symbology.Stack()...)
			pfc.symbology = b
		}
	}
	if !ok || leaf.UpdateSource(pfc) != nil {
		leaf.ConvertToPlaceholder(pfc)
	}

	*tree = append(*tree, TreeNode{ID: info.ID})
	return []*Interface{leaf}
}

// proxy returns the interface for sID, creating it with controls if needed.
func (r *DynamicRecord) proxy(sID string, controls []config.Control) *Interface {
	r.dmu.Lock()
	defer r.dmu.Unlock()
	if p, ok := r.proxies[sID]; ok {
		return p
	}
	p := NewInterface(controls, nil)
	r.proxies[sID] = p
	return p
}

func (r *DynamicRecord) setupFeatureClasses(ctx context.Context, dl DynamicLayer) {
	var initVis []int
	defer func() {
		r.visible.Replace(initVis...)
		r.pushVisible()
	}()

	if r.svc.Attributes == nil {
		r.log.Warn("no attribute loader, sublayers stay placeholders")
		return
	}
	bundle := r.svc.Attributes.LoadLayerAttribs(dl)
	if bundle == nil {
		return
	}

	first := true
	for _, idx := range bundle.Indexes {
		// Sublayers outside the walked tree get no feature class.
		sub, ok := r.cascade.Lookup(idx)
		if !ok {
			continue
		}

		intIdx, _ := strconv.Atoi(idx)
		fc := newDynamicFC(r, idx, bundle.Packages[idx], sub, r.infos[intIdx].Name)
		r.registerFC(fc, first)
		first = false
		if sub.State.IsVisible() {
			initVis = append(initVis, intIdx)
		}

		r.dmu.RLock()
		leafProxy := r.proxies[idx]
		r.dmu.RUnlock()
		if leafProxy != nil {
			// Legends already bound to the placeholder symbols keep them.
			if b, err := leafProxy.Symbology(); err == nil && b != nil {
				fc.adoptSymbology(b)
			}
			leafProxy.ConvertToDynamicLeaf(fc)
		}

		fc.LoadSymbology(ctx)
		go r.resolveServerType(ctx, fc)
		go func() {
			if n, err := r.ChildFeatureCount(ctx, idx); err == nil {
				fc.setFeatureCount(n)
			}
		}()
	}
}

func (r *DynamicRecord) resolveServerType(ctx context.Context, fc *DynamicFC) {
	ld, err := fc.LayerData(ctx).Wait(ctx)
	if err != nil {
		return
	}
	t, err := ServerLayerType(ld.LayerType)
	if err != nil {
		r.log.WithSublayer(fc.Index()).WithError(err).Error("unexpected sublayer type")
		r.tel.Metrics.RecordError(string(ErrorClassUnsupportedType), "")
		_ = r.tel.Events.PublishUnsupportedType(r.cfg.ID, fc.Index(), ld.LayerType)
		return
	}
	fc.setServerType(t, ld.GeometryType)
}

// ChildProxy returns the interface of sublayer idx. Unknown indexes get a
// placeholder so structured legends can bind before the layer loads.
func (r *DynamicRecord) ChildProxy(idx string) *Interface {
	r.dmu.Lock()
	defer r.dmu.Unlock()
	if p, ok := r.proxies[idx]; ok {
		return p
	}
	p := NewInterface(nil, nil)
	p.ConvertToPlaceholder(NewPlaceholderFC(r.Record, ""))
	r.proxies[idx] = p
	return p
}

// ChildTree returns a copy of the sublayer tree built on load.
func (r *DynamicRecord) ChildTree() ([]TreeNode, error) {
	r.dmu.RLock()
	defer r.dmu.RUnlock()
	if r.tree == nil {
		return nil, ErrTreeNotLoaded.WithLayer(r.cfg.ID)
	}
	return cloneTree(r.tree), nil
}

func cloneTree(nodes []TreeNode) []TreeNode {
	if nodes == nil {
		return nil
	}
	out := make([]TreeNode, len(nodes))
	for i, n := range nodes {
		out[i] = TreeNode{ID: n.ID, Children: cloneTree(n.Children)}
	}
	return out
}

// ChildName is the server name of a sublayer or group.
func (r *DynamicRecord) ChildName(idx int) (string, error) {
	if dl, ok := r.Layer().(DynamicLayer); ok {
		for _, info := range dl.LayerInfos() {
			if info.ID == idx {
				return info.Name, nil
			}
		}
	}
	return "", fmt.Errorf("sublayer %d not found in layer %s", idx, r.cfg.ID)
}

// ChildConfig returns the effective configuration of a sublayer.
func (r *DynamicRecord) ChildConfig(idx string) (NodeConfig, bool) {
	r.dmu.RLock()
	c := r.cascade
	r.dmu.RUnlock()
	if c == nil {
		return NodeConfig{}, false
	}
	return c.Lookup(idx)
}

// ChildFC returns the feature class of sublayer idx.
func (r *DynamicRecord) ChildFC(idx string) (*DynamicFC, error) {
	fc, ok := r.FeatureClass(idx)
	if !ok {
		return nil, NewUsageError("unknown sublayer " + idx).WithLayer(r.cfg.ID)
	}
	dfc, ok := fc.(*DynamicFC)
	if !ok {
		return nil, ErrNotSupported
	}
	return dfc, nil
}

// ChildFeatureCount counts the features of sublayer idx.
func (r *DynamicRecord) ChildFeatureCount(ctx context.Context, idx string) (int, error) {
	l := r.Layer()
	if l == nil {
		return 0, NewUsageError("layer has not been constructed").WithLayer(r.cfg.ID)
	}
	return r.countFeatures(ctx, l.URL()+"/"+idx, idx)
}

// ChildOffScale tests sublayer idx against mapScale.
func (r *DynamicRecord) ChildOffScale(ctx context.Context, idx string, mapScale float64) (OffScaleResult, error) {
	fc, err := r.ChildFC(idx)
	if err != nil {
		return OffScaleResult{}, err
	}
	return fc.IsOffScale(ctx, mapScale)
}

// ChildZoomToScale zooms the map until sublayer idx is on scale.
func (r *DynamicRecord) ChildZoomToScale(ctx context.Context, idx string, m MapView, lods []geo.LOD, zoomIn, zoomGraphic bool) error {
	fc, err := r.ChildFC(idx)
	if err != nil {
		return err
	}
	s, err := fc.ScaleSet(ctx)
	if err != nil {
		return err
	}
	return r.zoomToScaleSet(ctx, m, lods, zoomIn, s, zoomGraphic)
}

// ChildQueryable reads the query flag of sublayer idx.
func (r *DynamicRecord) ChildQueryable(idx string) (bool, error) {
	fc, err := r.ChildFC(idx)
	if err != nil {
		return false, err
	}
	return fc.Queryable(), nil
}

// ChildFormattedAttributes returns the datagrid table of sublayer idx.
func (r *DynamicRecord) ChildFormattedAttributes(ctx context.Context, idx string) *deferred.Deferred[*FormattedAttributes] {
	fc, err := r.ChildFC(idx)
	if err != nil {
		return deferred.Rejected[*FormattedAttributes](err)
	}
	return fc.FormattedAttributes(ctx)
}

// ChildAttribs returns the attribute download of sublayer idx.
func (r *DynamicRecord) ChildAttribs(ctx context.Context, idx string) *deferred.Deferred[*AttributeData] {
	fc, err := r.ChildFC(idx)
	if err != nil {
		return deferred.Rejected[*AttributeData](err)
	}
	return fc.Attribs(ctx)
}

// ChildLayerData returns the metadata of sublayer idx.
func (r *DynamicRecord) ChildLayerData(ctx context.Context, idx string) *deferred.Deferred[*LayerData] {
	fc, err := r.ChildFC(idx)
	if err != nil {
		return deferred.Rejected[*LayerData](err)
	}
	return fc.LayerData(ctx)
}

// ChildFeatureName resolves a feature name in sublayer idx.
func (r *DynamicRecord) ChildFeatureName(ctx context.Context, idx, oid string, attrs map[string]any) (string, error) {
	fc, err := r.ChildFC(idx)
	if err != nil {
		return "", err
	}
	return fc.FeatureName(ctx, oid, attrs)
}

// ChildAliasedFieldName resolves a field alias in sublayer idx.
func (r *DynamicRecord) ChildAliasedFieldName(ctx context.Context, idx, attribName string) (string, error) {
	fc, err := r.ChildFC(idx)
	if err != nil {
		return "", err
	}
	return fc.AliasedFieldName(ctx, attribName)
}

// ChildCheckDateType reports whether a field of sublayer idx is a date.
func (r *DynamicRecord) ChildCheckDateType(ctx context.Context, idx, attribName string) (bool, error) {
	fc, err := r.ChildFC(idx)
	if err != nil {
		return false, err
	}
	return fc.CheckDateType(ctx, attribName)
}

// ChildSymbology returns the symbol bundle of sublayer idx.
func (r *DynamicRecord) ChildSymbology(idx string) (*SymbologyBundle, error) {
	fc, err := r.ChildFC(idx)
	if err != nil {
		return nil, err
	}
	return fc.Symbology(), nil
}

// Identify runs a server identify over the given sublayers. One result per
// distinct requested index is returned at once; each completes when its
// hits are processed, and a sublayer that fails does not hold up the rest.
func (r *DynamicRecord) Identify(ctx context.Context, opts IdentifyOptions) IdentifyBatch {
	results := make(map[int]*IdentifyResult, len(opts.LayerIDs))
	ordered := make([]*IdentifyResult, 0, len(opts.LayerIDs))
	sublayers := make([]string, 0, len(opts.LayerIDs))
	for _, leaf := range opts.LayerIDs {
		if _, dup := results[leaf]; dup {
			continue
		}
		idx := strconv.Itoa(leaf)
		req := ResultRequester{Format: FormatEsri, Caption: r.Name(), LayerID: r.cfg.ID, FeatureIdx: idx}
		if fc, err := r.ChildFC(idx); err == nil {
			req.Name = fc.Name()
			req.Symbology = fc.Symbology()
		} else if name, err := r.ChildName(leaf); err == nil {
			req.Name = name
		}
		res := NewIdentifyResult(opts.RequestID, req)
		results[leaf] = res
		ordered = append(ordered, res)
		sublayers = append(sublayers, idx)
	}

	completeAll := func() {
		for _, res := range ordered {
			if res.IsLoading() {
				res.Complete()
			}
		}
	}

	dl, ok := r.Layer().(DynamicLayer)
	if !ok || r.svc.Identifier == nil {
		completeAll()
		return IdentifyBatch{Results: ordered, Done: deferred.Rejected[struct{}](ErrNotSupported)}
	}

	if opts.Tolerance == 0 {
		opts.Tolerance = r.cfg.Tolerance
	}

	ctx = context.WithoutCancel(r.opCtx(ctx))
	done := deferred.Go(func() (struct{}, error) {
		start := time.Now()
		ctx, span := r.tel.Tracer.StartIdentifySpan(ctx, opts.RequestID, r.cfg.ID, sublayers)
		defer span.End()

		report := func(err error) {
			r.obs.IdentifyCompleted(IdentifyReport{
				RequestID: opts.RequestID,
				LayerID:   r.cfg.ID,
				LayerType: TypeDynamic,
				Sublayers: sublayers,
				Hits:      countHits(ordered),
				Duration:  time.Since(start),
				Err:       err,
			})
		}

		hits, err := r.svc.Identifier.Identify(ctx, dl, opts)
		if err != nil {
			completeAll()
			report(err)
			return struct{}{}, err
		}

		byLeaf := make(map[int][]IdentifyHit)
		for _, h := range hits {
			if _, requested := results[h.LayerID]; !requested {
				continue
			}
			byLeaf[h.LayerID] = append(byLeaf[h.LayerID], h)
		}

		var g errgroup.Group
		for leaf, leafHits := range byLeaf {
			res := results[leaf]
			g.Go(func() error {
				items, err := r.identifyItems(ctx, strconv.Itoa(leaf), leafHits)
				res.Complete(items...)
				return err
			})
		}
		for leaf, res := range results {
			if _, hit := byLeaf[leaf]; !hit {
				res.Complete()
			}
		}

		err = g.Wait()
		report(err)
		return struct{}{}, err
	})

	return IdentifyBatch{Results: ordered, Done: done}
}

// identifyItems turns server hits of one sublayer into result items. The
// server returns aliased attributes; they are un-aliased for lookups.
func (r *DynamicRecord) identifyItems(ctx context.Context, idx string, hits []IdentifyHit) ([]IdentifyItem, error) {
	fc, err := r.ChildFC(idx)
	if err != nil {
		return nil, err
	}
	ld, err := fc.LayerData(ctx).Wait(ctx)
	if err != nil {
		return nil, err
	}
	if !ld.SupportsFeatures {
		return nil, nil
	}

	items := make([]IdentifyItem, 0, len(hits))
	for _, h := range hits {
		plain := UnAliasAttribs(h.Attributes, ld.Fields)
		items = append(items, IdentifyItem{
			Name:      h.Value,
			Details:   AttributesToDetails(h.Attributes, nil),
			OID:       plain[ld.OIDField],
			Symbology: []SymbologyItem{{SVGCode: r.graphicIcon(plain, ld.Renderer)}},
		})
	}
	return items, nil
}
