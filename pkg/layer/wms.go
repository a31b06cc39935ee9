package layer

import (
	"context"
	"strings"
	"time"

	"github.com/layerkit/layerkit/pkg/config"
	"github.com/layerkit/layerkit/pkg/deferred"
)

// wmsInfoFormats maps the supported GetFeatureInfo mime types to result formats.
var wmsInfoFormats = map[string]string{
	"text/html;fgpv=summary": FormatHTML,
	"text/html":              FormatHTML,
	"text/plain":             FormatText,
	"application/json":       FormatEsri,
}

const wmsNoResults = "Search returned no results"

// WMSRecord is an OGC web map service layer.
type WMSRecord struct {
	*Record
	kindDefaults
}

// NewWMSRecord builds the record.
func NewWMSRecord(cfg *config.LayerConfig, svc Services, prebuilt PhysicalLayer) (*WMSRecord, error) {
	r := &WMSRecord{}
	r.Record = newRecord(cfg, svc, r)
	r.kindDefaults = kindDefaults{rec: r.Record}
	if err := r.start(prebuilt); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *WMSRecord) layerKind() config.LayerKind { return config.KindWMS }

func (r *WMSRecord) layerType() LayerType { return TypeWMS }

func (r *WMSRecord) layerOptions(opts LayerOptions) LayerOptions {
	opts.VisibleLayers = r.entryIDs()
	return opts
}

func (r *WMSRecord) entryIDs() []string {
	ids := make([]string, 0, len(r.cfg.LayerEntries))
	for _, e := range r.cfg.LayerEntries {
		ids = append(ids, e.ID)
	}
	return ids
}

func (r *WMSRecord) setup(ctx context.Context) {
	fc := newWMSFC(r)
	r.registerFC(fc, true)
	r.adoptSymbology(ctx, fc, RenderStyleImages)
}

// Identify runs GetFeatureInfo over the configured entries. Layers without
// a supported info format take no part.
func (r *WMSRecord) Identify(ctx context.Context, opts IdentifyOptions) IdentifyBatch {
	format, ok := wmsInfoFormats[r.cfg.FeatureInfoMimeType]
	wl, isWMS := r.Layer().(WMSLayer)
	if !ok || !isWMS || r.svc.OGC == nil {
		return emptyBatch()
	}

	res := NewIdentifyResult(opts.RequestID, ResultRequester{
		Name:       r.Name(),
		Symbology:  r.symbology,
		Format:     format,
		LayerID:    r.cfg.ID,
		FeatureIdx: "0",
	})

	ids := r.entryIDs()
	ctx = context.WithoutCancel(r.opCtx(ctx))
	done := deferred.Go(func() (struct{}, error) {
		start := time.Now()
		ctx, span := r.tel.Tracer.StartIdentifySpan(ctx, opts.RequestID, r.cfg.ID, ids)
		defer span.End()

		data, err := r.svc.OGC.GetFeatureInfo(ctx, wl, opts.Map, opts.Click, ids, r.cfg.FeatureInfoMimeType)
		if err == nil && data != "" && !strings.Contains(data, wmsNoResults) {
			res.Complete(IdentifyItem{Content: data})
		} else {
			res.Complete()
		}

		r.obs.IdentifyCompleted(IdentifyReport{
			RequestID: opts.RequestID,
			LayerID:   r.cfg.ID,
			LayerType: TypeWMS,
			Sublayers: ids,
			Hits:      len(res.Data()),
			Duration:  time.Since(start),
			Err:       err,
		})
		return struct{}{}, err
	})

	return IdentifyBatch{Results: []*IdentifyResult{res}, Done: done}
}

// WMSFC is the single feature class of a WMS layer. Its legend is one image
// per configured entry.
type WMSFC struct {
	fcCore
	wms *WMSRecord
}

func newWMSFC(r *WMSRecord) *WMSFC {
	fc := &WMSFC{wms: r}
	fc.init(r.Record, "0", r.cfg.State.IsQueryable())
	fc.fetchSymbology = fc.legendImages
	fc.renderStyle = RenderStyleImages
	return fc
}

// GeomType is "none"; WMS layers are images.
func (fc *WMSFC) GeomType() string { return "none" }

func (fc *WMSFC) legendImages(context.Context) ([]SymbologyItem, error) {
	wl, ok := fc.rec.Layer().(WMSLayer)
	if !ok || fc.rec.svc.OGC == nil {
		return nil, ErrNotSupported
	}
	entries := fc.rec.cfg.LayerEntries
	urls := fc.rec.svc.OGC.LegendURLs(wl, fc.wms.entryIDs())

	items := make([]SymbologyItem, 0, len(entries))
	for i, e := range entries {
		item := SymbologyItem{Name: wmsEntryName(e, wl.LayerInfos())}
		if i < len(urls) {
			item.ImageURL = urls[i]
		}
		items = append(items, item)
	}
	return items, nil
}

// wmsEntryName is the configured name, else the title the service gives the
// entry's layer, else its id.
func wmsEntryName(e config.LayerEntry, infos []WMSLayerInfo) string {
	if e.Name != "" {
		return e.Name
	}
	if title, ok := findWMSTitle(infos, e.ID); ok && title != "" {
		return title
	}
	return e.ID
}

func findWMSTitle(infos []WMSLayerInfo, name string) (string, bool) {
	for _, info := range infos {
		if info.Name == name {
			return info.Title, true
		}
		if title, ok := findWMSTitle(info.Children, name); ok {
			return title, true
		}
	}
	return "", false
}
