package layer

import (
	"context"

	"github.com/layerkit/layerkit/pkg/config"
)

// TileRecord is a cached tile service layer.
type TileRecord struct {
	*Record
	kindDefaults
}

// NewTileRecord builds the record.
func NewTileRecord(cfg *config.LayerConfig, svc Services, prebuilt PhysicalLayer) (*TileRecord, error) {
	r := &TileRecord{}
	r.Record = newRecord(cfg, svc, r)
	r.kindDefaults = kindDefaults{rec: r.Record}
	if err := r.start(prebuilt); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *TileRecord) layerKind() config.LayerKind { return config.KindTile }

func (r *TileRecord) layerType() LayerType { return TypeTile }

// setup registers the single feature class and copies its legend into the
// record bundle.
func (r *TileRecord) setup(ctx context.Context) {
	fc := newBasicFC(r.Record, "0")
	r.registerFC(fc, true)
	r.adoptSymbology(ctx, fc, "")
}

// ImageRecord is a dynamic image service layer.
type ImageRecord struct {
	*Record
	kindDefaults
}

// NewImageRecord builds the record.
func NewImageRecord(cfg *config.LayerConfig, svc Services, prebuilt PhysicalLayer) (*ImageRecord, error) {
	r := &ImageRecord{}
	r.Record = newRecord(cfg, svc, r)
	r.kindDefaults = kindDefaults{rec: r.Record}
	if err := r.start(prebuilt); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *ImageRecord) layerKind() config.LayerKind { return config.KindImage }

func (r *ImageRecord) layerType() LayerType { return TypeImage }

func (r *ImageRecord) setup(context.Context) {
	r.registerFC(newBasicFC(r.Record, "0"), true)
}
