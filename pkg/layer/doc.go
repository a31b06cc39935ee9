// Package layer manages map layers on behalf of a map viewer.
//
// # Overview
//
// A layer record wraps one physical layer owned by a rendering engine and
// tracks its lifecycle:
//
//	rv-loading -> rv-loaded <-> rv-refresh
//	          \-> rv-error
//
// Records come in five kinds, each built with its own constructor:
//
//   - FeatureRecord: a feature service or file layer with one feature class
//   - DynamicRecord: a map server layer drawing many sublayers in one image
//   - TileRecord and ImageRecord: raster services with a basic feature class
//   - WMSRecord: an OGC web map service
//
// Every record owns a map of feature classes keyed by sublayer index. A
// feature class answers scale, visibility, symbology and (for attributed
// kinds) attribute questions for one logical sublayer.
//
// # Facades
//
// UI code binds to Interface values rather than to records. An Interface
// keeps its identity while its source changes underneath, so a legend can
// bind to a placeholder before the layer loads and keep working once the
// real feature class takes over. Accessors the current flavor does not
// support return ErrNotSupported.
//
// # Dynamic layers
//
// Dynamic records resolve the configuration of every sublayer through a
// Cascade: unspecified state and controls are inherited from the parent
// group and controls the server cannot honour are removed. The visible
// sublayers live in a single IndexSet shared by all of the record's
// feature classes; an empty set is sent to the engine as [-1].
//
// # Collaborators
//
// The engine and the remote services are reached through the interfaces
// collected in Services. Only the LayerFactory is required to construct a
// record; telemetry defaults to a no-op implementation.
package layer
