package layer

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	"github.com/paulmach/orb"

	"github.com/layerkit/layerkit/pkg/config"
	"github.com/layerkit/layerkit/pkg/geo"
	"github.com/layerkit/layerkit/pkg/telemetry"
)

// ScaleSet holds the visible scale range of a layer or sublayer. A zero bound
// means the range is open on that side.
type ScaleSet struct {
	MinScale float64 `json:"minScale"`
	MaxScale float64 `json:"maxScale"`
}

// Graphic is a feature held by the engine: a geometry plus its attributes.
type Graphic struct {
	Geometry   orb.Geometry
	Attributes map[string]any
}

// PointerEvent describes the pointer entering or leaving a graphic.
type PointerEvent struct {
	ScreenPoint geo.ScreenPoint
	Target      any
	Graphic     *Graphic
}

// EventHandlers are the six normalized physical layer events.
type EventHandlers struct {
	Load         func()
	Error        func(error)
	UpdateStart  func()
	UpdateEnd    func()
	PointerEnter func(PointerEvent)
	PointerLeave func(PointerEvent)
}

// EventBinder attaches handlers to a physical layer, translating the engine's
// native event names.
type EventBinder interface {
	Bind(l PhysicalLayer, h EventHandlers)
}

// EventBinderFunc adapts a function to EventBinder.
type EventBinderFunc func(l PhysicalLayer, h EventHandlers)

// Bind calls f.
func (f EventBinderFunc) Bind(l PhysicalLayer, h EventHandlers) { f(l, h) }

// PhysicalLayer is the engine object behind a layer record.
type PhysicalLayer interface {
	ID() string
	Name() string

	// URL is empty for file based layers.
	URL() string

	Visible() bool
	SetVisibility(visible bool)
	Opacity() float64
	SetOpacity(opacity float64)

	ScaleSet() ScaleSet
	FullExtent() geo.Extent
	SpatialReference() geo.SpatialReference
	Graphics() []Graphic
}

// Query is a spatial query against a feature layer.
type Query struct {
	Geometry  orb.Geometry
	SR        geo.SpatialReference
	OutFields []string
}

// FeatureLayer is a physical layer serving one feature class.
type FeatureLayer interface {
	PhysicalLayer
	DisplayField() string
	GeometryType() string
	QueryFeatures(ctx context.Context, q Query) ([]Graphic, error)
}

// SublayerInfo is one node of the sublayer tree a map server reports.
type SublayerInfo struct {
	ID            int
	Name          string
	SubLayerIDs   []int
	ParentLayerID int
	MinScale      float64
	MaxScale      float64
}

// DrawingOptions are per-sublayer drawing settings. Transparency runs from 0
// (opaque) to 100.
type DrawingOptions struct {
	Transparency float64
}

// DynamicLayer is a physical layer drawing many server sublayers.
type DynamicLayer interface {
	PhysicalLayer
	SupportsDynamicLayers() bool
	LayerInfos() []SublayerInfo
	VisibleLayers() []int
	SetVisibleLayers(indexes []int)
	SetLayerDrawingOptions(opts map[int]DrawingOptions)
}

// WMSLayerInfo is one node of a WMS capabilities layer tree. Name is the
// service's own layer identifier.
type WMSLayerInfo struct {
	Name     string
	Title    string
	Children []WMSLayerInfo
}

// WMSLayer is a physical OGC web map service layer.
type WMSLayer interface {
	PhysicalLayer
	LayerInfos() []WMSLayerInfo
}

// Feature layer rendering modes.
const (
	ModeSnapshot = "snapshot"
	ModeOnDemand = "ondemand"
)

// LayerOptions are the construction options handed to the engine.
type LayerOptions struct {
	ID            string
	Opacity       float64
	Visible       bool
	Mode          string
	VisibleLayers []string
}

// LayerFactory builds physical layers.
type LayerFactory interface {
	NewLayer(kind config.LayerKind, url string, opts LayerOptions) (PhysicalLayer, error)
}

// Field describes one attribute column.
type Field struct {
	Name  string `json:"name"`
	Alias string `json:"alias,omitempty"`
	Type  string `json:"type,omitempty"`
}

// AttributeData is the downloaded attribute table of a sublayer. OIDIndex
// maps an object id, in string form, to its position in Features.
type AttributeData struct {
	Features []Graphic
	OIDIndex map[string]int
}

// UniqueValueInfo is one class of a unique value renderer.
type UniqueValueInfo struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// ClassBreakInfo is one range of a class breaks renderer.
type ClassBreakInfo struct {
	ClassMaxValue float64 `json:"classMaxValue"`
	Label         string  `json:"label"`
}

// Renderer is the drawing definition a map server reports for a sublayer.
type Renderer struct {
	Type             string            `json:"type"`
	Label            string            `json:"label,omitempty"`
	Field1           string            `json:"field1,omitempty"`
	Field2           string            `json:"field2,omitempty"`
	Field3           string            `json:"field3,omitempty"`
	Field            string            `json:"field,omitempty"`
	DefaultLabel     string            `json:"defaultLabel,omitempty"`
	MinValue         float64           `json:"minValue,omitempty"`
	UniqueValueInfos []UniqueValueInfo `json:"uniqueValueInfos,omitempty"`
	ClassBreakInfos  []ClassBreakInfo  `json:"classBreakInfos,omitempty"`
}

// LayerData is the metadata of a sublayer.
type LayerData struct {
	Fields           []Field
	OIDField         string
	Renderer         *Renderer
	MinScale         float64
	MaxScale         float64
	GeometryType     string
	LayerType        string
	Legend           []SymbologyItem
	SupportsFeatures bool
}

// LayerPackage gives access to one sublayer's attributes and metadata.
type LayerPackage interface {
	Attribs(ctx context.Context) (*AttributeData, error)
	LayerData(ctx context.Context) (*LayerData, error)
}

// AttributeBundle lists the sublayer packages of a physical layer.
type AttributeBundle struct {
	Indexes  []string
	Packages map[string]LayerPackage
}

// AttributeLoader prepares attribute packages for a physical layer. Packages
// do no work until asked.
type AttributeLoader interface {
	LoadLayerAttribs(l PhysicalLayer) *AttributeBundle
}

// SymbologyItem is one legend symbol.
type SymbologyItem struct {
	Name     string `json:"name"`
	SVGCode  string `json:"svgcode,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// PlaceholderColour is used for placeholder symbols.
const PlaceholderColour = "#16bf27"

// SymbologyService builds legend symbols.
type SymbologyService interface {
	MapServerLegend(ctx context.Context, serviceURL, index string) ([]SymbologyItem, error)
	GraphicIcon(attrs map[string]any, r *Renderer) string
	PlaceholderSymbol(name, colour string) SymbologyItem
}

// EPSGLookup resolves a projection definition for an EPSG code.
type EPSGLookup func(ctx context.Context, code string) (string, error)

// ProjectionService reprojects extents and checks projection support.
type ProjectionService interface {
	ProjectExtent(e geo.Extent, sr geo.SpatialReference) (geo.Extent, error)
	CheckProjection(ctx context.Context, sr geo.SpatialReference, lookup EPSGLookup) error
}

// Requester issues JSON requests against map server endpoints.
type Requester interface {
	Query(ctx context.Context, endpoint string, params url.Values) (json.RawMessage, error)
}

// BoundingBox is the outline layer drawn around a layer's extent.
type BoundingBox interface {
	ID() string
	Visible() bool
	SetVisibility(visible bool)
}

// BBoxFactory builds bounding box layers.
type BBoxFactory interface {
	MakeBoundingBox(id string, extent geo.Extent, sr geo.SpatialReference) BoundingBox
}

// ClickEvent is a map click.
type ClickEvent struct {
	MapPoint    geo.Point
	ScreenPoint geo.ScreenPoint
}

// MapView is the engine map the layers are drawn on.
type MapView interface {
	Extent() geo.Extent
	WidthPx() int
	SpatialReference() geo.SpatialReference
	SetScale(ctx context.Context, scale float64) error
	CenterAt(ctx context.Context, p geo.Point) error
	SetExtent(ctx context.Context, e geo.Extent) error
	RemoveLayer(id string)
}

// IdentifyOptions describe one identify request.
type IdentifyOptions struct {
	RequestID string

	// LayerIDs are the dynamic sublayers to interrogate.
	LayerIDs []int

	// Geometry is an optional caller supplied query geometry.
	Geometry orb.Geometry

	Click     ClickEvent
	Map       MapView
	Tolerance int
}

// IdentifyHit is one feature returned by a server side identify.
type IdentifyHit struct {
	LayerID    int
	Value      string
	Attributes map[string]any
}

// ServerIdentifier runs identify on a map server.
type ServerIdentifier interface {
	Identify(ctx context.Context, l DynamicLayer, opts IdentifyOptions) ([]IdentifyHit, error)
}

// OGCService speaks the WMS protocol.
type OGCService interface {
	LegendURLs(l WMSLayer, layerIDs []string) []string
	GetFeatureInfo(ctx context.Context, l WMSLayer, m MapView, click ClickEvent, layerIDs []string, mimeType string) (string, error)
}

// StateChange is reported for every record state transition.
type StateChange struct {
	LayerID   string
	LayerType LayerType
	From      State
	To        State
	At        time.Time
}

// IdentifyReport is reported when an identify request completes.
type IdentifyReport struct {
	RequestID string
	LayerID   string
	LayerType LayerType
	Sublayers []string
	Hits      int
	Duration  time.Duration
	Err       error
}

// Observer receives record activity.
type Observer interface {
	StateChanged(c StateChange)
	IdentifyCompleted(r IdentifyReport)
}

// Observers fans out to every member.
type Observers []Observer

// StateChanged implements Observer.
func (o Observers) StateChanged(c StateChange) {
	for _, ob := range o {
		if ob != nil {
			ob.StateChanged(c)
		}
	}
}

// IdentifyCompleted implements Observer.
func (o Observers) IdentifyCompleted(r IdentifyReport) {
	for _, ob := range o {
		if ob != nil {
			ob.IdentifyCompleted(r)
		}
	}
}

// Services bundles the collaborators a record talks to. Only Factory is
// needed to construct a layer; the rest are needed by the operations that
// use them.
type Services struct {
	Factory    LayerFactory
	Events     EventBinder
	Attributes AttributeLoader
	Symbology  SymbologyService
	Projection ProjectionService
	Requester  Requester
	BBoxes     BBoxFactory
	Identifier ServerIdentifier
	OGC        OGCService

	// EPSGLookup enables the projection check on load when set.
	EPSGLookup EPSGLookup

	// Telemetry defaults to telemetry.Nop.
	Telemetry *telemetry.Telemetry

	// Observer is told about state changes and identify results in
	// addition to telemetry.
	Observer Observer
}
