package config

// LayerKind names the physical layer flavour a config entry describes.
type LayerKind string

const (
	KindFeature LayerKind = "esriFeature"
	KindDynamic LayerKind = "esriDynamic"
	KindTile    LayerKind = "esriTile"
	KindImage   LayerKind = "esriImage"
	KindWMS     LayerKind = "ogcWms"
)

// Validate checks the kind is one the layer core can build.
func (k LayerKind) Validate() error {
	switch k {
	case KindFeature, KindDynamic, KindTile, KindImage, KindWMS:
		return nil
	default:
		return &ValidationError{Field: "layerType", Message: "unknown layer type " + string(k)}
	}
}

// Control is a legend control a UI may expose for a layer or sublayer.
type Control string

const (
	ControlOpacity      Control = "opacity"
	ControlVisibility   Control = "visibility"
	ControlBoundingBox  Control = "boundingBox"
	ControlQuery        Control = "query"
	ControlSnapshot     Control = "snapshot"
	ControlMetadata     Control = "metadata"
	ControlBoundaryZoom Control = "boundaryZoom"
	ControlRefresh      Control = "refresh"
	ControlReload       Control = "reload"
	ControlRemove       Control = "remove"
	ControlSettings     Control = "settings"
	ControlData         Control = "data"
	ControlStyles       Control = "styles"
)

// DefaultControls is applied to a layer that lists no controls.
var DefaultControls = []Control{
	ControlOpacity,
	ControlVisibility,
	ControlBoundingBox,
	ControlQuery,
	ControlSnapshot,
	ControlMetadata,
	ControlBoundaryZoom,
	ControlRefresh,
	ControlReload,
	ControlRemove,
	ControlSettings,
	ControlData,
}

// State holds the toggleable settings of a layer or sublayer. A nil field
// means "not specified" and is inherited or defaulted.
type State struct {
	Visibility *bool    `json:"visibility,omitempty" yaml:"visibility,omitempty" toml:"visibility,omitempty"`
	Opacity    *float64 `json:"opacity,omitempty" yaml:"opacity,omitempty" toml:"opacity,omitempty" validate:"omitempty,gte=0,lte=1"`
	Query      *bool    `json:"query,omitempty" yaml:"query,omitempty" toml:"query,omitempty"`
	Snapshot   *bool    `json:"snapshot,omitempty" yaml:"snapshot,omitempty" toml:"snapshot,omitempty"`
}

// IsVisible returns the visibility, false when unset.
func (s State) IsVisible() bool { return s.Visibility != nil && *s.Visibility }

// OpacityValue returns the opacity, 1 when unset.
func (s State) OpacityValue() float64 {
	if s.Opacity == nil {
		return 1
	}
	return *s.Opacity
}

// IsQueryable returns the query flag, false when unset.
func (s State) IsQueryable() bool { return s.Query != nil && *s.Query }

// IsSnapshot returns the snapshot flag, false when unset.
func (s State) IsSnapshot() bool { return s.Snapshot != nil && *s.Snapshot }

// Clone returns a deep copy so callers can never alias another node's state.
func (s State) Clone() State {
	out := State{}
	if s.Visibility != nil {
		out.Visibility = Bool(*s.Visibility)
	}
	if s.Opacity != nil {
		out.Opacity = Float(*s.Opacity)
	}
	if s.Query != nil {
		out.Query = Bool(*s.Query)
	}
	if s.Snapshot != nil {
		out.Snapshot = Bool(*s.Snapshot)
	}
	return out
}

// Inherit returns a copy of s where every unset key is taken from parent.
func (s State) Inherit(parent State) State {
	out := s.Clone()
	p := parent.Clone()
	if out.Visibility == nil {
		out.Visibility = p.Visibility
	}
	if out.Opacity == nil {
		out.Opacity = p.Opacity
	}
	if out.Query == nil {
		out.Query = p.Query
	}
	if out.Snapshot == nil {
		out.Snapshot = p.Snapshot
	}
	return out
}

// LayerEntry configures one sublayer of a dynamic or WMS layer.
type LayerEntry struct {
	// Index is the server sublayer index (dynamic layers).
	Index int `json:"index" yaml:"index" toml:"index" validate:"gte=0"`

	// ID is the service's own sublayer identifier (WMS layers).
	ID string `json:"id,omitempty" yaml:"id,omitempty" toml:"id,omitempty"`

	Name string `json:"name,omitempty" yaml:"name,omitempty" toml:"name,omitempty"`

	// State is nil when the entry does not specify any state at all.
	State *State `json:"state,omitempty" yaml:"state,omitempty" toml:"state,omitempty"`

	// Controls is nil when absent; an empty, non-nil list means "no controls".
	Controls []Control `json:"controls,omitempty" yaml:"controls,omitempty" toml:"controls,omitempty"`

	// StateOnly entries adjust state but do not appear in the legend tree.
	StateOnly bool `json:"stateOnly,omitempty" yaml:"stateOnly,omitempty" toml:"stateOnly,omitempty"`

	Outfields string `json:"outfields,omitempty" yaml:"outfields,omitempty" toml:"outfields,omitempty"`
}

// ChildOption overrides settings for a child in a structured legend.
type ChildOption struct {
	Index    int       `json:"index" yaml:"index" toml:"index" validate:"gte=0"`
	Name     string    `json:"name,omitempty" yaml:"name,omitempty" toml:"name,omitempty"`
	State    *State    `json:"state,omitempty" yaml:"state,omitempty" toml:"state,omitempty"`
	Controls []Control `json:"controls,omitempty" yaml:"controls,omitempty" toml:"controls,omitempty"`
}

// LayerConfig is the merged configuration for one physical layer.
type LayerConfig struct {
	ID        string    `json:"id" yaml:"id" toml:"id" validate:"required"`
	LayerType LayerKind `json:"layerType" yaml:"layerType" toml:"layerType" validate:"required"`

	// URL is empty for file-based layers.
	URL  string `json:"url,omitempty" yaml:"url,omitempty" toml:"url,omitempty" validate:"omitempty,url"`
	Name string `json:"name,omitempty" yaml:"name,omitempty" toml:"name,omitempty"`

	// Tolerance is the identify click tolerance in pixels.
	Tolerance int `json:"tolerance,omitempty" yaml:"tolerance,omitempty" toml:"tolerance,omitempty" validate:"gte=0"`

	FeatureInfoMimeType string `json:"featureInfoMimeType,omitempty" yaml:"featureInfoMimeType,omitempty" toml:"featureInfoMimeType,omitempty"`
	NameField           string `json:"nameField,omitempty" yaml:"nameField,omitempty" toml:"nameField,omitempty"`
	Outfields           string `json:"outfields,omitempty" yaml:"outfields,omitempty" toml:"outfields,omitempty"`

	State            State     `json:"state" yaml:"state" toml:"state"`
	Controls         []Control `json:"controls,omitempty" yaml:"controls,omitempty" toml:"controls,omitempty"`
	DisabledControls []Control `json:"disabledControls,omitempty" yaml:"disabledControls,omitempty" toml:"disabledControls,omitempty"`

	LayerEntries []LayerEntry  `json:"layerEntries,omitempty" yaml:"layerEntries,omitempty" toml:"layerEntries,omitempty" validate:"dive"`
	ChildOptions []ChildOption `json:"childOptions,omitempty" yaml:"childOptions,omitempty" toml:"childOptions,omitempty" validate:"dive"`
}

// File is the on-disk document: a list of layers.
type File struct {
	Layers []LayerConfig `json:"layers" yaml:"layers" toml:"layers" validate:"dive"`
}

// Layer returns the layer with the given id.
func (f *File) Layer(id string) (*LayerConfig, bool) {
	for i := range f.Layers {
		if f.Layers[i].ID == id {
			return &f.Layers[i], true
		}
	}
	return nil, false
}

// Bool returns a pointer to b.
func Bool(b bool) *bool { return &b }

// Float returns a pointer to f.
func Float(f float64) *float64 { return &f }
