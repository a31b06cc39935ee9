package config

const (
	// DefaultTolerance is the identify click tolerance in pixels.
	DefaultTolerance = 5

	// DefaultOutfields requests every field.
	DefaultOutfields = "*"
)

// DefaultState is the fully specified root state applied to unset keys.
func DefaultState() State {
	return State{
		Visibility: Bool(true),
		Opacity:    Float(1),
		Query:      Bool(true),
		Snapshot:   Bool(false),
	}
}

// ApplyDefaults fills every unspecified top-level value so the layer root is
// fully defaulted. Layer entries are left sparse; they inherit from their
// parent node when the layer loads.
func (c *LayerConfig) ApplyDefaults() {
	c.State = c.State.Inherit(DefaultState())

	if c.Tolerance == 0 {
		c.Tolerance = DefaultTolerance
	}
	if c.Outfields == "" {
		c.Outfields = DefaultOutfields
	}
	if c.Controls == nil {
		c.Controls = append([]Control(nil), DefaultControls...)
	}
	if c.DisabledControls == nil {
		c.DisabledControls = []Control{}
	}
}

// ApplyDefaults defaults every layer in the file.
func (f *File) ApplyDefaults() {
	for i := range f.Layers {
		f.Layers[i].ApplyDefaults()
	}
}
