package layer

import "fmt"

// State is the raw load state of a layer record.
type State string

const (
	// StateNew is the state of a record whose physical layer has not been built.
	StateNew State = "rv-new"

	// StateLoading indicates the physical layer is being created or loaded.
	StateLoading State = "rv-loading"

	// StateLoaded indicates the layer finished loading and is idle.
	StateLoaded State = "rv-loaded"

	// StateRefresh indicates the engine is redrawing the layer.
	StateRefresh State = "rv-refresh"

	// StateDefault is reported by records that have no load lifecycle of their own.
	StateDefault State = "rv-default"

	// StateError indicates the layer failed. It is terminal for the load attempt.
	StateError State = "rv-error"
)

// Collapse folds a raw state into the three values a legend displays.
func (s State) Collapse() State {
	switch s {
	case StateNew, StateLoading:
		return StateLoading
	case StateLoaded, StateRefresh, StateDefault:
		return StateLoaded
	case StateError:
		return StateError
	default:
		return s
	}
}

// IsRefreshing reports whether the engine is busy with the layer.
func (s State) IsRefreshing() bool {
	return s == StateRefresh || s == StateLoading
}

// IsTerminal reports whether no further transitions are accepted.
func (s State) IsTerminal() bool {
	return s == StateError
}

// CanTransition reports whether a record in s may move to next. Once loaded
// a record only alternates between LOADED and REFRESH, and nothing leaves
// ERROR.
func (s State) CanTransition(next State) bool {
	switch {
	case s == next, s.IsTerminal():
		return false
	case next == StateNew:
		return false
	case next == StateLoading:
		return s == StateNew
	default:
		return true
	}
}

// Validate checks the state is a known value.
func (s State) Validate() error {
	switch s {
	case StateNew, StateLoading, StateLoaded, StateRefresh, StateDefault, StateError:
		return nil
	default:
		return fmt.Errorf("invalid layer state: %s", s)
	}
}

// LayerType is the client-side classification of a layer or sublayer.
type LayerType string

const (
	TypeFeature LayerType = "esriFeature"
	TypeDynamic LayerType = "esriDynamic"
	TypeImage   LayerType = "esriImage"
	TypeTile    LayerType = "esriTile"
	TypeWMS     LayerType = "ogcWms"
	TypeGroup   LayerType = "esriGroup"
	TypeRaster  LayerType = "esriRaster"
)

// ServerLayerType converts the type string a map server reports for a
// sublayer into the client type. Only feature and raster sublayers exist
// below a dynamic layer.
func ServerLayerType(serverType string) (LayerType, error) {
	switch serverType {
	case "Feature Layer":
		return TypeFeature, nil
	case "Raster Layer":
		return TypeRaster, nil
	default:
		return "", NewUnsupportedTypeError(serverType)
	}
}
