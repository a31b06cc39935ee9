package layer

import (
	"errors"
	"fmt"
)

// ErrorClass groups layer errors by how callers are expected to react.
type ErrorClass string

const (
	// ErrorClassLoad means the physical layer failed to initialize.
	// The record moves to the error state.
	ErrorClassLoad ErrorClass = "load"

	// ErrorClassAttribute means an attribute download failed. The cached
	// result is dropped so the next call fetches again.
	ErrorClassAttribute ErrorClass = "attribute"

	// ErrorClassFeatureCount means a feature count failed after its retry.
	ErrorClassFeatureCount ErrorClass = "feature_count"

	// ErrorClassUnsupportedType means a server reported a sublayer type
	// outside the supported set.
	ErrorClassUnsupportedType ErrorClass = "unsupported_type"

	// ErrorClassUsage marks a programming error by the caller.
	ErrorClassUsage ErrorClass = "usage"
)

// Fixed messages surfaced to callers.
const (
	MsgFeatureCount = "error getting feature count"
	MsgAttribLoad   = "Attrib loading failed"
)

var (
	// ErrNotSupported is returned by a facade accessor its current flavor lacks.
	ErrNotSupported = errors.New("Call not supported.")

	// ErrListenerNotRegistered is returned when removing an unknown listener.
	ErrListenerNotRegistered = NewUsageError("Attempting to remove a listener which is not registered.")

	// ErrTreeNotLoaded is returned when the sublayer tree is requested before load.
	ErrTreeNotLoaded = NewUsageError("Called getChildTree before layer is loaded")

	// ErrPrebuiltLayer is returned when constructing a record built around an existing layer.
	ErrPrebuiltLayer = NewUsageError("Cannot construct pre-made layers")

	// ErrNoRendererNoURL is returned when a sublayer has neither a legend nor a service url.
	ErrNoRendererNoURL = errors.New("encountered layer with no renderer and no url")
)

// LayerError is a classified error with layer context.
// nolint:revive // LayerError reads better than Error at call sites
type LayerError struct {
	Class     ErrorClass             `json:"class"`
	Message   string                 `json:"message"`
	Code      string                 `json:"code,omitempty"`
	LayerID   string                 `json:"layer_id,omitempty"`
	Operation string                 `json:"operation,omitempty"`
	Err       error                  `json:"-"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface. The message comes first so callers
// that print the error see the fixed text.
func (e *LayerError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Err.Error())
	}
	switch {
	case e.LayerID != "" && e.Operation != "":
		return fmt.Sprintf("%s (layer=%s, operation=%s)", msg, e.LayerID, e.Operation)
	case e.LayerID != "":
		return fmt.Sprintf("%s (layer=%s)", msg, e.LayerID)
	default:
		return msg
	}
}

// Unwrap returns the underlying error.
func (e *LayerError) Unwrap() error {
	return e.Err
}

// Is matches another LayerError with the same class and message.
func (e *LayerError) Is(target error) bool {
	t, ok := target.(*LayerError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Message == t.Message && e.Code == t.Code
}

// ErrorClass returns the class as a plain string for telemetry.
func (e *LayerError) ErrorClass() string {
	return string(e.Class)
}

func newLayerError(class ErrorClass, message string, err error) *LayerError {
	return &LayerError{Class: class, Message: message, Err: err}
}

// NewLoadError creates a load error.
func NewLoadError(message string, err error) *LayerError {
	return newLayerError(ErrorClassLoad, message, err)
}

// NewAttributeError creates an attribute error with the fixed message.
func NewAttributeError(err error) *LayerError {
	return newLayerError(ErrorClassAttribute, MsgAttribLoad, err)
}

// NewFeatureCountError creates a feature count error with the fixed message.
func NewFeatureCountError(err error) *LayerError {
	return newLayerError(ErrorClassFeatureCount, MsgFeatureCount, err)
}

// NewUnsupportedTypeError reports an unexpected server sublayer type.
func NewUnsupportedTypeError(serverType string) *LayerError {
	e := newLayerError(ErrorClassUnsupportedType, "Unexpected layer type", nil)
	return e.WithDetail("server_type", serverType)
}

// NewUsageError creates a usage error.
func NewUsageError(message string) *LayerError {
	return newLayerError(ErrorClassUsage, message, nil)
}

// WithLayer returns a copy of e carrying the layer id.
func (e *LayerError) WithLayer(layerID string) *LayerError {
	c := *e
	c.LayerID = layerID
	return &c
}

// WithOperation returns a copy of e carrying the operation name.
func (e *LayerError) WithOperation(operation string) *LayerError {
	c := *e
	c.Operation = operation
	return &c
}

// WithCode returns a copy of e carrying an error code.
func (e *LayerError) WithCode(code string) *LayerError {
	c := *e
	c.Code = code
	return &c
}

// WithDetail returns a copy of e with one more detail field.
func (e *LayerError) WithDetail(key string, value interface{}) *LayerError {
	c := *e
	c.Details = make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		c.Details[k] = v
	}
	c.Details[key] = value
	return &c
}

func hasClass(err error, class ErrorClass) bool {
	var e *LayerError
	if errors.As(err, &e) {
		return e.Class == class
	}
	return false
}

// IsLoadError reports whether err is a load error.
func IsLoadError(err error) bool { return hasClass(err, ErrorClassLoad) }

// IsAttributeError reports whether err is an attribute error.
func IsAttributeError(err error) bool { return hasClass(err, ErrorClassAttribute) }

// IsFeatureCountError reports whether err is a feature count error.
func IsFeatureCountError(err error) bool { return hasClass(err, ErrorClassFeatureCount) }

// IsUnsupportedType reports whether err is an unsupported type error.
func IsUnsupportedType(err error) bool { return hasClass(err, ErrorClassUnsupportedType) }

// IsUsageError reports whether err is a usage error.
func IsUsageError(err error) bool { return hasClass(err, ErrorClassUsage) }
