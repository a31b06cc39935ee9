package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationError is a single problem found in a layer config document.
type ValidationError struct {
	// File is the source file path, when known.
	File string `json:"file,omitempty"`

	// LayerID is the layer the problem belongs to.
	LayerID string `json:"layerId,omitempty"`

	// Field is the offending field path (e.g. "layerEntries[2].state.opacity").
	Field string `json:"field,omitempty"`

	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	if e.File != "" {
		b.WriteString(e.File)
		b.WriteString(": ")
	}
	if e.LayerID != "" {
		fmt.Fprintf(&b, "layer %s: ", e.LayerID)
	}
	if e.Field != "" {
		b.WriteString(e.Field)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	return b.String()
}

// ValidationErrors collects every problem in a document.
type ValidationErrors []*ValidationError

func (es ValidationErrors) Error() string {
	msgs := make([]string, 0, len(es))
	for _, e := range es {
		msgs = append(msgs, e.Error())
	}
	return fmt.Sprintf("%d validation error(s): %s", len(es), strings.Join(msgs, "; "))
}

// Validator checks layer configs using struct tags plus cross-field rules.
type Validator struct {
	v *validator.Validate
}

// NewValidator creates a Validator.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{v: v}
}

// ValidateLayer validates a single layer config. It returns ValidationErrors
// or nil.
func (val *Validator) ValidateLayer(c *LayerConfig) error {
	var out ValidationErrors

	if err := val.v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				out = append(out, &ValidationError{
					LayerID: c.ID,
					Field:   trimNamespace(fe.Namespace()),
					Message: fmt.Sprintf("failed %q constraint", fe.Tag()),
				})
			}
		} else {
			out = append(out, &ValidationError{LayerID: c.ID, Message: err.Error()})
		}
	}

	if c.LayerType != "" {
		if err := c.LayerType.Validate(); err != nil {
			var ve *ValidationError
			if errors.As(err, &ve) {
				ve.LayerID = c.ID
				out = append(out, ve)
			}
		}
	}

	if c.URL == "" && c.LayerType != KindFeature {
		out = append(out, &ValidationError{
			LayerID: c.ID,
			Field:   "url",
			Message: "only feature layers may be file based",
		})
	}

	if len(c.LayerEntries) > 0 && c.LayerType != KindDynamic && c.LayerType != KindWMS {
		out = append(out, &ValidationError{
			LayerID: c.ID,
			Field:   "layerEntries",
			Message: "layer entries are only valid on dynamic and WMS layers",
		})
	}

	seen := make(map[int]bool)
	for i, entry := range c.LayerEntries {
		if c.LayerType != KindDynamic {
			break
		}
		if seen[entry.Index] {
			out = append(out, &ValidationError{
				LayerID: c.ID,
				Field:   fmt.Sprintf("layerEntries[%d].index", i),
				Message: fmt.Sprintf("duplicate sublayer index %d", entry.Index),
			})
		}
		seen[entry.Index] = true
	}

	if len(out) == 0 {
		return nil
	}
	return out
}

// ValidateFile validates every layer in f and checks layer ids are unique.
func (val *Validator) ValidateFile(path string, f *File) error {
	var out ValidationErrors
	ids := make(map[string]bool)

	for i := range f.Layers {
		layer := &f.Layers[i]
		if layer.ID != "" && ids[layer.ID] {
			out = append(out, &ValidationError{
				File:    path,
				LayerID: layer.ID,
				Field:   "id",
				Message: "duplicate layer id",
			})
		}
		ids[layer.ID] = true

		if err := val.ValidateLayer(layer); err != nil {
			var verrs ValidationErrors
			if errors.As(err, &verrs) {
				for _, ve := range verrs {
					ve.File = path
					out = append(out, ve)
				}
			}
		}
	}

	if len(out) == 0 {
		return nil
	}
	return out
}

// trimNamespace drops the leading struct name validator puts on paths.
func trimNamespace(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
