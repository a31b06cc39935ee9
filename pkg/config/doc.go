// Package config loads and validates layer configuration documents.
//
// # Overview
//
// A document lists the physical layers a map shows. Each layer names its
// kind (feature, dynamic, tile, image or WMS), its service URL, its initial
// state and, for dynamic and WMS layers, the sublayer entries to expose.
//
// # Formats
//
// Documents may be YAML, TOML or JSON; the format is picked from the file
// extension. Unknown fields are rejected in every format.
//
//	layers:
//	  - id: rivers
//	    layerType: esriDynamic
//	    url: https://example.com/arcgis/rest/services/Hydro/MapServer
//	    state:
//	      opacity: 0.8
//	    layerEntries:
//	      - index: 3
//	        state:
//	          visibility: false
//
// # Defaults
//
// ApplyDefaults fully specifies the layer root: visibility true, opacity 1,
// query true, snapshot false, tolerance 5 pixels, outfields "*" and the
// default control list. Sublayer entries stay sparse. A nil State field
// means "unset" and is inherited from the parent node when the layer loads.
//
// # Validation
//
// Validator combines go-playground/validator struct tags with cross-field
// rules (kind specific entries, duplicate ids and indexes). Failures come
// back as ValidationErrors, one entry per problem:
//
//	if err := config.NewValidator().ValidateFile(path, f); err != nil {
//	    var verrs config.ValidationErrors
//	    if errors.As(err, &verrs) {
//	        for _, ve := range verrs {
//	            fmt.Println(ve)
//	        }
//	    }
//	}
//
// # Watching
//
// Watcher reloads a document on change, debouncing editor write bursts, and
// hands every valid revision to a callback. Invalid revisions are logged and
// skipped.
package config
