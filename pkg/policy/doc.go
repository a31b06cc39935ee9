// Package policy lints layer configs with Open Policy Agent Rego policies.
//
// Schema validation in package config decides whether a config can be
// loaded at all. Policies go further and flag configs that load but will not
// behave as their author probably meant: plain http service urls, WMS layers
// whose feature info format cannot be identified, controls the sublayer
// cascade always strips.
//
// Every policy is a Rego module with a deny set:
//
//	package layerkit.policies.example
//
//	import rego.v1
//
//	deny contains violation if {
//		input.layer.layerType == "esriTile"
//		input.layer.state.query
//		violation := {"message": "tile layers cannot be queried", "field": "state.query"}
//	}
//
// The input is {"layer": <layer config>, "path": <file>}. A deny element is a
// string or an object with message and optional field and severity. Error
// severity makes the result disallowed.
//
// Usage:
//
//	eng, err := policy.NewEngine(logger)
//	if err != nil {
//		return err
//	}
//	if err := eng.LoadPolicies(ctx, []string{"./policies"}); err != nil {
//		return err
//	}
//	res, err := eng.EvaluateFile(ctx, path, file)
package policy
