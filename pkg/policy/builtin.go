package policy

// BuiltinPolicies returns the policies every engine starts with.
func BuiltinPolicies() []Policy {
	return []Policy{
		secureURLPolicy(),
		wmsIdentifyPolicy(),
		bannedEntryControlsPolicy(),
		tolerancePolicy(),
	}
}

func secureURLPolicy() Policy {
	return Policy{
		Name:        "secure-urls",
		Description: "Service urls should use https",
		Severity:    SeverityWarning,
		Enabled:     true,
		Rego: `package layerkit.policies.urls

import rego.v1

deny contains violation if {
	url := input.layer.url
	startswith(lower(url), "http://")
	violation := {
		"message": sprintf("service url %s is not https", [url]),
		"field": "url",
	}
}
`,
	}
}

// wmsIdentifyPolicy flags queryable WMS layers whose info format the
// identify code cannot read; such layers always identify to nothing.
func wmsIdentifyPolicy() Policy {
	return Policy{
		Name:        "wms-identify",
		Description: "Queryable WMS layers need a supported featureInfoMimeType",
		Severity:    SeverityWarning,
		Enabled:     true,
		Rego: `package layerkit.policies.wms

import rego.v1

supported := {"text/html;fgpv=summary", "text/html", "text/plain", "application/json"}

deny contains violation if {
	input.layer.layerType == "ogcWms"
	input.layer.state.query
	mime := object.get(input.layer, "featureInfoMimeType", "")
	not mime in supported
	violation := {
		"message": sprintf("featureInfoMimeType %q is not supported; identify will return nothing", [mime]),
		"field": "featureInfoMimeType",
	}
}

deny contains violation if {
	input.layer.layerType == "ogcWms"
	some i, entry in input.layer.layerEntries
	object.get(entry, "id", "") == ""
	violation := {
		"message": "WMS layer entries need the service layer id",
		"field": sprintf("layerEntries[%d].id", [i]),
		"severity": "error",
	}
}
`,
	}
}

// bannedEntryControlsPolicy reports entry controls the cascade always strips.
func bannedEntryControlsPolicy() Policy {
	return Policy{
		Name:        "banned-entry-controls",
		Description: "Dynamic layer entries list controls sublayers can never have",
		Severity:    SeverityInfo,
		Enabled:     true,
		Rego: `package layerkit.policies.controls

import rego.v1

banned := {"reload", "snapshot", "boundingBox"}

deny contains violation if {
	input.layer.layerType == "esriDynamic"
	some i, entry in input.layer.layerEntries
	some control in object.get(entry, "controls", [])
	banned[control]
	violation := {
		"message": sprintf("control %s is removed from every sublayer", [control]),
		"field": sprintf("layerEntries[%d].controls", [i]),
	}
}
`,
	}
}

func tolerancePolicy() Policy {
	return Policy{
		Name:        "identify-tolerance",
		Description: "Identify tolerances above 20 pixels make clicks ambiguous",
		Severity:    SeverityWarning,
		Enabled:     true,
		Rego: `package layerkit.policies.tolerance

import rego.v1

deny contains violation if {
	input.layer.tolerance > 20
	violation := {
		"message": sprintf("tolerance of %d pixels is very large", [input.layer.tolerance]),
		"field": "tolerance",
	}
}
`,
	}
}
