package policy

import (
	"time"

	"github.com/layerkit/layerkit/pkg/config"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for configurations that work but probably not as intended.
	SeverityWarning Severity = "warning"

	// SeverityError is for configurations that should be rejected.
	SeverityError Severity = "error"
)

// Policy is a Rego module whose deny set reports problems with a layer
// config.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	Description string `json:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego"`

	// Severity is used for violations that do not carry their own.
	Severity Severity `json:"severity"`

	Enabled bool `json:"enabled"`

	// Source is the file the policy was loaded from; empty for built-ins.
	Source string `json:"source,omitempty"`
}

// Violation is one problem a policy reported.
type Violation struct {
	Policy   string   `json:"policy"`
	LayerID  string   `json:"layerId,omitempty"`
	Field    string   `json:"field,omitempty"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// Result is the outcome of evaluating every enabled policy.
type Result struct {
	// Allowed is false when any violation has error severity.
	Allowed bool `json:"allowed"`

	Violations []Violation `json:"violations,omitempty"`

	// Warnings are evaluation failures; a failing policy does not block.
	Warnings []string `json:"warnings,omitempty"`

	EvaluatedPolicies []string      `json:"evaluatedPolicies"`
	Duration          time.Duration `json:"duration"`
}

// Count returns the number of violations at severity s.
func (r *Result) Count(s Severity) int {
	n := 0
	for _, v := range r.Violations {
		if v.Severity == s {
			n++
		}
	}
	return n
}

// Input is the document a policy sees as input.
type Input struct {
	Layer *config.LayerConfig `json:"layer"`

	// Path is the config file the layer came from, when known.
	Path string `json:"path,omitempty"`
}
