package policy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/rs/zerolog"

	"github.com/layerkit/layerkit/pkg/config"
)

// Engine evaluates Rego policies against layer configs.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*compiledPolicy
	logger   zerolog.Logger
}

type compiledPolicy struct {
	policy *Policy
	query  rego.PreparedEvalQuery
}

// NewEngine creates an engine loaded with the built-in policies.
func NewEngine(logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		policies: make(map[string]*compiledPolicy),
		logger:   logger.With().Str("component", "policy-engine").Logger(),
	}

	ctx := context.Background()
	builtins := BuiltinPolicies()
	for i := range builtins {
		if err := e.compile(ctx, &builtins[i]); err != nil {
			return nil, fmt.Errorf("failed to compile built-in policy %s: %w", builtins[i].Name, err)
		}
	}
	return e, nil
}

// LoadPolicies compiles the policies found under paths. A policy with the
// name of a loaded one replaces it.
func (e *Engine) LoadPolicies(ctx context.Context, paths []string) error {
	policies, err := NewLoader(e.logger).LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range policies {
		if err := e.compile(ctx, &policies[i]); err != nil {
			return fmt.Errorf("failed to compile policy %s: %w", policies[i].Name, err)
		}
	}
	e.logger.Info().Int("count", len(policies)).Msg("Policies loaded")
	return nil
}

// EvaluateFile evaluates every layer of f.
func (e *Engine) EvaluateFile(ctx context.Context, path string, f *config.File) (*Result, error) {
	start := time.Now()
	res := &Result{Allowed: true}
	for i := range f.Layers {
		r, err := e.evaluate(ctx, &Input{Layer: &f.Layers[i], Path: path})
		if err != nil {
			return nil, err
		}
		res.Violations = append(res.Violations, r.Violations...)
		res.Warnings = append(res.Warnings, r.Warnings...)
		res.EvaluatedPolicies = r.EvaluatedPolicies
		res.Allowed = res.Allowed && r.Allowed
	}
	res.Duration = time.Since(start)
	return res, nil
}

// EvaluateLayer evaluates one layer config.
func (e *Engine) EvaluateLayer(ctx context.Context, layer *config.LayerConfig) (*Result, error) {
	start := time.Now()
	res, err := e.evaluate(ctx, &Input{Layer: layer})
	if err != nil {
		return nil, err
	}
	res.Duration = time.Since(start)
	return res, nil
}

func (e *Engine) evaluate(ctx context.Context, input *Input) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	res := &Result{Allowed: true}
	for _, name := range e.sortedNames() {
		cp := e.policies[name]
		if !cp.policy.Enabled {
			continue
		}
		res.EvaluatedPolicies = append(res.EvaluatedPolicies, name)

		rs, err := cp.query.Eval(ctx, rego.EvalInput(input))
		if err != nil {
			e.logger.Error().Err(err).
				Str("policy", name).
				Str("layer_id", input.Layer.ID).
				Msg("Policy evaluation failed")
			res.Warnings = append(res.Warnings, fmt.Sprintf("policy %s evaluation failed: %v", name, err))
			continue
		}
		for _, r := range rs {
			if len(r.Expressions) == 0 {
				continue
			}
			set, ok := r.Expressions[0].Value.([]interface{})
			if !ok {
				continue
			}
			for _, d := range set {
				v := newViolation(cp.policy, input.Layer.ID, d)
				if v.Severity == SeverityError {
					res.Allowed = false
				}
				res.Violations = append(res.Violations, v)
			}
		}
	}

	sort.SliceStable(res.Violations, func(i, j int) bool {
		return res.Violations[i].Field < res.Violations[j].Field
	})
	return res, nil
}

func (e *Engine) sortedNames() []string {
	names := make([]string, 0, len(e.policies))
	for name := range e.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// newViolation converts one deny element. Policies may deny with a plain
// string or an object carrying message, field and severity.
func newViolation(p *Policy, layerID string, result interface{}) Violation {
	v := Violation{Policy: p.Name, LayerID: layerID, Severity: p.Severity}
	switch d := result.(type) {
	case string:
		v.Message = d
	case map[string]interface{}:
		if msg, ok := d["message"].(string); ok {
			v.Message = msg
		}
		if field, ok := d["field"].(string); ok {
			v.Field = field
		}
		if sev, ok := d["severity"].(string); ok {
			v.Severity = Severity(sev)
		}
	default:
		v.Message = fmt.Sprintf("%v", d)
	}
	return v
}

// extractPackageName extracts the package name from Rego code.
func extractPackageName(module *ast.Module) string {
	return strings.TrimPrefix(module.Package.Path.String(), "data.")
}

// compile prepares the deny query of p. Callers hold the write lock or own e
// exclusively.
func (e *Engine) compile(ctx context.Context, p *Policy) error {
	module, err := ast.ParseModule(p.Name, p.Rego)
	if err != nil {
		return fmt.Errorf("failed to parse policy: %w", err)
	}

	query, err := rego.New(
		rego.Module(p.Name, p.Rego),
		rego.Query(fmt.Sprintf("data.%s.deny", extractPackageName(module))),
	).PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("failed to prepare query: %w", err)
	}

	e.policies[p.Name] = &compiledPolicy{policy: p, query: query}
	e.logger.Debug().Str("policy", p.Name).Msg("Policy compiled")
	return nil
}

// Policy returns a policy by name.
func (e *Engine) Policy(name string) (*Policy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cp, ok := e.policies[name]
	if !ok {
		return nil, fmt.Errorf("policy not found: %s", name)
	}
	return cp.policy, nil
}

// ListPolicies returns all loaded policies sorted by name.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Policy, 0, len(e.policies))
	for _, name := range e.sortedNames() {
		out = append(out, *e.policies[name].policy)
	}
	return out
}

// SetEnabled enables or disables a policy by name.
func (e *Engine) SetEnabled(name string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp, ok := e.policies[name]
	if !ok {
		return fmt.Errorf("policy not found: %s", name)
	}
	cp.policy.Enabled = enabled
	e.logger.Info().Str("policy", name).Bool("enabled", enabled).Msg("Policy toggled")
	return nil
}
