package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/layerkit/layerkit/pkg/config"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	eng, err := NewEngine(zerolog.New(nil).Level(zerolog.Disabled))
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	return eng
}

func layerConfig(c config.LayerConfig) *config.LayerConfig {
	c.ApplyDefaults()
	return &c
}

func TestNewEngine_Builtins(t *testing.T) {
	eng := newTestEngine(t)

	expected := []string{"banned-entry-controls", "identify-tolerance", "secure-urls", "wms-identify"}
	policies := eng.ListPolicies()
	if len(policies) != len(expected) {
		t.Fatalf("expected %d built-in policies, got %d", len(expected), len(policies))
	}
	for i, name := range expected {
		if policies[i].Name != name {
			t.Errorf("policy %d: expected %s, got %s", i, name, policies[i].Name)
		}
	}
}

func TestEvaluateLayer_Builtins(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	tests := []struct {
		name          string
		layer         *config.LayerConfig
		expectPolicy  string
		expectField   string
		expectAllowed bool
	}{
		{
			name: "clean layer",
			layer: layerConfig(config.LayerConfig{
				ID: "parcels", LayerType: config.KindFeature,
				URL: "https://example.com/arcgis/rest/services/Parcels/FeatureServer/0",
			}),
			expectAllowed: true,
		},
		{
			name: "plain http",
			layer: layerConfig(config.LayerConfig{
				ID: "parcels", LayerType: config.KindFeature,
				URL: "http://example.com/arcgis/rest/services/Parcels/FeatureServer/0",
			}),
			expectPolicy:  "secure-urls",
			expectField:   "url",
			expectAllowed: true,
		},
		{
			name: "wms without info format",
			layer: layerConfig(config.LayerConfig{
				ID: "radar", LayerType: config.KindWMS, URL: "https://example.com/wms",
				LayerEntries: []config.LayerEntry{{ID: "RADAR"}},
			}),
			expectPolicy:  "wms-identify",
			expectField:   "featureInfoMimeType",
			expectAllowed: true,
		},
		{
			name: "wms entry without id",
			layer: layerConfig(config.LayerConfig{
				ID: "radar", LayerType: config.KindWMS, URL: "https://example.com/wms",
				FeatureInfoMimeType: "text/plain",
				LayerEntries:        []config.LayerEntry{{Index: 0}},
			}),
			expectPolicy:  "wms-identify",
			expectField:   "layerEntries[0].id",
			expectAllowed: false,
		},
		{
			name: "banned entry control",
			layer: layerConfig(config.LayerConfig{
				ID: "hydro", LayerType: config.KindDynamic, URL: "https://example.com/MapServer",
				LayerEntries: []config.LayerEntry{{Index: 2, Controls: []config.Control{config.ControlReload}}},
			}),
			expectPolicy:  "banned-entry-controls",
			expectField:   "layerEntries[0].controls",
			expectAllowed: true,
		},
		{
			name: "huge tolerance",
			layer: layerConfig(config.LayerConfig{
				ID: "hydro", LayerType: config.KindDynamic, URL: "https://example.com/MapServer",
				Tolerance: 40,
			}),
			expectPolicy:  "identify-tolerance",
			expectField:   "tolerance",
			expectAllowed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := eng.EvaluateLayer(ctx, tt.layer)
			if err != nil {
				t.Fatalf("EvaluateLayer failed: %v", err)
			}
			if len(res.Warnings) > 0 {
				t.Fatalf("unexpected evaluation warnings: %v", res.Warnings)
			}
			if res.Allowed != tt.expectAllowed {
				t.Errorf("expected allowed=%v, got %v (%+v)", tt.expectAllowed, res.Allowed, res.Violations)
			}
			if tt.expectPolicy == "" {
				if len(res.Violations) != 0 {
					t.Errorf("expected no violations, got %+v", res.Violations)
				}
				return
			}
			if len(res.Violations) != 1 {
				t.Fatalf("expected one violation, got %+v", res.Violations)
			}
			v := res.Violations[0]
			if v.Policy != tt.expectPolicy || v.Field != tt.expectField || v.LayerID != tt.layer.ID {
				t.Errorf("unexpected violation %+v", v)
			}
		})
	}
}

func TestEngine_CustomPolicyAndToggle(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	dir := t.TempDir()
	rego := `# Tile layers cannot be queried.
package layerkit.custom.tiles

import rego.v1

deny contains "tile layers should not be queryable" if {
	input.layer.layerType == "esriTile"
	input.layer.state.query
}
`
	if err := os.WriteFile(filepath.Join(dir, "no-tile-query.rego"), []byte(rego), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := eng.LoadPolicies(ctx, []string{dir}); err != nil {
		t.Fatalf("LoadPolicies failed: %v", err)
	}

	p, err := eng.Policy("no-tile-query")
	if err != nil {
		t.Fatalf("custom policy not registered: %v", err)
	}
	if p.Description != "Tile layers cannot be queried." {
		t.Errorf("unexpected description %q", p.Description)
	}

	f := &config.File{Layers: []config.LayerConfig{
		*layerConfig(config.LayerConfig{ID: "base", LayerType: config.KindTile, URL: "https://example.com/MapServer"}),
		*layerConfig(config.LayerConfig{ID: "hydro", LayerType: config.KindDynamic, URL: "https://example.com/MapServer"}),
	}}
	res, err := eng.EvaluateFile(ctx, "layers.yaml", f)
	if err != nil {
		t.Fatalf("EvaluateFile failed: %v", err)
	}
	if res.Count(SeverityWarning) != 1 || res.Violations[0].LayerID != "base" {
		t.Fatalf("expected one warning on base, got %+v", res.Violations)
	}
	if res.Violations[0].Message != "tile layers should not be queryable" {
		t.Errorf("unexpected message %q", res.Violations[0].Message)
	}

	if err := eng.SetEnabled("no-tile-query", false); err != nil {
		t.Fatal(err)
	}
	res, err = eng.EvaluateFile(ctx, "layers.yaml", f)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Violations) != 0 {
		t.Errorf("disabled policy still reported %+v", res.Violations)
	}
	if err := eng.SetEnabled("missing", true); err == nil {
		t.Error("expected error toggling unknown policy")
	}
}

func TestEngine_RejectsInvalidRego(t *testing.T) {
	eng := newTestEngine(t)
	path := filepath.Join(t.TempDir(), "broken.rego")
	if err := os.WriteFile(path, []byte("package broken\n\ndeny contains if {"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := eng.LoadPolicies(context.Background(), []string{path}); err == nil {
		t.Fatal("expected compile error")
	}
}
