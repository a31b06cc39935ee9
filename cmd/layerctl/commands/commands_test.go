package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layerkit/layerkit/pkg/config"
	"github.com/layerkit/layerkit/pkg/layer"
	"github.com/layerkit/layerkit/pkg/stores"
)

const layersYAML = `
layers:
  - id: hydro
    layerType: esriDynamic
    url: https://example.com/arcgis/rest/services/Hydro/MapServer
    state:
      opacity: 0.5
    layerEntries:
      - index: 2
        state:
          visibility: false
  - id: parcels
    layerType: esriFeature
    url: https://example.com/arcgis/rest/services/Parcels/FeatureServer/0
`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand("test", "none", "today")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "layers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(layersYAML), 0o600))
	return path
}

func TestValidate(t *testing.T) {
	path := writeConfig(t)

	out, err := run(t, "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "2 layer(s)")
	assert.Contains(t, out, "hydro")

	assert.Contains(t, out, "no violations")

	out, err = run(t, "validate", "--json", path)
	require.NoError(t, err)
	var got validateOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got.Layers, 2)
	assert.Equal(t, 0.5, got.Layers[0].Opacity)
	assert.True(t, got.Layers[1].Visible)
	require.NotNil(t, got.Policy)
	assert.True(t, got.Policy.Allowed)
	assert.Len(t, got.Policy.EvaluatedPolicies, 4)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("layers:\n  - layerType: esriFeature\n"), 0o600))
	_, err = run(t, "validate", bad)
	assert.Error(t, err)
}

func TestValidatePolicies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
layers:
  - id: radar
    layerType: ogcWms
    url: http://example.com/wms
    featureInfoMimeType: text/plain
    layerEntries:
      - id: RADAR
`), 0o600))

	out, err := run(t, "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "[warning] radar url")
	assert.Contains(t, out, "secure-urls")

	_, err = run(t, "validate", "--strict", path)
	assert.ErrorContains(t, err, "strict mode")

	_, err = run(t, "validate", "--strict", "--no-policy", path)
	assert.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "no-wms.json"), []byte(`{
  "name": "no-wms",
  "severity": "error",
  "enabled": true,
  "rego": "package site.wms\n\nimport rego.v1\n\ndeny contains \"WMS layers are not allowed\" if input.layer.layerType == \"ogcWms\"\n"
}`), 0o600))

	out, err = run(t, "validate", "--policy", dir, path)
	assert.ErrorContains(t, err, "1 policy error(s)")
	assert.Contains(t, out, "WMS layers are not allowed")
}

func TestCascade(t *testing.T) {
	path := writeConfig(t)

	out, err := run(t, "cascade", path, "--layer", "hydro", "--json")
	require.NoError(t, err)

	var got cascadeOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got.Entries, 1)
	assert.Equal(t, "2", got.Entries[0].ID)
	assert.False(t, got.Entries[0].State.IsVisible())
	assert.Equal(t, 0.5, got.Entries[0].State.OpacityValue())
	assert.Contains(t, got.Ban, config.ControlOpacity)

	_, err = run(t, "cascade", path, "--layer", "missing")
	assert.Error(t, err)
}

func TestOffscale(t *testing.T) {
	tests := []struct {
		args     []string
		expected string
	}{
		{[]string{"--scale", "50000", "--min", "100000", "--max", "10000"}, "on scale"},
		{[]string{"--scale", "200000", "--min", "100000"}, "off scale: zoom in"},
		{[]string{"--scale", "5000", "--max", "10000"}, "off scale: zoom out"},
	}
	for _, tt := range tests {
		out, err := run(t, append([]string{"offscale"}, tt.args...)...)
		require.NoError(t, err)
		assert.Equal(t, tt.expected+"\n", out)
	}

	_, err := run(t, "offscale", "--scale", "0")
	assert.Error(t, err)
}

func TestCount(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/MapServer/3/query", r.URL.Path)
		if calls == 1 {
			_, _ = w.Write([]byte(`{"error": {"code": 500}}`))
			return
		}
		_, _ = w.Write([]byte(`{"count": 42}`))
	}))
	defer srv.Close()

	out, err := run(t, "count", srv.URL+"/MapServer/3/")
	require.NoError(t, err)
	assert.Equal(t, "42\n", out)
	assert.Equal(t, 2, calls)
}

func TestJournal(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()

	j, err := stores.NewJournal(stores.Config{Path: dbPath})
	require.NoError(t, err)
	require.NoError(t, j.Init(ctx))
	require.NoError(t, j.Migrate(ctx))
	j.StateChanged(layer.StateChange{
		LayerID: "hydro", LayerType: layer.TypeDynamic,
		From: layer.StateLoading, To: layer.StateLoaded, At: time.Now(),
	})
	j.IdentifyCompleted(layer.IdentifyReport{
		RequestID: "req-1", LayerID: "hydro", LayerType: layer.TypeDynamic,
		Sublayers: []string{"2"}, Hits: 3, Duration: time.Millisecond,
	})
	require.NoError(t, j.Close())

	out, err := run(t, "journal", "--db", dbPath, "--json")
	require.NoError(t, err)

	var got journalOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got.Summaries, 1)
	assert.Equal(t, string(layer.StateLoaded), got.Summaries[0].State)
	require.Len(t, got.Transitions, 1)
	require.Len(t, got.Identify, 1)
	assert.Equal(t, 3, got.Identify[0].Hits)

	out, err = run(t, "journal", "--db", dbPath, "--layer", "other")
	require.NoError(t, err)
	assert.NotContains(t, out, "hydro")
}

func TestLegend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Hydro/MapServer/legend", r.URL.Path)
		_, _ = w.Write([]byte(`{"layers": [{"layerId": 3, "legend": [{"label": "Lakes", "url": "img1"}]}]}`))
	}))
	defer srv.Close()

	out, err := run(t, "legend", srv.URL+"/Hydro/FeatureServer", "--index", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "Lakes")
	assert.Contains(t, out, "/Hydro/MapServer/3/images/img1")

	out, err = run(t, "legend", "https://example.com/wms", "--wms", "RADAR", "--json")
	require.NoError(t, err)
	var items []layer.SymbologyItem
	require.NoError(t, json.Unmarshal([]byte(out), &items))
	require.Len(t, items, 1)
	assert.Contains(t, items[0].ImageURL, "REQUEST=GetLegendGraphic")
}
