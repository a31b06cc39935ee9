package layer

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layerkit/layerkit/pkg/config"
)

func TestSanitizeControls(t *testing.T) {
	tests := []struct {
		name     string
		controls []config.Control
		ban      []config.Control
		expected []config.Control
	}{
		{
			name:     "removes banned",
			controls: []config.Control{config.ControlOpacity, config.ControlReload, config.ControlQuery},
			ban:      []config.Control{config.ControlReload},
			expected: []config.Control{config.ControlOpacity, config.ControlQuery},
		},
		{
			name:     "ignores bans not present",
			controls: []config.Control{config.ControlReload, config.ControlData},
			ban:      []config.Control{config.ControlReload, config.ControlSnapshot},
			expected: []config.Control{config.ControlData},
		},
		{
			name:     "empty stays non-nil",
			controls: nil,
			ban:      BanList(false),
			expected: []config.Control{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeControls(tt.controls, tt.ban)
			require.NotNil(t, got)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestBanList(t *testing.T) {
	assert.NotContains(t, BanList(true), config.ControlOpacity)
	assert.Contains(t, BanList(false), config.ControlOpacity)
	for _, c := range []config.Control{config.ControlReload, config.ControlSnapshot, config.ControlBoundingBox} {
		assert.Contains(t, BanList(true), c)
	}
}

func TestCascade_Inheritance(t *testing.T) {
	cfg := &config.LayerConfig{
		ID:        "hydro",
		LayerType: config.KindDynamic,
		State:     config.State{Query: config.Bool(false)},
		LayerEntries: []config.LayerEntry{
			{Index: 0, State: &config.State{Opacity: config.Float(0.5)}},
			{Index: 3, Name: "Wetlands", State: &config.State{Visibility: config.Bool(false)}, Outfields: "NAME"},
		},
	}
	cfg.ApplyDefaults()
	c := NewCascade(cfg, true)

	group := c.Resolve("0", RootID)
	assert.Equal(t, 0.5, group.State.OpacityValue())
	assert.True(t, group.State.IsVisible())
	assert.False(t, group.State.IsQueryable())
	assert.Equal(t, "*", group.Outfields)

	child := c.Resolve("1", "0")
	assert.Equal(t, 0.5, child.State.OpacityValue())
	assert.Empty(t, child.Name)
	assert.False(t, child.Explicit)

	wet := c.Resolve("3", "0")
	assert.False(t, wet.State.IsVisible())
	assert.Equal(t, 0.5, wet.State.OpacityValue())
	assert.Equal(t, "Wetlands", wet.Name)
	assert.Equal(t, "NAME", wet.Outfields)

	// A node is derived once; a later parent does not change it.
	again := c.Resolve("3", RootID)
	assert.Equal(t, 0.5, again.State.OpacityValue())

	assert.Equal(t, []string{"0", "1", "3"}, c.Derived())
}

func TestCascade_ResultsDoNotAlias(t *testing.T) {
	cfg := &config.LayerConfig{ID: "hydro", LayerType: config.KindDynamic}
	cfg.ApplyDefaults()
	c := NewCascade(cfg, true)

	a := c.Resolve("4", RootID)
	*a.State.Visibility = false
	a.Controls[0] = config.ControlRemove

	b, ok := c.Lookup("4")
	require.True(t, ok)
	assert.True(t, b.State.IsVisible())
	assert.NotEqual(t, config.ControlRemove, b.Controls[0])
	assert.True(t, c.Root().State.IsVisible())
}

func TestCascade_LookupBeforeDerivation(t *testing.T) {
	cfg := &config.LayerConfig{
		ID:           "hydro",
		LayerType:    config.KindDynamic,
		LayerEntries: []config.LayerEntry{{Index: 7}},
	}
	cfg.ApplyDefaults()
	c := NewCascade(cfg, false)

	_, ok := c.Lookup("7")
	assert.False(t, ok)

	entries := c.Entries(cfg)
	require.Len(t, entries, 1)
	want := NodeConfig{
		ID:        "7",
		State:     config.DefaultState(),
		Controls:  SanitizeControls(config.DefaultControls, BanList(false)),
		Outfields: "*",
		Explicit:  true,
	}
	if diff := cmp.Diff(want, entries[0], cmpopts.IgnoreUnexported(NodeConfig{})); diff != "" {
		t.Errorf("entry mismatch (-want +got):\n%s", diff)
	}
}
