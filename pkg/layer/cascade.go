package layer

import (
	"slices"
	"sort"
	"strconv"
	"sync"

	"github.com/layerkit/layerkit/pkg/config"
)

// RootID is the node id of the layer root in a sublayer tree.
const RootID = "-1"

// BanList returns the controls no dynamic sublayer may expose. Opacity is
// banned when the server cannot draw sublayers with their own options.
func BanList(supportsDynamicLayers bool) []config.Control {
	ban := []config.Control{config.ControlReload, config.ControlSnapshot, config.ControlBoundingBox}
	if !supportsDynamicLayers {
		ban = append(ban, config.ControlOpacity)
	}
	return ban
}

// SanitizeControls returns controls without any banned entry. The result is
// never nil.
func SanitizeControls(controls, ban []config.Control) []config.Control {
	out := make([]config.Control, 0, len(controls))
	for _, c := range controls {
		if !slices.Contains(ban, c) {
			out = append(out, c)
		}
	}
	return out
}

// NodeConfig is the effective configuration of one node of a sublayer tree.
type NodeConfig struct {
	ID        string           `json:"id"`
	Name      string           `json:"name,omitempty"`
	State     config.State     `json:"state"`
	Controls  []config.Control `json:"controls"`
	Outfields string           `json:"outfields"`
	StateOnly bool             `json:"stateOnly,omitempty"`

	// Explicit is set for nodes that have their own layer entry.
	Explicit bool `json:"explicit"`

	defaulted bool
	rawState  *config.State
	rawCtrls  []config.Control
}

func (n *NodeConfig) clone() NodeConfig {
	c := *n
	c.State = n.State.Clone()
	c.Controls = slices.Clone(n.Controls)
	return c
}

// Cascade derives per-node configuration from the layer root downwards. Each
// node is derived at most once; later lookups return the cached result.
type Cascade struct {
	mu    sync.Mutex
	ban   []config.Control
	nodes map[string]*NodeConfig
}

// NewCascade seeds the table from the layer root and its explicit entries.
func NewCascade(cfg *config.LayerConfig, supportsDynamicLayers bool) *Cascade {
	c := &Cascade{
		ban:   BanList(supportsDynamicLayers),
		nodes: make(map[string]*NodeConfig),
	}

	controls := cfg.Controls
	if controls == nil {
		controls = config.DefaultControls
	}
	outfields := cfg.Outfields
	if outfields == "" {
		outfields = config.DefaultOutfields
	}
	c.nodes[RootID] = &NodeConfig{
		ID:        RootID,
		Name:      cfg.Name,
		State:     cfg.State.Clone(),
		Controls:  SanitizeControls(controls, c.ban),
		Outfields: outfields,
		defaulted: true,
	}

	for _, e := range cfg.LayerEntries {
		id := strconv.Itoa(e.Index)
		n := &NodeConfig{
			ID:        id,
			Name:      e.Name,
			Outfields: e.Outfields,
			StateOnly: e.StateOnly,
			Explicit:  true,
			rawState:  e.State,
			rawCtrls:  e.Controls,
		}
		c.nodes[id] = n
	}
	return c
}

// Ban returns the controls banned for this layer.
func (c *Cascade) Ban() []config.Control { return slices.Clone(c.ban) }

// Root returns the root node.
func (c *Cascade) Root() NodeConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nodes[RootID].clone()
}

// Resolve derives the node id below parentID and caches it. Unknown parents
// resolve against the root.
func (c *Cascade) Resolve(id, parentID string) NodeConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resolveLocked(id, parentID).clone()
}

func (c *Cascade) resolveLocked(id, parentID string) *NodeConfig {
	n := c.nodes[id]
	if n != nil && n.defaulted {
		return n
	}

	parent := c.nodes[parentID]
	if parent == nil || !parent.defaulted {
		parent = c.nodes[RootID]
	}

	if n == nil {
		// Nodes without an entry take everything from the parent but its name.
		d := parent.clone()
		d.ID = id
		d.Name = ""
		d.Explicit = false
		d.StateOnly = false
		d.defaulted = true
		c.nodes[id] = &d
		return &d
	}

	if n.rawCtrls == nil {
		n.Controls = slices.Clone(parent.Controls)
	} else {
		n.Controls = SanitizeControls(n.rawCtrls, c.ban)
	}
	if n.rawState == nil {
		n.State = parent.State.Clone()
	} else {
		n.State = n.rawState.Inherit(parent.State)
	}
	if n.Outfields == "" {
		n.Outfields = config.DefaultOutfields
	}
	n.defaulted = true
	return n
}

// Lookup returns a node only if it has been derived.
func (c *Cascade) Lookup(id string) (NodeConfig, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.nodes[id]
	if !ok || !n.defaulted {
		return NodeConfig{}, false
	}
	return n.clone(), true
}

// Derived lists the ids of every derived node except the root, in id order.
func (c *Cascade) Derived() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var ids []string
	for id, n := range c.nodes {
		if id != RootID && n.defaulted {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		a, errA := strconv.Atoi(ids[i])
		b, errB := strconv.Atoi(ids[j])
		if errA != nil || errB != nil {
			return ids[i] < ids[j]
		}
		return a < b
	})
	return ids
}

// Entries derives every explicit entry against the root and returns them in
// configuration order. It is what a legend sees before the service tree is
// known.
func (c *Cascade) Entries(cfg *config.LayerConfig) []NodeConfig {
	out := make([]NodeConfig, 0, len(cfg.LayerEntries))
	for _, e := range cfg.LayerEntries {
		out = append(out, c.Resolve(strconv.Itoa(e.Index), RootID))
	}
	return out
}
