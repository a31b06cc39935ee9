package layer

import "sync"

// LegendGroup is a legend item grouping other legend interfaces. Its
// visibility and queryability are computed from the children.
type LegendGroup struct {
	mu       sync.RWMutex
	name     string
	children *Shared[*Interface]
	self     legendComposite

	proxyOnce sync.Once
	proxy     *Interface
	visible   Listeners[struct{}]
}

// NewLegendGroup returns a group over children.
func NewLegendGroup(name string, children ...*Interface) *LegendGroup {
	g := &LegendGroup{name: name, children: NewShared(children...)}
	g.self = g
	return g
}

// Name returns the group name.
func (g *LegendGroup) Name() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.name
}

// SetName renames the group.
func (g *LegendGroup) SetName(name string) {
	g.mu.Lock()
	g.name = name
	g.mu.Unlock()
}

// Children is the shared child list.
func (g *LegendGroup) Children() *Shared[*Interface] { return g.children }

// AddChildProxy appends a child.
func (g *LegendGroup) AddChildProxy(p *Interface) { g.children.Append(p) }

// RemoveChildProxy removes a child if present.
func (g *LegendGroup) RemoveChildProxy(p *Interface) { g.children.Remove(p) }

// Visibility is true when any child is visible.
func (g *LegendGroup) Visibility() bool {
	for _, c := range g.children.Items() {
		if v, err := c.Visibility(); err == nil && v {
			return true
		}
	}
	return false
}

// SetVisibility sets every child.
func (g *LegendGroup) SetVisibility(visible bool) {
	for _, c := range g.children.Items() {
		_ = c.SetVisibility(visible)
	}
	g.visibleChanged(visible)
}

// IsQueryable is true when any child is queryable.
func (g *LegendGroup) IsQueryable() bool {
	for _, c := range g.children.Items() {
		if q, err := c.Query(); err == nil && q {
			return true
		}
	}
	return false
}

// SetQueryable sets every child.
func (g *LegendGroup) SetQueryable(queryable bool) {
	for _, c := range g.children.Items() {
		_ = c.SetQuery(queryable)
	}
}

// AddVisibleListener registers fn to run when the group is turned on.
func (g *LegendGroup) AddVisibleListener(fn func()) Token {
	return g.visible.Add(func(struct{}) { fn() })
}

// RemoveVisibleListener unregisters a visible listener.
func (g *LegendGroup) RemoveVisibleListener(tok Token) error { return g.visible.Remove(tok) }

func (g *LegendGroup) visibleChanged(visible bool) {
	if visible {
		g.visible.Fire(struct{}{})
	}
}

// Proxy returns the interface of the group.
func (g *LegendGroup) Proxy() *Interface {
	g.proxyOnce.Do(func() {
		g.proxy = NewInterface(nil, nil)
		g.proxy.ConvertToLegendGroup(g.self)
	})
	return g.proxy
}

// LegendSet is a group whose children are mutually exclusive choices.
type LegendSet struct {
	*LegendGroup
}

// NewLegendSet returns a set over children.
func NewLegendSet(name string, children ...*Interface) *LegendSet {
	s := &LegendSet{LegendGroup: NewLegendGroup(name, children...)}
	s.self = s
	return s
}

// SetVisibility turns on the first child when nothing is visible, or turns
// every child off.
func (s *LegendSet) SetVisibility(visible bool) {
	if !visible {
		s.LegendGroup.SetVisibility(false)
		return
	}
	if s.Visibility() {
		return
	}
	if first := s.children.Items(); len(first) > 0 {
		_ = first[0].SetVisibility(true)
	}
	s.visibleChanged(true)
}

// LegendEntry is a legend item that mirrors a master interface while
// forwarding changes to its children.
type LegendEntry struct {
	*LegendGroup

	masterMu sync.RWMutex
	master   *Interface
}

// NewLegendEntry returns an entry over children.
func NewLegendEntry(children ...*Interface) *LegendEntry {
	e := &LegendEntry{LegendGroup: NewLegendGroup("", children...)}
	e.self = e
	return e
}

// SetMasterProxy sets the interface the entry reads from.
func (e *LegendEntry) SetMasterProxy(p *Interface) {
	e.masterMu.Lock()
	e.master = p
	e.masterMu.Unlock()
}

// Master returns the master interface, nil when unset.
func (e *LegendEntry) Master() *Interface {
	e.masterMu.RLock()
	defer e.masterMu.RUnlock()
	return e.master
}

// Name is the master's name.
func (e *LegendEntry) Name() string {
	if m := e.Master(); m != nil {
		if n, err := m.Name(); err == nil {
			return n
		}
	}
	return ""
}

// SetOpacity sets every child.
func (e *LegendEntry) SetOpacity(opacity float64) {
	for _, c := range e.children.Items() {
		_ = c.SetOpacity(opacity)
	}
}

// Proxy returns the interface of the entry.
func (e *LegendEntry) Proxy() *Interface {
	e.proxyOnce.Do(func() {
		e.proxy = NewInterface(nil, nil)
		e.proxy.ConvertToLegendEntry(e)
	})
	return e.proxy
}
