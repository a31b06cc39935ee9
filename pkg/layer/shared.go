package layer

import (
	"slices"
	"sync"
)

// Shared is a list handle that is mutated in place. Every holder of the
// pointer observes every change; readers receive copies.
type Shared[T comparable] struct {
	mu    sync.RWMutex
	items []T
}

// NewShared returns a handle holding a copy of items.
func NewShared[T comparable](items ...T) *Shared[T] {
	return &Shared[T]{items: slices.Clone(items)}
}

// Items returns a copy of the current contents.
func (s *Shared[T]) Items() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.items)
}

// Len returns the number of items.
func (s *Shared[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Contains reports whether v is present.
func (s *Shared[T]) Contains(v T) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Contains(s.items, v)
}

// Append adds values to the end.
func (s *Shared[T]) Append(v ...T) {
	s.mu.Lock()
	s.items = append(s.items, v...)
	s.mu.Unlock()
}

// Remove deletes the first occurrence of v and reports whether it was found.
func (s *Shared[T]) Remove(v T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.Index(s.items, v)
	if i < 0 {
		return false
	}
	s.items = slices.Delete(s.items, i, i+1)
	return true
}

// Replace swaps the whole contents.
func (s *Shared[T]) Replace(v ...T) {
	s.mu.Lock()
	s.items = append(s.items[:0], v...)
	s.mu.Unlock()
}

// IndexSet is a shared set of sublayer indexes kept in insertion order.
type IndexSet struct {
	Shared[int]
}

// NewIndexSet returns a set holding the distinct values of indexes.
func NewIndexSet(indexes ...int) *IndexSet {
	s := &IndexSet{}
	s.Replace(indexes...)
	return s
}

// Add inserts idx unless already present. It reports whether the set changed.
func (s *IndexSet) Add(idx int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slices.Contains(s.items, idx) {
		return false
	}
	s.items = append(s.items, idx)
	return true
}

// Replace swaps the contents, dropping duplicates.
func (s *IndexSet) Replace(indexes ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = s.items[:0]
	for _, idx := range indexes {
		if !slices.Contains(s.items, idx) {
			s.items = append(s.items, idx)
		}
	}
}

// Render styles of a symbology stack.
const (
	RenderStyleIcons  = "icons"
	RenderStyleImages = "images"
)

// SymbologyBundle is the symbol stack a legend binds to. It is handed from
// placeholder to real feature class by reference and updated in place.
type SymbologyBundle struct {
	mu          sync.RWMutex
	stack       []SymbologyItem
	renderStyle string
}

// NewSymbologyBundle returns a bundle with the given stack and icon style.
func NewSymbologyBundle(stack ...SymbologyItem) *SymbologyBundle {
	return &SymbologyBundle{stack: slices.Clone(stack), renderStyle: RenderStyleIcons}
}

// Stack returns a copy of the symbols.
func (b *SymbologyBundle) Stack() []SymbologyItem {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.stack)
}

// RenderStyle returns how the stack should be drawn.
func (b *SymbologyBundle) RenderStyle() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.renderStyle
}

// Replace swaps the stack contents.
func (b *SymbologyBundle) Replace(items ...SymbologyItem) {
	b.mu.Lock()
	b.stack = append(b.stack[:0], items...)
	b.mu.Unlock()
}

// SetRenderStyle changes the render style.
func (b *SymbologyBundle) SetRenderStyle(style string) {
	b.mu.Lock()
	b.renderStyle = style
	b.mu.Unlock()
}
