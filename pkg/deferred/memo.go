package deferred

import "sync"

// Memo caches a single Deferred. The first Get starts the fetch; concurrent and
// later callers receive the identical Deferred until Clear is called. When
// ClearOnError is set, a rejected fetch is dropped before its waiters observe
// the rejection, so the next Get starts fresh.
type Memo[T any] struct {
	ClearOnError bool

	mu  sync.Mutex
	cur *Deferred[T]
}

// Get returns the cached Deferred, starting fetch if there is none.
func (m *Memo[T]) Get(fetch func() (T, error)) *Deferred[T] {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cur != nil {
		return m.cur
	}

	d := New[T]()
	m.cur = d
	go func() {
		v, err := fetch()
		if err != nil && m.ClearOnError {
			m.mu.Lock()
			if m.cur == d {
				m.cur = nil
			}
			m.mu.Unlock()
		}
		d.settle(v, err)
	}()
	return d
}

// Clear drops the cached Deferred. Callers already holding it are unaffected.
func (m *Memo[T]) Clear() {
	m.mu.Lock()
	m.cur = nil
	m.mu.Unlock()
}

// Cached reports whether a Deferred is currently memoized.
func (m *Memo[T]) Cached() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur != nil
}
