package layer

import "sync"

// Token identifies a registered listener.
type Token uint64

// Listeners is a subscriber list. Fire dispatches to a snapshot of the list,
// so listeners may subscribe or unsubscribe while being called.
type Listeners[T any] struct {
	mu    sync.Mutex
	next  Token
	order []Token
	fns   map[Token]func(T)
}

// Add registers fn and returns its token.
func (l *Listeners[T]) Add(fn func(T)) Token {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = make(map[Token]func(T))
	}
	l.next++
	l.fns[l.next] = fn
	l.order = append(l.order, l.next)
	return l.next
}

// Remove unregisters the listener behind tok.
func (l *Listeners[T]) Remove(tok Token) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.fns[tok]; !ok {
		return ErrListenerNotRegistered
	}
	delete(l.fns, tok)
	for i, t := range l.order {
		if t == tok {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	return nil
}

// Len returns the number of listeners.
func (l *Listeners[T]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.order)
}

// Fire calls every listener with v.
func (l *Listeners[T]) Fire(v T) {
	l.mu.Lock()
	snapshot := make([]func(T), 0, len(l.order))
	for _, t := range l.order {
		snapshot = append(snapshot, l.fns[t])
	}
	l.mu.Unlock()

	for _, fn := range snapshot {
		fn(v)
	}
}
