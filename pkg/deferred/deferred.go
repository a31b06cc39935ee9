// Package deferred provides a settle-once result that any number of goroutines
// can wait on, plus a memo that hands the same in-flight result to every caller
// until it is explicitly cleared.
package deferred

import (
	"context"
	"sync"
)

// Deferred is a value or error that becomes available exactly once.
type Deferred[T any] struct {
	done chan struct{}
	once sync.Once
	val  T
	err  error
}

// New returns an unsettled Deferred.
func New[T any]() *Deferred[T] {
	return &Deferred[T]{done: make(chan struct{})}
}

// Resolved returns a Deferred already settled with v.
func Resolved[T any](v T) *Deferred[T] {
	d := New[T]()
	d.Resolve(v)
	return d
}

// Rejected returns a Deferred already settled with err.
func Rejected[T any](err error) *Deferred[T] {
	d := New[T]()
	d.Reject(err)
	return d
}

// Go runs fn on its own goroutine and settles the returned Deferred with its result.
func Go[T any](fn func() (T, error)) *Deferred[T] {
	d := New[T]()
	go func() {
		v, err := fn()
		d.settle(v, err)
	}()
	return d
}

// Resolve settles d with v. Later calls to Resolve or Reject are ignored.
func (d *Deferred[T]) Resolve(v T) {
	d.settle(v, nil)
}

// Reject settles d with err. Later calls to Resolve or Reject are ignored.
func (d *Deferred[T]) Reject(err error) {
	var zero T
	d.settle(zero, err)
}

func (d *Deferred[T]) settle(v T, err error) {
	d.once.Do(func() {
		d.val = v
		d.err = err
		close(d.done)
	})
}

// Done is closed once d has settled.
func (d *Deferred[T]) Done() <-chan struct{} {
	return d.done
}

// Wait blocks until d settles or ctx is done. Abandoning the wait does not
// affect the underlying computation.
func (d *Deferred[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-d.done:
		return d.val, d.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Peek reports the settled result without blocking. ok is false while pending.
func (d *Deferred[T]) Peek() (v T, err error, ok bool) {
	select {
	case <-d.done:
		return d.val, d.err, true
	default:
		var zero T
		return zero, nil, false
	}
}

// Then chains fn onto d. The returned Deferred settles with fn's result, or
// with d's error if d rejects.
func Then[T, U any](d *Deferred[T], fn func(T) (U, error)) *Deferred[U] {
	out := New[U]()
	go func() {
		<-d.done
		if d.err != nil {
			out.Reject(d.err)
			return
		}
		out.settle(fn(d.val))
	}()
	return out
}
