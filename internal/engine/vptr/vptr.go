// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package vptr implements the engine's versioned-pointer abstraction: a
// CAS-published, epoch-gated reference to an immutable payload.
//
// VPtr[T] is the Go analogue of the original implementation's ptr_t<T>: a
// cell that always holds a pointer to a fully-formed, immutable value of T.
// Readers follow the pointer and trust that whatever they read is internally
// consistent, because a writer never mutates a published value in place —
// it builds a new one and swaps the cell to point at it. FixedPtr[T] is the
// write-once analogue of fixed_ptr_t<T>: useful for links (such as a hash
// bucket's chain pointer) that are established once and never rerouted.
//
// Reref publishes with a single atomic swap and returns the displaced value;
// it does not record that value anywhere itself. CompareAndReref publishes
// with a compare-and-swap for writers that must not overwrite a version
// they did not observe.
package vptr

import "sync/atomic"

// VPtr is a versioned pointer to an immutable value of type T.
type VPtr[T any] struct {
	p atomic.Pointer[T]
}

// Create publishes an initial value and returns a VPtr pointing at it.
func Create[T any](v *T) *VPtr[T] {
	vp := &VPtr[T]{}
	vp.p.Store(v)
	return vp
}

// Load returns the currently published value. It never blocks and never
// observes a partially-constructed value, because publication is a single
// atomic pointer store.
func (vp *VPtr[T]) Load() *T {
	return vp.p.Load()
}

// Reref atomically republishes the cell to point at next, returning the
// value that was displaced so the caller can hand it to a FreeLog for
// epoch-gated reclamation.
func (vp *VPtr[T]) Reref(next *T) *T {
	old := vp.p.Swap(next)
	return old
}

// CompareAndReref atomically republishes the cell to next only if it
// currently points at old, for use in a retry-loop CAS publish when
// multiple writers might race on the same cell.
func (vp *VPtr[T]) CompareAndReref(old, next *T) bool {
	return vp.p.CompareAndSwap(old, next)
}

// FixedPtr is a pointer written exactly once and never rerouted afterward.
// It exists for structural links — such as a hash bucket's next-entry
// pointer — that form a prepend-only chain rather than a mutable cell.
type FixedPtr[T any] struct {
	p atomic.Pointer[T]
}

// CreateFixed returns a FixedPtr pointing at v. Unlike VPtr, a FixedPtr is
// expected to be set once at construction time; SetOnce enforces that.
func CreateFixed[T any](v *T) *FixedPtr[T] {
	fp := &FixedPtr[T]{}
	fp.p.Store(v)
	return fp
}

// Get returns the fixed value, or nil if it was never set.
func (fp *FixedPtr[T]) Get() *T {
	return fp.p.Load()
}

// SetOnce sets the fixed value if (and only if) it has not been set yet.
// It reports whether this call won the race.
func (fp *FixedPtr[T]) SetOnce(v *T) bool {
	return fp.p.CompareAndSwap(nil, v)
}
