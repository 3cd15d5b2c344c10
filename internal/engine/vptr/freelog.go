// Licensed under the MIT License. See LICENSE file in the project root for details.

package vptr

import "sync"

// deferredRelease is a value displaced by Reref, tagged with the epoch at
// which it was displaced. It is safe to let the Go garbage collector reclaim
// the value once Gate() has advanced past that epoch — no validator replay
// started before the displacement can still be reading it.
type deferredRelease[T any] struct {
	value *T
	epoch uint64
}

// FreeLog is a per-worker queue of values displaced from VPtr cells, held
// until the engine's GC gate proves no in-flight closure can still observe
// them. Unlike the original implementation, FreeLog does not free raw
// memory itself — the Go runtime already owns that — it only defers
// dropping the last reference, which is what makes the value eligible for
// garbage collection. This preserves the epoch-safety invariant (a stale
// version must not become collectible while an in-flight validator might
// still read it) without the manual allocator bookkeeping the original
// needs.
type FreeLog[T any] struct {
	mu      sync.Mutex
	pending []deferredRelease[T]
}

// NewFreeLog creates an empty free log.
func NewFreeLog[T any]() *FreeLog[T] {
	return &FreeLog[T]{}
}

// Defer records that value was displaced at epoch and may be dropped once
// the gate advances past it.
func (fl *FreeLog[T]) Defer(value *T, epoch uint64) {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	fl.pending = append(fl.pending, deferredRelease[T]{value: value, epoch: epoch})
}

// Drain drops every pending reference whose epoch is strictly below gate,
// returning how many were released. A gate of 0 means nothing is active, so
// everything is released.
func (fl *FreeLog[T]) Drain(gate uint64) int {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if len(fl.pending) == 0 {
		return 0
	}

	kept := fl.pending[:0]
	released := 0
	for _, d := range fl.pending {
		if gate == 0 || d.epoch < gate {
			released++
			continue
		}
		kept = append(kept, d)
	}
	fl.pending = kept
	return released
}

// Len reports how many releases are still pending.
func (fl *FreeLog[T]) Len() int {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	return len(fl.pending)
}
