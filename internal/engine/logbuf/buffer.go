// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package logbuf implements the per-invocation log: the fixed-size buffers
// records are carved from, the records themselves, and the reader a
// validator uses to replay one.
//
// Buffer memory layout mirrors the original implementation's log buffer:
// each Buffer is a fixed MaxBufferSize region that an Allocator carves into
// variable-size Records, packed one after another, until less than
// MinBufferSize remains, at which point the allocator requests a fresh
// Buffer. A Buffer is only returned to the free list once every record
// carved from it has been reclaimed and the allocator has stopped handing
// out new records from it — checking "not in use" before "fully reclaimed"
// avoids false-sharing between the allocator and the validator goroutines
// racing on the same counters.
//
// Unlike the original, a Record does not recover its owning Buffer by
// masking its own address down to a power-of-two boundary; Go offers no safe
// equivalent of aligned_alloc plus pointer masking, so each Record simply
// carries a direct pointer back to its Buffer. Every other invariant —
// nrLogs, inUse, nrReclaimed, and the free-list return condition — is
// preserved exactly.
package logbuf

import (
	"sync"
	"sync/atomic"
)

const (
	// MinBufferSize is the smallest span of a buffer the allocator will
	// hand out as room for a new record before demanding a fresh buffer.
	MinBufferSize = 1 << 15 // 32KiB

	// MaxBufferSize is the total size of one log buffer.
	MaxBufferSize = MinBufferSize * 16 // 512KiB
)

// Buffer is one fixed-size span of memory that records are carved from.
type Buffer struct {
	data [MaxBufferSize]byte

	// nrLogs is only ever written by the allocator goroutine that owns this
	// buffer, so it needs no synchronization of its own. Reader.Close reads
	// it only after observing inUse false, which the allocator stores after
	// its last increment.
	nrLogs uint64

	inUse       atomic.Bool
	nrReclaimed atomic.Uint64
}

func (b *Buffer) reset() {
	b.nrLogs = 0
	b.inUse.Store(true)
	b.nrReclaimed.Store(0)
}

// GlobalAllocator is the process-wide free list of log buffers. A plain
// mutex stands in for the original implementation's user-space spin-lock:
// goroutines cannot safely busy-spin across a descheduled OS thread the way
// a pinned thread can, so the idiomatic substitute is a short-held mutex.
type GlobalAllocator struct {
	mu           sync.Mutex
	free         []*Buffer
	totalCreated atomic.Uint64
}

// NewGlobalAllocator creates an empty free list.
func NewGlobalAllocator() *GlobalAllocator {
	return &GlobalAllocator{}
}

// Acquire returns a buffer from the free list, or a freshly allocated one if
// the free list is empty.
func (g *GlobalAllocator) Acquire() *Buffer {
	g.mu.Lock()
	if n := len(g.free); n > 0 {
		b := g.free[n-1]
		g.free = g.free[:n-1]
		g.mu.Unlock()
		return b
	}
	g.mu.Unlock()
	g.totalCreated.Add(1)
	return &Buffer{}
}

// Release returns a fully-reclaimed buffer to the free list.
func (g *GlobalAllocator) Release(b *Buffer) {
	g.mu.Lock()
	g.free = append(g.free, b)
	g.mu.Unlock()
}

// FreeCount reports how many buffers currently sit on the free list. It
// exists for tests and metrics, not for the allocation fast path.
func (g *GlobalAllocator) FreeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.free)
}

// TotalCreated reports how many distinct buffers this allocator has ever
// minted, counting only cache misses on the free list. Tests use it
// alongside FreeCount to check buffer-count conservation: once every
// allocator drawing from this free list has stopped, TotalCreated minus
// FreeCount should equal the number of allocators still holding an
// unsealed buffer open (at most one per allocator), not grow without bound.
func (g *GlobalAllocator) TotalCreated() int {
	return int(g.totalCreated.Load())
}
