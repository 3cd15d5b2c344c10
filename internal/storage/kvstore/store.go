// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package kvstore implements the engine's case-study workload: a
// fixed-capacity, bucket-chained key/value map built entirely on top of
// vptr.VPtr/FixedPtr cells instead of a conventional mutex-guarded map, so
// every read follows the same versioned-pointer discipline the rest of the
// engine validates.
//
// Keys and values are fixed-size byte arrays, not slices: closure.Run2
// requires its Args and Ret types to be comparable, plain, pointer-free
// values so they can ride through the per-invocation log as raw bytes, and
// a Go slice header is neither — mirroring the teacher's own index package,
// which accepts []byte keys at its API boundary but hashes and compares
// them byte-by-byte rather than by pointer identity.
//
// Unlike the versioned-pointer machinery in vptr, Store never hands a raw
// pointer across the dual-execution boundary: a record's logged Ret is
// always a plain value copy (Value or DelResult — arrays, a bool, or a
// small enum), never a *Value. Go's garbage collector has no visibility
// into pointer-sized bit patterns smuggled through a []byte log buffer via
// unsafe.Pointer, so a displaced Value staying reachable only through such
// a pattern could be collected out from under a validator still holding
// its address. Copying the value instead sidesteps the hazard entirely and
// needs no epoch-gated free list: once nothing references a displaced
// Value, the collector reclaims it exactly as it would any other orphaned
// allocation.
package kvstore

import (
	"sync"

	"github.com/kianostad/scee/internal/engine/vptr"
)

const (
	// KeySize bounds a key the same way the reference workload's Key type
	// does, trading unbounded keys for a fixed, trivially-copyable layout.
	KeySize = 16
	// ValSize bounds a stored value for the same reason.
	ValSize = 64
)

// Key is a fixed-size key.
type Key [KeySize]byte

// Val is a fixed-size stored value.
type Val [ValSize]byte

// Value is what a bucket entry's VPtr actually points at: the payload plus
// a tombstone bit, so Del can publish a still-visible "this key is gone"
// marker instead of unlinking the entry (which would race in-flight
// readers walking the chain).
type Value struct {
	Val       Val
	Tombstone bool
}

// Entry is one bucket-chain node. Its key and chain link are fixed at
// construction; only its value cell is ever rereffed.
type Entry struct {
	key   Key
	value *vptr.VPtr[Value]
	next  *vptr.FixedPtr[Entry]
}

// Store is a fixed-bucket-count hash map. Each bucket head is itself a
// VPtr[Entry], published under a per-bucket mutex that serializes writers;
// readers never take the mutex and always see a consistent chain because
// Entry.next is write-once.
type Store struct {
	buckets []*vptr.VPtr[Entry]
	locks   []sync.Mutex
	mask    uint64
}

// New creates a Store with capacity buckets, which must be a power of two —
// the same constraint (and panic-on-violation convention) the teacher's
// index.NewHashIndex enforces.
func New(capacity uint64) *Store {
	if capacity == 0 || (capacity&(capacity-1)) != 0 {
		panic("kvstore: capacity must be a power of 2")
	}
	s := &Store{
		buckets: make([]*vptr.VPtr[Entry], capacity),
		locks:   make([]sync.Mutex, capacity),
		mask:    capacity - 1,
	}
	for i := range s.buckets {
		s.buckets[i] = vptr.Create[Entry](nil)
	}
	return s
}

func (s *Store) hash(key Key) uint64 {
	const (
		fnvPrime       uint64 = 1099511628211
		fnvOffsetBasis uint64 = 14695981039346656037
	)
	hash := fnvOffsetBasis
	for _, b := range key {
		hash ^= uint64(b)
		hash *= fnvPrime
	}
	return hash & s.mask
}

func (s *Store) find(bucketIdx uint64, key Key) *Entry {
	for e := s.buckets[bucketIdx].Load(); e != nil; e = e.next.Get() {
		if e.key == key {
			return e
		}
	}
	return nil
}

// Get returns the value stored for key, and whether it was found at all
// (a tombstoned key reports found=false, just like one never written).
func (s *Store) Get(key Key) (Val, bool) {
	v := s.GetValue(key)
	if v.Tombstone {
		return Val{}, false
	}
	return v.Val, true
}

// GetValue returns a copy of the currently published value for key,
// including its tombstone state. A key with no entry at all reports as
// tombstoned, the same observable state as one that was written and then
// deleted. It is the function both sides of a dual-executed get issue,
// since Value is a plain, pointer-free struct safe to carry through the
// per-invocation log as a raw byte copy.
func (s *Store) GetValue(key Key) Value {
	e := s.find(s.hash(key), key)
	if e == nil {
		return Value{Tombstone: true}
	}
	v := e.value.Load()
	if v == nil {
		return Value{Tombstone: true}
	}
	return *v
}

// SetResult mirrors the original implementation's RetType for set: whether
// the key already existed (Stored) or was newly created (Created).
type SetResult uint8

const (
	Stored SetResult = iota
	Created
)

// Set stores val for key, overwriting any existing entry (including a
// tombstoned one) or creating a new bucket-chain node. Its SetResult tells
// the caller whether an entry for the key already existed; a tombstoned
// entry counts as existing. It is not part of dual-execution validation
// (see AppSet/ValSet in closures.go), and internal/server does not use it:
// the wire protocol's CREATED/STORED reply comes from the server's own
// existence check.
//
// Set is idempotent in its mutation: rereffing the value cell to an
// identical payload a second time, or linking the same not-yet-visible
// chain node twice, is harmless.
func (s *Store) Set(key Key, val Val) SetResult {
	idx := s.hash(key)
	if e := s.find(idx, key); e != nil {
		e.value.Reref(&Value{Val: val})
		return Stored
	}

	s.locks[idx].Lock()
	defer s.locks[idx].Unlock()

	if e := s.find(idx, key); e != nil {
		e.value.Reref(&Value{Val: val})
		return Stored
	}

	head := s.buckets[idx].Load()
	entry := &Entry{
		key:   key,
		value: vptr.Create(&Value{Val: val}),
		next:  vptr.CreateFixed(head),
	}
	s.buckets[idx].Reref(entry)
	return Created
}

// DelResult mirrors the original implementation's RetType for del.
type DelResult uint8

const (
	Deleted DelResult = iota
	NotFound
)

// Del tombstones the entry for key, resolving the original implementation's
// unimplemented del path (see package doc) by publishing a visible
// "deleted" marker rather than physically unlinking the node, so any
// reader still walking the chain never observes a freed node.
//
// Del is fully idempotent: tombstoning an already-tombstoned entry is a
// harmless no-op that still reports Deleted. This is a deliberate
// departure from a conventional store's "delete of an already-deleted key
// reports not-found" behavior, made specifically so a dual-executed del's
// validator-side replay — a second literal call to Del with the same key —
// always agrees with the first. NotFound is reserved for a key that was
// never written at all, which neither call can affect.
func (s *Store) Del(key Key) DelResult {
	e := s.find(s.hash(key), key)
	if e == nil {
		return NotFound
	}
	e.value.Reref(&Value{Tombstone: true})
	return Deleted
}
