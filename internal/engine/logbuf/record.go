// Licensed under the MIT License. See LICENSE file in the project root for details.

package logbuf

import (
	"encoding/binary"
	"fmt"
	"unsafe"
)

// magic is written at the end of every committed record's body so a reader
// can detect gross buffer corruption before trusting anything it read.
const magic = 0x0000DEAD

// tailSize is the width of the length+magic trailer appended at commit.
const tailSize = 8

// Ticket is the narrow interface a synchronous-mode handshake object must
// satisfy to ride along with a Record. The engine's closure package
// implements this; logbuf only needs to call Notify when a record it is
// closing had one attached, so defining the interface here avoids an import
// cycle between logbuf and closure.
type Ticket interface {
	Notify()
}

// Record is one in-flight or committed log, carved from a Buffer.
type Record struct {
	buf      *Buffer
	startOff int
	cursor   int

	length     uint32
	committed  bool
	gcEpoch    uint64
	startNanos int64
	ticket     Ticket
}

// GCEpoch returns the epoch this record's closure was stamped with.
func (r *Record) GCEpoch() uint64 { return r.gcEpoch }

// StartNanos returns the wall-clock time (UnixNano) the closure started at.
func (r *Record) StartNanos() int64 { return r.startNanos }

func alignUp(x, n int) int {
	return (x + n - 1) &^ (n - 1)
}

// Allocator is the per-worker (or per-validator, for its own bookkeeping)
// log allocator: it carves Records out of a current Buffer and requests a
// fresh one from the GlobalAllocator once too little room remains.
type Allocator struct {
	global  *GlobalAllocator
	current *Buffer
	offset  int
}

// NewAllocator creates an allocator drawing buffers from global.
func NewAllocator(global *GlobalAllocator) *Allocator {
	return &Allocator{global: global}
}

// Allocate begins a new record. The caller must Commit it (directly or via
// the closure package) before starting another one on the same allocator.
func (a *Allocator) Allocate(gcEpoch uint64, startNanos int64) *Record {
	if a.current == nil || MaxBufferSize-a.offset < MinBufferSize {
		a.current = a.global.Acquire()
		a.current.reset()
		a.offset = 0
	}
	return &Record{
		buf:        a.current,
		startOff:   a.offset,
		cursor:     a.offset,
		gcEpoch:    gcEpoch,
		startNanos: startNanos,
	}
}

// Commit seals r: it writes the length+magic trailer, attaches the optional
// sync ticket, bumps the owning buffer's record count, and advances the
// allocator's cursor — sealing off the buffer for further allocation if too
// little room remains for another minimum-size record.
func (a *Allocator) Commit(r *Record, ticket Ticket) {
	r.cursor = alignUp(r.cursor, 8)
	length := uint32(r.cursor - r.startOff)
	binary.LittleEndian.PutUint32(r.buf.data[r.cursor:], length)
	binary.LittleEndian.PutUint32(r.buf.data[r.cursor+4:], magic)
	r.cursor += tailSize
	r.length = length
	r.ticket = ticket
	r.committed = true

	r.buf.nrLogs++
	next := alignUp(r.cursor, 8)
	if MaxBufferSize-next < MinBufferSize {
		r.buf.inUse.Store(false)
		a.current = nil
		a.offset = 0
		return
	}
	a.offset = next
}

// AppendTyped writes v's raw bytes into the record's body, 8-byte aligned.
// T must be a plain, pointer-free, fixed-size value — the same
// trivially-copyable constraint the original enforces at compile time via
// is_trivially_copyable_v. Go has no equivalent compile-time trait; callers
// are expected to only ever instantiate AppendTyped/FetchTyped with the
// fixed-width argument and return structs the engine defines for its closed
// set of operations.
func AppendTyped[T any](r *Record, v T) {
	r.cursor = alignUp(r.cursor, 8)
	sz := int(unsafe.Sizeof(v))
	if r.cursor+sz+tailSize > len(r.buf.data) {
		panic("logbuf: record overflowed its buffer")
	}
	*(*T)(unsafe.Pointer(&r.buf.data[r.cursor])) = v
	r.cursor += sz
}

// Reader replays a committed record's body in the same order it was
// written, for validation.
type Reader struct {
	rec    *Record
	cursor int
}

// OpenReader begins reading rec from the start of its body.
func OpenReader(rec *Record) *Reader {
	return &Reader{rec: rec, cursor: rec.startOff}
}

// FetchTyped reads the next positional value of type T and advances the
// read cursor past it.
func FetchTyped[T any](rd *Reader) T {
	rd.cursor = alignUp(rd.cursor, 8)
	var zero T
	sz := int(unsafe.Sizeof(zero))
	v := *(*T)(unsafe.Pointer(&rd.rec.buf.data[rd.cursor]))
	rd.cursor += sz
	return v
}

// Skip advances the read cursor past the next positional value of type T
// without copying it out — used when a validator only needs to skip over a
// header field whose shape it already knows.
func Skip[T any](rd *Reader) {
	rd.cursor = alignUp(rd.cursor, 8)
	var zero T
	rd.cursor += int(unsafe.Sizeof(zero))
}

// CmpTyped fetches the next positional value and reports whether it equals
// want, advancing the cursor exactly as FetchTyped would.
func CmpTyped[T comparable](rd *Reader, want T) bool {
	got := FetchTyped[T](rd)
	return got == want
}

// Close verifies the record's trailer and reclaims it, notifying any
// attached sync ticket. If this record was the last one keeping its buffer
// off the free list, the buffer is released to global and onReclaim (if
// non-nil) is called. Close does not touch the record's epoch; the caller
// retires that. It returns an
// error if the buffer's integrity check fails — callers in this engine
// treat that as unrecoverable corruption and abort the process, per the
// threat model: a torn or overwritten trailer means something scribbled
// over memory the engine was still using.
func (rd *Reader) Close(global *GlobalAllocator, onReclaim func()) error {
	rec := rd.rec
	tailOff := rec.startOff + int(rec.length)
	gotLength := binary.LittleEndian.Uint32(rec.buf.data[tailOff:])
	gotMagic := binary.LittleEndian.Uint32(rec.buf.data[tailOff+4:])
	if gotLength != rec.length || gotMagic != magic {
		return fmt.Errorf("logbuf: corrupt record trailer: length=%d magic=%#x", gotLength, gotMagic)
	}

	if rec.ticket != nil {
		rec.ticket.Notify()
	}

	nr := rec.buf.nrReclaimed.Add(1)
	if !rec.buf.inUse.Load() && nr == rec.buf.nrLogs {
		global.Release(rec.buf)
		if onReclaim != nil {
			onReclaim()
		}
	}
	return nil
}
