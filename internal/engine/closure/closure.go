// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package closure implements the engine's dual-execution entry points.
//
// The original implementation identifies a closure by a captured function
// pointer plus an argument tuple (Closure<Ret, Args...>). Go has no
// equivalent of capturing a bare function pointer for later re-invocation
// across goroutines by identity, and the closure set this engine drives
// (the key/value store's set/get/del operations) is closed and known ahead
// of time. Design guidance for such a closed set favors a tagged sum type
// over function-pointer identity, so Run2 here identifies a closure by a
// small Tag enum: the worker records the tag and its argument struct in the
// log, and the validator looks up the matching validator-side function by
// tag from a Dispatch table that Run2 fills in the first time each tag is
// used, instead of carrying a function value across the log at all.
package closure

import (
	"time"

	"github.com/kianostad/scee/internal/concurrency/epoch"
	"github.com/kianostad/scee/internal/engine/logbuf"
)

// Tag identifies one of the engine's registered (app function, validator
// function) pairs.
type Tag uint8

// Dispatch maps a Tag to the validator-side replay function for that tag,
// built up lazily as Run2 is called with each tag for the first time.
type Dispatch struct {
	fns map[Tag]func(*logbuf.Reader) bool
}

// NewDispatch creates an empty dispatch table.
func NewDispatch() *Dispatch {
	return &Dispatch{fns: make(map[Tag]func(*logbuf.Reader) bool)}
}

// register installs the replay wrapper for tag if one is not already
// present. The closure set is closed, so every call for a given tag across
// the process registers the same (app, validator) pair; only the first call
// has any effect.
func register[Args any, Ret comparable](d *Dispatch, tag Tag, valFn func(Args) Ret) {
	if _, ok := d.fns[tag]; ok {
		return
	}
	d.fns[tag] = func(rd *logbuf.Reader) bool {
		args := logbuf.FetchTyped[Args](rd)
		got := valFn(args)
		return !logbuf.CmpTyped(rd, got)
	}
}

// Validate replays the closure tagged in rd's next field (already consumed
// by the caller as a Tag) using the registered validator function, and
// reports whether the logged return value disagrees with the freshly
// computed one — a true result means the validator detected a mismatch.
func (d *Dispatch) Validate(tag Tag, rd *logbuf.Reader) bool {
	fn, ok := d.fns[tag]
	if !ok {
		panic("closure: no validator registered for tag")
	}
	return fn(rd)
}

// Worker owns the per-goroutine state needed to run closures: its own
// slice of the log allocator, the shared epoch start-log, the handoff queue
// to its paired validator, and the dispatch table both sides share.
type Worker struct {
	Alloc        *logbuf.Allocator
	StartLog     *epoch.StartLog
	Dispatch     *Dispatch
	SyncValidate bool

	enqueue func(*logbuf.Record)
}

// NewWorker creates a Worker. enqueue is called once per committed record to
// hand it to the paired validator; it must not block indefinitely — callers
// typically wrap an *spsc.Queue[*logbuf.Record] with a short spin-retry.
func NewWorker(alloc *logbuf.Allocator, startLog *epoch.StartLog, dispatch *Dispatch, syncValidate bool, enqueue func(*logbuf.Record)) *Worker {
	return &Worker{
		Alloc:        alloc,
		StartLog:     startLog,
		Dispatch:     dispatch,
		SyncValidate: syncValidate,
		enqueue:      enqueue,
	}
}

// Run2 is the dual-execution entry point: it opens a new log, records the
// tag and arguments, runs appFn over args, records the return value, and
// commits the record to the validator queue. In synchronous mode it blocks
// until the validator has retired the record before returning.
func Run2[Args any, Ret comparable](w *Worker, tag Tag, appFn, valFn func(Args) Ret, args Args) Ret {
	register(w.Dispatch, tag, valFn)

	gcEpoch := w.StartLog.NewClosure()
	rec := w.Alloc.Allocate(gcEpoch, time.Now().UnixNano())

	logbuf.AppendTyped(rec, uint8(tag))
	logbuf.AppendTyped(rec, args)

	ret := appFn(args)

	logbuf.AppendTyped(rec, ret)

	var ticket *Ticket
	if w.SyncValidate {
		ticket = NewTicket()
	}
	w.Alloc.Commit(rec, ticketInterface(ticket))
	w.enqueue(rec)

	if ticket != nil {
		ticket.Wait()
	}
	return ret
}

// ticketInterface avoids the classic Go trap of wrapping a nil *Ticket in a
// non-nil logbuf.Ticket interface value, which would make logbuf.Record
// think a ticket is attached when none is.
func ticketInterface(t *Ticket) logbuf.Ticket {
	if t == nil {
		return nil
	}
	return t
}
