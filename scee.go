// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package scee provides a self-checking execution engine: every closure
// run through it is executed once on the application's behalf and once
// more by an independent validator, and the two results are compared
// before the validator retires the closure's record. A mismatch signals
// silent data corruption — a bit flip in memory or a miscomputed result
// that ordinary crash-only fault tolerance would never notice, because
// nothing crashed.
//
// # Quick Start
//
//	import "github.com/kianostad/scee"
//
//	err := scee.MainThread(func() error {
//	    store := kvstore.New(1 << 16)
//	    join := scee.AppThread("", func() {
//	        // build an Engine with scee.NewEngine, call scee.Run2 against
//	        // its Worker with store's closure pairs
//	    })
//	    return join()
//	})
//
// # Key Concepts
//
//   - Engine: one worker goroutine paired with one validator goroutine,
//     connected by a single-producer/single-consumer handoff queue.
//   - Closure: an (application function, validator function, arguments)
//     triple registered once and replayed by tag thereafter.
//   - VPtr: a versioned pointer cell — the state abstraction every
//     mutation goes through so a validator can observe a closure's
//     inputs and outputs without racing the application thread.
//
// # See Also
//
// For the engine's internals, see internal/engine. For the case-study
// workload built on top of it, see internal/storage/kvstore and
// internal/server.
package scee

import (
	"github.com/kianostad/scee/internal/engine/closure"
	"github.com/kianostad/scee/internal/engine/runtime"
	"github.com/kianostad/scee/internal/engine/vptr"
)

// MainThread runs f on a dedicated, OS-thread-locked goroutine and
// returns its result. See runtime.MainThread.
func MainThread[T any](f func() T) T {
	return runtime.MainThread(f)
}

// AppThread runs f on a dedicated, OS-thread-locked goroutine, optionally
// pinned to cpuset, and returns a function the caller invokes to wait for
// f to finish. See runtime.AppThread.
func AppThread(cpuset string, f func()) (join func() error) {
	return runtime.AppThread(cpuset, f)
}

// Config configures one worker/validator pair. See runtime.Config.
type Config = runtime.Config

// Engine is one worker paired with its validator. See runtime.Engine.
type Engine = runtime.Engine

// NewEngine builds an Engine from cfg. Call Run before issuing any
// closures, and Stop to shut it down.
func NewEngine(cfg Config) *Engine {
	return runtime.New(cfg)
}

// Worker dispatches closures for dual execution. See closure.Worker.
type Worker = closure.Worker

// Tag identifies a registered closure pair. See closure.Tag.
type Tag = closure.Tag

// Run2 executes the closure registered under tag — calling appFn now and
// arranging for valFn to be replayed later — and returns appFn's result.
// See closure.Run2.
func Run2[Args any, Ret comparable](w *Worker, tag Tag, appFn, valFn func(Args) Ret, args Args) Ret {
	return closure.Run2(w, tag, appFn, valFn, args)
}

// VPtr is a versioned pointer cell: the state abstraction a validator can
// safely observe without racing the application thread that mutates it.
// See vptr.VPtr.
type VPtr[T any] = vptr.VPtr[T]

// FixedPtr is a write-once pointer cell, used where a value is published
// exactly once and never rerefed afterward. See vptr.FixedPtr.
type FixedPtr[T any] = vptr.FixedPtr[T]

// NewVPtr creates a VPtr holding v. See vptr.Create.
func NewVPtr[T any](v *T) *VPtr[T] {
	return vptr.Create(v)
}

// NewFixedPtr creates a FixedPtr holding v. See vptr.CreateFixed.
func NewFixedPtr[T any](v *T) *FixedPtr[T] {
	return vptr.CreateFixed(v)
}
