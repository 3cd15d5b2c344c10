// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package validator implements the validator-side loop: pulling committed
// records off the handoff queue from a paired worker, gating each through
// admission control, replaying it against the registered dispatch table, and
// reclaiming its log slot.
//
// A detected mismatch means the worker's and validator's closures disagreed
// on the same input — the engine's definition of silent data corruption. Per
// the threat model there is no recovery path: the process aborts rather than
// serve a result it can no longer trust.
package validator

import (
	"log"
	"sync/atomic"
	"time"

	"github.com/kianostad/scee/internal/concurrency/epoch"
	"github.com/kianostad/scee/internal/engine/admission"
	"github.com/kianostad/scee/internal/engine/closure"
	"github.com/kianostad/scee/internal/engine/logbuf"
	"github.com/kianostad/scee/internal/engine/spsc"
	"github.com/kianostad/scee/internal/monitoring/metrics"
)

// Fatal is called when a validation mismatch or a corrupt record trailer is
// detected. It defaults to log.Fatalf but tests override it to observe the
// failure without killing the test binary.
var Fatal = func(format string, args ...any) {
	log.Fatalf(format, args...)
}

// Loop owns one validator goroutine's state: the queue it drains records
// from, the dispatch table it replays them against, and the shared
// bookkeeping (epoch gate, log buffer free list, admission control, metrics)
// it coordinates with its paired worker and sibling validators through.
type Loop struct {
	Queue     *spsc.Queue[*logbuf.Record]
	Dispatch  *closure.Dispatch
	Global    *logbuf.GlobalAllocator
	StartLog  *epoch.StartLog
	Admission *admission.Controller
	Metrics   *metrics.Metrics

	stop atomic.Bool
}

// New creates a Loop.
func New(queue *spsc.Queue[*logbuf.Record], dispatch *closure.Dispatch, global *logbuf.GlobalAllocator, startLog *epoch.StartLog, adm *admission.Controller, m *metrics.Metrics) *Loop {
	return &Loop{
		Queue:     queue,
		Dispatch:  dispatch,
		Global:    global,
		StartLog:  startLog,
		Admission: adm,
		Metrics:   m,
	}
}

// Stop asks Run to return once the queue drains. It does not interrupt a
// replay already in progress.
func (l *Loop) Stop() {
	l.stop.Store(true)
}

// Run drains the queue until Stop is called and the queue is empty. It is
// meant to be the body of a dedicated validator goroutine.
func (l *Loop) Run() {
	for {
		rec, ok := l.Queue.Pop()
		if !ok {
			if l.stop.Load() {
				return
			}
			continue
		}
		l.validateOne(rec)
	}
}

// validateOne applies admission control to rec and, if admitted, replays it
// against the dispatch table. Whatever the admission outcome, the record's
// log slot is always reclaimed and its epoch unregistered — a skipped or
// rejected record is still retired, it is simply never compared.
func (l *Loop) validateOne(rec *logbuf.Record) {
	switch l.Admission.Decide() {
	case admission.SkippedSampling:
		l.Metrics.RecordSkipped()
	case admission.RejectedCapacity:
		l.Metrics.RecordAdmissionReject()
	default:
		l.replay(rec)
		l.Admission.Release()
	}

	rd := logbuf.OpenReader(rec)
	if err := rd.Close(l.Global, l.Metrics.RecordBufferReclaimed); err != nil {
		Fatal("scee: %v", err)
	}

	l.StartLog.ValidatedClosure(rec.GCEpoch())
}

// replay reads the tag and dispatches to the registered validator function,
// recording the outcome and aborting the process on a detected mismatch.
func (l *Loop) replay(rec *logbuf.Record) {
	start := time.Now()
	rd := logbuf.OpenReader(rec)
	tag := closure.Tag(logbuf.FetchTyped[uint8](rd))
	mismatch := l.Dispatch.Validate(tag, rd)
	l.Metrics.RecordValidation(time.Since(start), mismatch)

	if mismatch {
		Fatal("scee: validation mismatch detected for closure tag %d at epoch %d", tag, rec.GCEpoch())
	}
}
