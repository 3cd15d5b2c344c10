// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package runtime wires a worker and its paired validator into a running
// engine: the handoff queue between them, the shared epoch start-log,
// admission controller, and metrics sink, and the goroutines that drive
// both loops. It also implements the optional CPU pinning the original
// implementation offers via the SCEE_WORK_CPUSET and SCEE_VALIDATION_CPUSET
// environment variables.
//
// Go has no user-level thread the way the original's Thread/AppThread wrap
// std::thread; a goroutine with runtime.LockOSThread called on it is the
// idiomatic substitute for code that needs to pin itself to one OS thread
// for the lifetime of a CPU affinity setting.
package runtime

import (
	"fmt"
	stdruntime "runtime"
	"sync"

	"github.com/kianostad/scee/internal/concurrency/epoch"
	"github.com/kianostad/scee/internal/engine/admission"
	"github.com/kianostad/scee/internal/engine/arena"
	"github.com/kianostad/scee/internal/engine/closure"
	"github.com/kianostad/scee/internal/engine/logbuf"
	"github.com/kianostad/scee/internal/engine/spsc"
	"github.com/kianostad/scee/internal/engine/validator"
	"github.com/kianostad/scee/internal/monitoring/metrics"
)

// Config configures one worker/validator pair.
type Config struct {
	SyncValidate    bool
	MaxConcurrent   int
	SamplingPercent int
	QueueCapacity   int // 0 uses spsc.DefaultCapacity

	// ValidationCPUSet, if non-empty, pins the validator goroutine to the
	// given CPU indices (e.g. "0,2,4-7"). Parsed with ParseCPUSet. It applies
	// only to this Engine's validator goroutine; the goroutine driving
	// Worker is pinned by the caller via AppThread.
	ValidationCPUSet string

	// Admission, if non-nil, is shared with other Engines instead of each
	// building its own. MaxConcurrent then bounds validator concurrency
	// process-wide across every Engine sharing it, rather than per-Engine.
	Admission *admission.Controller

	// Global, if non-nil, is shared with other Engines' allocators instead
	// of each Engine drawing from its own buffer free list.
	Global *logbuf.GlobalAllocator
}

// Engine is one worker paired with its validator, sharing a dispatch table,
// log buffer allocator, epoch start-log, admission controller, and metrics
// sink.
type Engine struct {
	Worker    *closure.Worker
	Validator *validator.Loop
	Global    *logbuf.GlobalAllocator
	StartLog  *epoch.StartLog
	Metrics   *metrics.Metrics

	// Arena is scratch space for whatever goroutine drives Worker. A
	// closure itself never allocates; code that turns a closure's result
	// into wire bytes can carve its scratch buffer out of Arena instead
	// of allocating a new one per request, and Reset it between requests.
	Arena *arena.Arena

	queue            *spsc.Queue[*logbuf.Record]
	validationCPUSet string
	wg               sync.WaitGroup
}

// New builds an Engine from cfg. The caller must call Run to start the
// validator goroutine before issuing any closures through Worker, and Stop
// to shut it down.
func New(cfg Config) *Engine {
	capacity := cfg.QueueCapacity
	if capacity == 0 {
		capacity = spsc.DefaultCapacity
	}

	global := cfg.Global
	if global == nil {
		global = logbuf.NewGlobalAllocator()
	}
	alloc := logbuf.NewAllocator(global)
	startLog := epoch.NewStartLog()
	dispatch := closure.NewDispatch()
	queue := spsc.NewQueue[*logbuf.Record](capacity)
	m := metrics.NewMetrics()
	adm := cfg.Admission
	if adm == nil {
		adm = admission.New(admission.Config{
			SyncValidate:    cfg.SyncValidate,
			MaxConcurrent:   cfg.MaxConcurrent,
			SamplingPercent: cfg.SamplingPercent,
		})
	}

	enqueue := func(r *logbuf.Record) {
		for !queue.Push(r) {
			stdruntime.Gosched()
		}
	}
	worker := closure.NewWorker(alloc, startLog, dispatch, cfg.SyncValidate, enqueue)
	loop := validator.New(queue, dispatch, global, startLog, adm, m)

	return &Engine{
		Worker:           worker,
		Validator:        loop,
		Global:           global,
		StartLog:         startLog,
		Metrics:          m,
		Arena:            arena.New(),
		queue:            queue,
		validationCPUSet: cfg.ValidationCPUSet,
	}
}

// Run starts the validator goroutine, pinning it to ValidationCPUSet first
// if one was configured. It returns once the goroutine has been launched,
// not once it exits.
func (e *Engine) Run() error {
	var setupErr error
	var setupDone sync.WaitGroup
	setupDone.Add(1)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		stdruntime.LockOSThread()
		defer stdruntime.UnlockOSThread()
		if e.validationCPUSet != "" {
			setupErr = pin(e.validationCPUSet)
		}
		setupDone.Done()
		if setupErr != nil {
			return
		}
		e.Validator.Run()
	}()

	setupDone.Wait()
	return setupErr
}

// Stop asks the validator loop to drain and return, then waits for it.
func (e *Engine) Stop() {
	e.Validator.Stop()
	e.wg.Wait()
	e.Metrics.Close()
}

// Close is the same as Stop: it waits for the validator to drain the queue
// and return.
func (e *Engine) Close() {
	e.Stop()
}

// pin applies a CPU set spec to the calling OS thread. Callers must have
// already called runtime.LockOSThread.
func pin(spec string) error {
	cpus, err := ParseCPUSet(spec)
	if err != nil {
		return err
	}
	if err := setAffinity(cpus); err != nil {
		return fmt.Errorf("runtime: failed to set affinity %q: %w", spec, err)
	}
	return nil
}

// MainThread runs f on a dedicated, OS-thread-locked goroutine and returns
// its result. It mirrors the original implementation's main_thread entry
// point, which the top-level application calls instead of running its logic
// directly on whatever goroutine started the process, so that worker and
// validator goroutines spawned under it can rely on a single pinned
// ancestor for CPU affinity bookkeeping.
func MainThread[T any](f func() T) T {
	resultCh := make(chan T, 1)
	go func() {
		stdruntime.LockOSThread()
		defer stdruntime.UnlockOSThread()
		resultCh <- f()
	}()
	return <-resultCh
}

// AppThread runs f on a dedicated, OS-thread-locked goroutine, optionally
// pinned to cpuset, and returns a function the caller invokes to wait for f
// to finish.
func AppThread(cpuset string, f func()) (join func() error) {
	errCh := make(chan error, 1)
	go func() {
		stdruntime.LockOSThread()
		defer stdruntime.UnlockOSThread()
		if cpuset != "" {
			if err := pin(cpuset); err != nil {
				errCh <- err
				return
			}
		}
		f()
		errCh <- nil
	}()
	return func() error { return <-errCh }
}
