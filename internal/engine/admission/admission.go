// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package admission implements the validator admission controller: the
// policy deciding whether a committed log record gets replayed by a
// validator at all, and how many validators may run concurrently.
//
// Two modes mirror the original implementation's validate_one:
//
//   - Asynchronous (default): the controller increments a running count; if
//     that pushes it over MaxConcurrent, the record is reclaimed without
//     validation instead of blocking anything. This trades coverage for
//     throughput under load, the same tradeoff scee.cpp's async admission
//     path makes with fetch_add/fetch_sub.
//   - Synchronous: the controller blocks the caller until a slot is free,
//     guaranteeing every record is validated at the cost of backpressure.
//
// An independent sampling rate (1-100) lets async mode skip validation
// probabilistically even when a slot is available, to control steady-state
// validation overhead.
package admission

import (
	"math/rand/v2"
	"sync"
)

// Controller bounds validator concurrency and, in async mode, samples which
// records get validated at all.
type Controller struct {
	sync       bool
	maxRunning int // 0 means unlimited
	sampling   int // 1-100, 100 means "always validate"
	rngPool    sync.Pool
	mu         sync.Mutex
	cond       *sync.Cond
	nRunning   int
}

// Config configures a Controller.
type Config struct {
	// SyncValidate makes Decide block until a slot is free instead of
	// skipping validation under pressure.
	SyncValidate bool
	// MaxConcurrent caps how many validators may run at once. Zero means
	// unlimited.
	MaxConcurrent int
	// SamplingPercent is the async-mode probability (1-100) that a record
	// is considered for validation at all, independent of MaxConcurrent.
	// Values above 100 are clamped to 100; zero or a negative value also
	// means 100.
	SamplingPercent int
}

// New creates a Controller from cfg.
func New(cfg Config) *Controller {
	sampling := cfg.SamplingPercent
	if sampling <= 0 {
		sampling = 100
	}
	if sampling > 100 {
		sampling = 100
	}
	c := &Controller{
		sync:       cfg.SyncValidate,
		maxRunning: cfg.MaxConcurrent,
		sampling:   sampling,
	}
	c.cond = sync.NewCond(&c.mu)
	c.rngPool.New = func() any {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return c
}

// sampled draws a per-goroutine random percentile rather than contending on
// a single shared generator, matching the "never call into a shared rand on
// the hot path" constraint the original places on its sampling draw.
func (c *Controller) sampled() bool {
	if c.sampling >= 100 {
		return true
	}
	r := c.rngPool.Get().(*rand.Rand)
	defer c.rngPool.Put(r)
	return r.IntN(100) < c.sampling
}

// Decision is the outcome of Decide.
type Decision int

const (
	// Proceed means the caller acquired a slot and must call Release.
	Proceed Decision = iota
	// SkippedSampling means the record was not drawn by the sampling rate;
	// no slot was acquired.
	SkippedSampling
	// RejectedCapacity means the controller was at MaxConcurrent in async
	// mode; no slot was acquired.
	RejectedCapacity
)

// Decide decides whether the caller may validate one record right now. On
// Proceed, the caller must call Release exactly once when finished.
//
// In synchronous mode Decide always blocks until a slot is free and never
// consults the sampling rate — sampling is an async-mode-only knob for
// trading coverage for throughput, and sync mode's whole contract is that
// every record is validated. Sync mode therefore only ever returns Proceed,
// never SkippedSampling or RejectedCapacity.
func (c *Controller) Decide() Decision {
	if !c.sync && !c.sampled() {
		return SkippedSampling
	}

	if c.maxRunning <= 0 {
		c.mu.Lock()
		c.nRunning++
		c.mu.Unlock()
		return Proceed
	}

	if c.sync {
		c.mu.Lock()
		for c.nRunning >= c.maxRunning {
			c.cond.Wait()
		}
		c.nRunning++
		c.mu.Unlock()
		return Proceed
	}

	c.mu.Lock()
	if c.nRunning >= c.maxRunning {
		c.mu.Unlock()
		return RejectedCapacity
	}
	c.nRunning++
	c.mu.Unlock()
	return Proceed
}

// Release frees the slot acquired by a Decide that returned Proceed.
func (c *Controller) Release() {
	c.mu.Lock()
	c.nRunning--
	c.mu.Unlock()
	if c.sync {
		c.cond.Signal()
	}
}

// Running reports how many validators are currently admitted.
func (c *Controller) Running() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nRunning
}
