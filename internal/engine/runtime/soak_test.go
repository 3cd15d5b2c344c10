// Licensed under the MIT License. See LICENSE file in the project root for details.

package runtime

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kianostad/scee/internal/engine/admission"
	"github.com/kianostad/scee/internal/engine/closure"
	"github.com/kianostad/scee/internal/engine/logbuf"
)

// TestSoakSharedValidationCoreUnderSustainedLoad simulates four connection
// workers driving sustained traffic against one shared validation core
// (max_validation_core=1 in the original's terms): four Engines, each with
// its own Worker, queue, and validator goroutine — a Worker's log allocator
// and an spsc.Queue both require a single owner, so "four workers" has to
// mean four Engines, not four goroutines sharing one — but all four built
// with a shared admission.Controller and logbuf.GlobalAllocator injected via
// Config.Admission/Config.Global, so admission concurrency is bounded
// process-wide rather than per-Engine.
func TestSoakSharedValidationCoreUnderSustainedLoad(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping soak test in short mode")
	}

	const numEngines = 4
	const opsPerEngine = 2000

	global := logbuf.NewGlobalAllocator()
	shared := admission.New(admission.Config{
		SamplingPercent: 100,
		MaxConcurrent:   1,
	})

	engines := make([]*Engine, numEngines)
	for i := range engines {
		engines[i] = New(Config{
			SamplingPercent: 100,
			MaxConcurrent:   1,
			Admission:       shared,
			Global:          global,
		})
		if err := engines[i].Run(); err != nil {
			t.Fatalf("engine %d failed to start: %v", i, err)
		}
	}

	var peak atomic.Int64
	stopPolling := make(chan struct{})
	var pollWG sync.WaitGroup
	pollWG.Add(1)
	go func() {
		defer pollWG.Done()
		for {
			select {
			case <-stopPolling:
				return
			default:
				if r := int64(shared.Running()); r > peak.Load() {
					peak.Store(r)
				}
				time.Sleep(time.Microsecond)
			}
		}
	}()

	var wg sync.WaitGroup
	for i, e := range engines {
		wg.Add(1)
		go func(i int, e *Engine) {
			defer wg.Done()
			for j := 0; j < opsPerEngine; j++ {
				closure.Run2(e.Worker, closure.Tag(1), appEcho, valEcho, echoArgs{N: int64(i*opsPerEngine + j)})
			}
		}(i, e)
	}
	wg.Wait()

	for _, e := range engines {
		e.Stop()
	}
	close(stopPolling)
	pollWG.Wait()

	if peak.Load() > 1 {
		t.Errorf("observed validator concurrency %d exceeds the shared controller's MaxConcurrent of 1", peak.Load())
	}

	// Buffer-count conservation: every allocator drawing from global either
	// returns its buffers to the free list as they fill, or still holds one
	// partially-filled "current" buffer open. That open buffer is never
	// leaked, just not yet eligible for return, so the gap between buffers
	// ever minted and buffers sitting free is bounded by the number of
	// engines, not necessarily zero.
	outstanding := global.TotalCreated() - global.FreeCount()
	if outstanding < 0 || outstanding > numEngines {
		t.Errorf("buffer count not conserved: totalCreated=%d freeCount=%d outstanding=%d, want 0<=outstanding<=%d",
			global.TotalCreated(), global.FreeCount(), outstanding, numEngines)
	}
}
