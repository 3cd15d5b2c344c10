// Licensed under the MIT License. See LICENSE file in the project root for details.

package closure

import "sync"

// Ticket is the synchronous-mode handshake between a worker and the
// validator retiring its record. It substitutes for the original
// implementation's futex-style atomic wait/notify: Go exposes no portable
// primitive for a goroutine to wait on an arbitrary memory location the way
// a pinned OS thread can, so a condition variable guarding a single flag is
// the idiomatic stand-in with equivalent wake-on-notify semantics.
type Ticket struct {
	mu   sync.Mutex
	cond *sync.Cond
	done bool
}

// NewTicket creates an unfired ticket.
func NewTicket() *Ticket {
	t := &Ticket{}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// Notify fires the ticket, waking any goroutine blocked in Wait. It is
// called by the validator once it has finished replaying the record this
// ticket was attached to.
func (t *Ticket) Notify() {
	t.mu.Lock()
	t.done = true
	t.mu.Unlock()
	t.cond.Broadcast()
}

// Wait blocks until Notify has been called.
func (t *Ticket) Wait() {
	t.mu.Lock()
	for !t.done {
		t.cond.Wait()
	}
	t.mu.Unlock()
}
