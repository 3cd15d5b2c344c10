// Licensed under the MIT License. See LICENSE file in the project root for details.

package epoch

import "sync/atomic"

// StartLog hands out a monotonically increasing epoch to every closure that
// starts a log and tracks which of those epochs are still in flight. The
// minimum in-flight epoch (Gate) is the point below which deferred frees and
// reclaimed log buffers are safe to release: no validator can still be
// replaying a closure stamped with an older epoch.
type StartLog struct {
	counter atomic.Uint64
	active  *Manager
}

// NewStartLog creates a new closure start-log.
func NewStartLog() *StartLog {
	return &StartLog{active: NewManager()}
}

// NewClosure draws the next epoch and marks it active. The returned epoch
// must be passed to ValidatedClosure exactly once, when the matching log
// record has been fully validated (or reclaimed without validation).
func (s *StartLog) NewClosure() uint64 {
	epoch := s.counter.Add(1)
	s.active.Register(epoch)
	return epoch
}

// ValidatedClosure retires an epoch previously returned by NewClosure.
func (s *StartLog) ValidatedClosure(epoch uint64) {
	s.active.Unregister(epoch)
}

// Gate returns the minimum epoch still in flight. A return value of 0 means
// no closure is currently outstanding and every deferred free may proceed.
func (s *StartLog) Gate() uint64 {
	return s.active.MinActive()
}
