// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package epoch provides epoch-based reclamation primitives shared by the
// engine's garbage-collection gate.
//
// This package implements a manager that tracks active closure epochs and
// provides the minimum active epoch for safe reclamation. It enables the
// engine to safely free versioned values and log buffers that are no longer
// visible to any in-flight closure or validator.
//
// # Usage Examples
//
//	manager := epoch.NewManager()
//
//	manager.Register(100)
//	minActive := manager.MinActive() // Returns 100
//	manager.Unregister(100)
//	count := manager.ActiveCount() // Returns 0
//
// # Dangers and Warnings
//
//   - Every Register() call must have a corresponding Unregister() call.
//   - Only monotonically increasing epochs should be registered.
//   - Failing to unregister an epoch stalls reclamation indefinitely.
//
// # Performance Considerations
//
//   - Register/Unregister are O(1).
//   - MinActive is O(n) in the number of distinct active epochs.
package epoch

import (
	"sync"
)

// Manager tracks active closure epochs and provides the minimum active
// epoch for reclamation purposes.
type Manager struct {
	holders map[uint64]int // epoch number -> count of in-flight closures still holding it
	mu      sync.RWMutex
}

// NewManager creates a new epoch manager.
func NewManager() *Manager {
	return &Manager{
		holders: make(map[uint64]int),
	}
}

// Register adds an epoch to the active set.
func (m *Manager) Register(epoch uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holders[epoch]++
}

// Unregister removes an epoch from the active set.
func (m *Manager) Unregister(epoch uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if count, exists := m.holders[epoch]; exists {
		if count <= 1 {
			delete(m.holders, epoch)
		} else {
			m.holders[epoch] = count - 1
		}
	}
}

// MinActive returns the minimum active epoch.
// If no epoch is active, returns 0.
func (m *Manager) MinActive() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.holders) == 0 {
		return 0
	}

	floor := ^uint64(0)
	for epoch := range m.holders {
		if epoch < floor {
			floor = epoch
		}
	}
	return floor
}

// ActiveCount returns the number of distinct active epochs.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.holders)
}
