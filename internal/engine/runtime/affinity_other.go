// Licensed under the MIT License. See LICENSE file in the project root for details.

//go:build !linux

package runtime

// setAffinity is a no-op off Linux: there is no portable CPU-pinning syscall,
// and the engine's correctness does not depend on it, only its tail latency.
func setAffinity(cpus []int) error {
	_ = cpus
	return nil
}
