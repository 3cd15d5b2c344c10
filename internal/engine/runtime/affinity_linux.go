// Licensed under the MIT License. See LICENSE file in the project root for details.

//go:build linux

package runtime

import "golang.org/x/sys/unix"

// setAffinity pins the calling OS thread to the given CPU set. The caller
// must have already called runtime.LockOSThread, or the pin applies to
// whichever goroutine the scheduler next places on this thread.
func setAffinity(cpus []int) error {
	var set unix.CPUSet
	set.Zero()
	for _, cpu := range cpus {
		set.Set(cpu)
	}
	return unix.SchedSetaffinity(0, &set)
}
