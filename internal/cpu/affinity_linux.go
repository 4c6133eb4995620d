// Copyright Adaptyst Project Authors. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

//go:build linux

package cpu

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// PinCurrentThread sets the calling OS thread's affinity mask to cpus.
// Callers that need this to stick must have already called
// runtime.LockOSThread, since Go otherwise may move the goroutine to a
// different OS thread between calls.
func PinCurrentThread(cpus []int) error {
	return SetAffinity(0, cpus)
}

// SetAffinity sets the affinity mask of pid (0 meaning the calling
// thread) to cpus.
func SetAffinity(pid int, cpus []int) error {
	if len(cpus) == 0 {
		return nil
	}

	var set unix.CPUSet
	set.Zero()
	for _, c := range cpus {
		set.Set(c)
	}

	if err := unix.SchedSetaffinity(pid, &set); err != nil {
		return fmt.Errorf("sched_setaffinity(pid=%d, cpus=%v): %w", pid, cpus, err)
	}
	return nil
}
