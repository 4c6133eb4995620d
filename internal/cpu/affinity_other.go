// Copyright Adaptyst Project Authors. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

//go:build !linux

package cpu

// PinCurrentThread is a no-op on non-Linux platforms: CPU affinity
// pinning only makes sense where the patched perf this module drives
// actually runs. This lets the rest of the module build and unit-test on
// macOS/Windows, matching the teacher's pattern of stubbing platform
// syscalls behind a build tag (pkg/performance/capabilities).
func PinCurrentThread(cpus []int) error { return nil }

// SetAffinity is a no-op on non-Linux platforms.
func SetAffinity(pid int, cpus []int) error { return nil }
