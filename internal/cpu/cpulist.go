// Copyright Adaptyst Project Authors. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

// Package cpu computes the two-way CPU partition the session controller
// pins probes and the profiled command to, and applies it via the host's
// affinity syscalls.
package cpu

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// onlinePath is the sysfs file listing the CPUs the kernel currently
// schedules onto, in ParseList's range syntax.
const onlinePath = "/sys/devices/system/cpu/online"

// Online reads and parses the host's online CPU set.
func Online() ([]int, error) {
	data, err := os.ReadFile(onlinePath)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", onlinePath, err)
	}
	return ParseList(string(data))
}

// ParseList parses a Linux kernel CPU list string ("0,2-4,7") into a
// sorted, deduplicated slice of CPU ids. An empty string yields an empty,
// non-nil slice.
func ParseList(cpuList string) ([]int, error) {
	cpuList = strings.TrimSpace(cpuList)
	if cpuList == "" {
		return []int{}, nil
	}

	seen := make(map[int]struct{})
	var cpus []int

	for _, part := range strings.Split(cpuList, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if strings.Contains(part, "-") {
			rangeParts := strings.SplitN(part, "-", 2)
			if len(rangeParts) != 2 {
				return nil, fmt.Errorf("invalid CPU range: %s", part)
			}

			start, err := strconv.Atoi(strings.TrimSpace(rangeParts[0]))
			if err != nil {
				return nil, fmt.Errorf("invalid CPU number in range: %s", rangeParts[0])
			}

			end, err := strconv.Atoi(strings.TrimSpace(rangeParts[1]))
			if err != nil {
				return nil, fmt.Errorf("invalid CPU number in range: %s", rangeParts[1])
			}

			if start > end {
				return nil, fmt.Errorf("invalid CPU range (start > end): %s", part)
			}

			for c := start; c <= end; c++ {
				if _, ok := seen[c]; !ok {
					seen[c] = struct{}{}
					cpus = append(cpus, c)
				}
			}
		} else {
			c, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("invalid CPU number: %s", part)
			}
			if _, ok := seen[c]; !ok {
				seen[c] = struct{}{}
				cpus = append(cpus, c)
			}
		}
	}

	return cpus, nil
}
