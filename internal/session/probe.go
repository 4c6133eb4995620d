// Copyright Adaptyst Project Authors. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package session

import (
	"github.com/adaptyst-project/adaptyst-go/internal/transport"
)

// EventKind identifies what a Probe samples.
type EventKind string

const (
	// EventThreadTree ingests syscall records to reconstruct the
	// process/thread hierarchy and per-TID callchains.
	EventThreadTree EventKind = "syscall_meta"
	// EventMain is the always-present on-CPU/off-CPU sampling probe.
	EventMain EventKind = "sample_main"
	// EventExtra is a user-requested named hardware event.
	EventExtra EventKind = "sample_extra"
)

// ProbeDescriptor is the per-probe configuration the session controller
// builds before binding acceptors, and the profiler launcher later turns
// into a child-process argv.
type ProbeDescriptor struct {
	Name   string
	Kind   EventKind
	Mode   CaptureMode
	Filter FilterSpec

	// Period/Title are set for EventExtra; Period is also read for
	// EventMain's on-CPU frequency.
	Period uint64
	Title  string

	BufferSize int
	Acceptor   transport.Acceptor
}

// BuildProbeList assembles the always-present probes plus the
// user-requested extra events, per spec.md §4.5 step 4. The roofline
// CARM bundle (vendor-specific, x86-only) is appended separately by the
// probe package once CPU vendor detection is available, keeping this
// function free of platform-detection concerns.
func BuildProbeList(cfg *SessionConfig) []ProbeDescriptor {
	probes := []ProbeDescriptor{
		{
			Name:       "tree",
			Kind:       EventThreadTree,
			Mode:       cfg.Mode,
			BufferSize: int(cfg.Buffer),
		},
		{
			Name:       "main",
			Kind:       EventMain,
			Mode:       cfg.Mode,
			Filter:     cfg.Filter,
			Period:     cfg.Freq,
			BufferSize: int(cfg.Buffer),
		},
	}

	for _, ev := range cfg.ExtraEvents {
		probes = append(probes, ProbeDescriptor{
			Name:       ev.Name,
			Kind:       EventExtra,
			Mode:       cfg.Mode,
			Filter:     cfg.Filter,
			Period:     ev.Period,
			Title:      ev.Title,
			BufferSize: int(cfg.Buffer),
		})
	}

	return probes
}
