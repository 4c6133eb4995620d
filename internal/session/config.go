// Copyright Adaptyst Project Authors. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

// Package session holds the validated configuration the controller
// consumes: SessionConfig, the probe event list, and the stack-frame
// filter and source-code destination choices. Nothing here performs
// I/O beyond the filter file load.
package session

import (
	"fmt"
	"strings"

	"github.com/adaptyst-project/adaptyst-go/internal/errs"
	"github.com/adaptyst-project/adaptyst-go/internal/filter"
)

// CaptureMode selects which ring(s) a sample probe records.
type CaptureMode string

const (
	ModeKernel CaptureMode = "kernel"
	ModeUser   CaptureMode = "user"
	ModeBoth   CaptureMode = "both"
)

// FilterKind selects whether and how stack frames are filtered.
type FilterKind string

const (
	FilterNone   FilterKind = "none"
	FilterAllow  FilterKind = "allow"
	FilterDeny   FilterKind = "deny"
	FilterScript FilterKind = "script"
)

// FilterSpec is the parsed stack-filter configuration.
type FilterSpec struct {
	Kind       FilterKind
	Pattern    filter.Pattern // set for Allow/Deny
	ScriptPath string         // set for Script
	Mark       bool           // -k/--mark: annotate filtered frames instead of dropping them
}

// CodesDstKind selects where source-code archives end up.
type CodesDstKind string

const (
	CodesBundleHere   CodesDstKind = "bundle-here"
	CodesSendToServer CodesDstKind = "send-to-server"
	CodesWriteToFile  CodesDstKind = "write-to-file"
	CodesWriteToFD    CodesDstKind = "write-to-fd"
)

// CodesDst is where the source-code manifest archive should end up.
type CodesDst struct {
	Kind CodesDstKind
	Path string // CodesWriteToFile
	FD   int    // CodesWriteToFD
}

// ExtraEvent is one -e/--event flag occurrence.
type ExtraEvent struct {
	Name   string
	Period uint64
	Title  string
}

// carmReservedPrefix is the title namespace reserved for the roofline
// preset bundle; user-supplied extra events may not collide with it.
const carmReservedPrefix = "CARM_"

func (e ExtraEvent) validate() error {
	if e.Period < 1 {
		return errs.User("event %q: period must be >= 1, got %d", e.Name, e.Period)
	}
	if strings.HasPrefix(e.Title, carmReservedPrefix) {
		return errs.User("event %q: title %q uses reserved prefix %q", e.Name, e.Title, carmReservedPrefix)
	}
	return nil
}

// SessionConfig is the fully validated input to the session controller.
// It is constructed once at session start and never mutated afterward.
type SessionConfig struct {
	Freq          uint64 // -F, on-CPU sampling Hz
	Buffer        uint64 // -B, event buffer depth (1 = unbuffered)
	OffCPUFreq    int64  // -f, 0 disables, -1 captures all
	OffCPUBuffer  uint64 // -b, 0 = adaptive
	PostProcess   uint   // -p, post-processing thread count
	Mode          CaptureMode
	WarmupSeconds uint
	ExtraEvents   []ExtraEvent
	Filter        FilterSpec
	RemoteAddress string // -a, empty means local in-process server
	CodesDst      CodesDst
	ServerBuffer  uint64 // -s, mutually exclusive with RemoteAddress
	Roofline      uint   // -r, 0 disables
	Quiet         bool

	PerfPath          string // directory containing bin/perf, libexec/perf-core/...
	CarmToolPath      string
	RooflineBenchPath string

	Command []string
}

// Validate enforces the cross-flag invariants spec.md §4.5 step 1 and §6
// describe. It must run before any session state (temp dirs, acceptors,
// child processes) is created.
func (c *SessionConfig) Validate() error {
	if c.Freq < 1 {
		return errs.User("-F/--freq must be >= 1, got %d", c.Freq)
	}
	if c.Buffer < 1 {
		return errs.User("-B/--buffer must be >= 1, got %d", c.Buffer)
	}
	if c.OffCPUFreq < -1 {
		return errs.User("-f/--off-cpu-freq must be >= -1, got %d", c.OffCPUFreq)
	}
	if c.WarmupSeconds < 1 {
		return errs.User("-w/--warmup must be >= 1, got %d", c.WarmupSeconds)
	}

	switch c.Mode {
	case ModeKernel, ModeUser, ModeBoth:
	default:
		return errs.User("-m/--mode must be one of kernel|user|both, got %q", c.Mode)
	}

	for _, ev := range c.ExtraEvents {
		if err := ev.validate(); err != nil {
			return err
		}
	}

	if c.RemoteAddress != "" && c.ServerBuffer != 0 {
		return errs.User("-s/--server-buffer is mutually exclusive with -a/--address")
	}

	if c.CodesDst.Kind == CodesSendToServer && c.RemoteAddress == "" {
		return errs.User("-c srv requires -a/--address")
	}

	if c.Filter.Mark && c.Filter.Kind == FilterNone {
		return errs.User("-k/--mark requires -i/--filter")
	}

	if c.Filter.Kind == FilterScript && c.Filter.ScriptPath == "-" {
		return errs.User("-i python:- is not permitted; python filters must be a real file path")
	}

	if len(c.Command) == 0 {
		return errs.User("a command to profile is required")
	}

	if c.PerfPath == "" {
		return errs.Env(nil, "perf_path is not configured")
	}

	return nil
}

// UploadActive reports whether the file-upload phase should run for this
// session, per SPEC_FULL.md's resolution of the matching Open Question:
// remote sessions whose artifacts are already destined for the peer
// (-c srv) have nothing left to pull back.
func (c *SessionConfig) UploadActive() bool {
	if c.RemoteAddress == "" {
		return true
	}
	return c.CodesDst.Kind != CodesSendToServer
}

func (c *SessionConfig) String() string {
	return fmt.Sprintf("SessionConfig{freq=%d mode=%s command=%v}", c.Freq, c.Mode, c.Command)
}
