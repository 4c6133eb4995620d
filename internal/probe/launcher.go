// Copyright Adaptyst Project Authors. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

// Package probe launches the patched perf sampler as a child process,
// pinned to the profiler CPU set, and exposes the vendor-specific CARM
// roofline event bundle and benchmark resolver.
package probe

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/adaptyst-project/adaptyst-go/internal/cpu"
	"github.com/adaptyst-project/adaptyst-go/internal/errs"
	"github.com/adaptyst-project/adaptyst-go/internal/session"
	"github.com/go-logr/logr"
)

// Launcher builds the argv for the patched perf sampler and starts it as
// a child process pinned to the profiler CPU set.
type Launcher struct {
	PerfPath       string // directory containing bin/perf and the Trace script
	ProfilerCPUSet []int
	Logger         logr.Logger
}

// Handle is a started probe child process.
type Handle struct {
	Probe session.ProbeDescriptor
	Cmd   *exec.Cmd

	exitErr error
}

// Launch computes the child's argv from the probe descriptor and the
// ingest server's published dial instructions for this probe's data
// connection (dialKind/dialInstructions — taken verbatim from a local
// Acceptor's Kind()/DialInstructions(), or parsed off the control
// connection for a remote session), starts it pinned to
// l.ProfilerCPUSet, and returns immediately; call Wait to block for
// completion.
func (l *Launcher) Launch(p session.ProbeDescriptor, dialKind, dialInstructions string) (*Handle, error) {
	argv, err := l.buildArgv(p, dialKind, dialInstructions)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return nil, errs.Tool(p.Name, -1)
	}

	if len(l.ProfilerCPUSet) > 0 {
		if err := cpu.SetAffinity(cmd.Process.Pid, l.ProfilerCPUSet); err != nil {
			l.Logger.Error(err, "failed to pin probe to profiler CPU set", "probe", p.Name, "pid", cmd.Process.Pid)
		}
	}

	return &Handle{Probe: p, Cmd: cmd}, nil
}

// Wait blocks for the child to exit and surfaces its exit code, per
// spec.md §4.4: "A probe's exit code is surfaced to the session
// controller; non-zero is aggregated into the final status but does
// not abort peer probes."
func (h *Handle) Wait() error {
	err := h.Cmd.Wait()
	h.exitErr = err
	if err == nil {
		return nil
	}

	if exitErr, ok := err.(*exec.ExitError); ok {
		return errs.Tool(h.Probe.Name, exitErr.ExitCode())
	}
	return errs.Connection(err)
}

// Terminate sends SIGTERM to a still-running probe, used during the
// session controller's teardown of lingering child pids.
func (h *Handle) Terminate() {
	if h.Cmd.Process != nil {
		_ = h.Cmd.Process.Signal(os.Interrupt)
	}
}

func (l *Launcher) buildArgv(p session.ProbeDescriptor, dialKind, dialInstructions string) ([]string, error) {
	bin := l.PerfPath + "/bin/perf"
	if _, err := os.Stat(bin); err != nil {
		return nil, errs.Env(err, "perf binary not found under perf_path %q", l.PerfPath)
	}

	args := []string{bin, "adaptyst-probe",
		"--kind", string(p.Kind),
		"--mode", string(p.Mode),
		"--dial-type", dialKind,
		"--dial", dialInstructions,
	}

	if p.Period > 0 {
		args = append(args, "--period", strconv.FormatUint(p.Period, 10))
	}
	if p.Title != "" {
		args = append(args, "--title", p.Title)
	}
	if p.BufferSize > 0 {
		args = append(args, "--buffer", strconv.Itoa(p.BufferSize))
	}
	if p.Filter.Kind != "" && p.Filter.Kind != session.FilterNone {
		args = append(args, "--filter-kind", string(p.Filter.Kind))
		if p.Filter.ScriptPath != "" {
			args = append(args, "--filter-script", p.Filter.ScriptPath)
		}
		if p.Filter.Mark {
			args = append(args, "--filter-mark")
		}
	}

	return args, nil
}

func (h *Handle) String() string {
	return fmt.Sprintf("probe[%s] pid=%d", h.Probe.Name, h.Cmd.Process.Pid)
}
