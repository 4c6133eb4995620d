// Copyright Adaptyst Project Authors. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

// Package controller implements the session controller of spec.md
// §4.5: it turns a validated SessionConfig into a running profiling
// session, speaking the peer side of the control protocol against
// either an in-process ingest server or a remote one, launching the
// probes and the profiled command, and reconciling their exit statuses.
package controller

import (
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/adaptyst-project/adaptyst-go/internal/cpu"
	"github.com/adaptyst-project/adaptyst-go/internal/errs"
	"github.com/adaptyst-project/adaptyst-go/internal/probe"
	"github.com/adaptyst-project/adaptyst-go/internal/session"
	"github.com/adaptyst-project/adaptyst-go/internal/subclient"
)

// dialBufSize is the per-connection read buffer size used for every
// acceptor and dial this package creates.
const dialBufSize = 64 * 1024

const codePathsManifest = "code_paths.lst"

// acceptTimeout/fileTimeout bound how long the ingest server waits for
// a subclient or upload connection before giving up.
const (
	acceptTimeout = 30 * time.Second
	fileTimeout   = 30 * time.Second
)

// Controller drives one profiling session end to end.
type Controller struct {
	Config *session.SessionConfig
	Logger logr.Logger
}

// Run executes the session per spec.md §4.5's ten steps, returning the
// profiled command's exit code and/or the error that aborted the
// session. A non-nil error always takes priority: the caller should
// exit with errs.Code(err) rather than cmdExitCode when one is present.
func (ctl *Controller) Run() (cmdExitCode int, err error) {
	cfg := ctl.Config
	log := ctl.Logger

	if err := cfg.Validate(); err != nil {
		return 0, err
	}
	if err := checkPerfPath(cfg.PerfPath); err != nil {
		return 0, err
	}

	partition, err := ctl.buildPartition()
	if err != nil {
		return 0, err
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	if err := cpu.PinCurrentThread(partition.ProfilerSet); err != nil {
		log.Error(err, "failed to pin controller thread to profiler CPU set")
	}

	workingDir, err := os.MkdirTemp("", "adaptyst-")
	if err != nil {
		return 0, errs.Env(err, "failed to create session temp directory")
	}
	succeeded := false
	defer func() {
		if succeeded {
			if rmErr := os.RemoveAll(workingDir); rmErr != nil {
				log.Error(rmErr, "failed to remove session temp directory")
			}
			return
		}
		log.Info("session did not complete cleanly; preserving temp directory for forensics", "dir", workingDir)
	}()

	probes, err := ctl.buildProbes(workingDir)
	if err != nil {
		return 0, err
	}

	sess, err := ctl.bindAndConnect(probes, workingDir)
	if err != nil {
		return 0, err
	}
	defer sess.Close()

	cmdExitCode, err = ctl.drive(sess, partition, probes, uuid.NewString())
	if err != nil {
		return cmdExitCode, err
	}

	succeeded = true
	return cmdExitCode, nil
}

func checkPerfPath(perfPath string) error {
	info, err := os.Stat(perfPath)
	if err != nil {
		return errs.Env(err, "perf_path %q is not accessible", perfPath)
	}
	if !info.IsDir() {
		return errs.Env(nil, "perf_path %q is not a directory", perfPath)
	}
	bin := filepath.Join(perfPath, "bin", "perf")
	if _, err := os.Stat(bin); err != nil {
		return errs.Env(err, "perf binary not found at %q", bin)
	}
	return nil
}

func (ctl *Controller) buildPartition() (cpu.Partition, error) {
	online, err := cpu.Online()
	if err != nil {
		return cpu.Partition{}, errs.Env(err, "failed to read the host's online CPU set")
	}

	partition, err := cpu.Build(online, int(ctl.Config.PostProcess))
	if err != nil {
		return cpu.Partition{}, errs.Env(err, "failed to compute CPU partition: %v", err)
	}
	if err := partition.Validate(); err != nil {
		return cpu.Partition{}, errs.Env(err, "invalid CPU partition")
	}
	return partition, nil
}

// buildProbes assembles the always-present probes, the user's extra
// events, and — when roofline is enabled — the vendor-specific CARM
// bundle, per spec.md §4.5 step 4.
func (ctl *Controller) buildProbes(workingDir string) ([]session.ProbeDescriptor, error) {
	cfg := ctl.Config
	probes := session.BuildProbeList(cfg)

	if cfg.Roofline == 0 {
		return probes, nil
	}

	vendor, err := probe.DetectVendor()
	if err != nil {
		return nil, err
	}
	carmEvents, err := probe.CARMBundle(vendor, uint64(cfg.Roofline))
	if err != nil {
		return nil, err
	}
	for _, ev := range carmEvents {
		probes = append(probes, session.ProbeDescriptor{
			Name:       ev.Name,
			Kind:       session.EventExtra,
			Mode:       cfg.Mode,
			Filter:     cfg.Filter,
			Period:     ev.Period,
			Title:      ev.Title,
			BufferSize: int(cfg.Buffer),
		})
	}

	resolver := &probe.RooflineBenchmarkResolver{
		CarmToolPath:      cfg.CarmToolPath,
		RooflineBenchPath: cfg.RooflineBenchPath,
		Logger:            ctl.Logger,
	}
	if _, err := resolver.Resolve(workingDir); err != nil {
		ctl.Logger.Error(err, "roofline benchmark resolution failed; continuing without a roofline CSV")
	}

	return probes, nil
}

func parserFor(kind session.EventKind) func() subclient.RecordParser {
	switch kind {
	case session.EventThreadTree:
		return func() subclient.RecordParser { return subclient.NewTreeParser() }
	default:
		return func() subclient.RecordParser { return subclient.NewSampleParser() }
	}
}
