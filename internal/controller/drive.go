// Copyright Adaptyst Project Authors. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package controller

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adaptyst-project/adaptyst-go/internal/cpu"
	"github.com/adaptyst-project/adaptyst-go/internal/errs"
	"github.com/adaptyst-project/adaptyst-go/internal/probe"
	"github.com/adaptyst-project/adaptyst-go/internal/session"
	"github.com/adaptyst-project/adaptyst-go/internal/transport"
)

// drive speaks the peer side of the control protocol end to end: send
// start, receive per-probe dial instructions, launch the probes, clear
// the readiness barrier, exchange the session epoch, run the profiled
// command, reap the probes, and finish with the optional upload phase.
// It implements spec.md §4.5 steps 6 through 10.
func (ctl *Controller) drive(sess *peerSession, partition cpu.Partition, probes []session.ProbeDescriptor, resultDir string) (int, error) {
	cfg := ctl.Config
	log := ctl.Logger
	conn := sess.conn

	if err := conn.WriteLine(fmt.Sprintf("start%d %s", len(probes), resultDir)); err != nil {
		return 0, errs.Connection(err)
	}

	dialLines := make([]string, len(probes))
	for i := range probes {
		line, err := conn.ReadLine()
		if err != nil {
			return 0, errs.Connection(err)
		}
		if isErrorFrame(line) {
			return 0, errs.Protocol("session rejected: %s", line)
		}
		dialLines[i] = line
	}

	if err := conn.WriteLine(filepath.Base(cfg.Command[0])); err != nil {
		return 0, errs.Connection(err)
	}

	launcher := &probe.Launcher{
		PerfPath:       cfg.PerfPath,
		ProfilerCPUSet: partition.ProfilerSet,
		Logger:         log.WithName("probe"),
	}

	handles := make([]*probe.Handle, 0, len(probes))
	for i, p := range probes {
		kind, inst, err := splitDialLine(dialLines[i])
		if err != nil {
			terminateAll(handles)
			return 0, errs.Protocol("%v", err)
		}
		h, err := launcher.Launch(p, kind, inst)
		if err != nil {
			terminateAll(handles)
			return 0, err
		}
		handles = append(handles, h)
	}

	line, err := conn.ReadLine()
	if err != nil {
		terminateAll(handles)
		return 0, errs.Connection(err)
	}
	if line != "start_profile" {
		terminateAll(handles)
		return 0, errs.Protocol("expected start_profile, got %q", line)
	}

	time.Sleep(time.Duration(cfg.WarmupSeconds) * time.Second)

	epoch := uint64(time.Now().UnixNano())
	if err := conn.WriteLine(strconv.FormatUint(epoch, 10)); err != nil {
		terminateAll(handles)
		return 0, errs.Connection(err)
	}
	ack, err := conn.ReadLine()
	if err != nil {
		terminateAll(handles)
		return 0, errs.Connection(err)
	}
	if ack != "tstamp_ack" {
		terminateAll(handles)
		return 0, errs.Protocol("expected tstamp_ack, got %q", ack)
	}

	cmdExitCode, cmdErr := runProfiledCommand(cfg.Command, partition.CommandSet, log)

	var probeErr error
	for _, h := range handles {
		h.Terminate()
	}
	for _, h := range handles {
		if werr := h.Wait(); werr != nil {
			log.Error(werr, "probe exited with an error", "probe", h.String())
			if probeErr == nil {
				probeErr = werr
			}
		}
	}

	if sess.ingestErrCh != nil {
		if ierr := <-sess.ingestErrCh; ierr != nil {
			return cmdExitCode, ierr
		}
	}

	next, err := conn.ReadLine()
	if err != nil {
		return cmdExitCode, errs.Connection(err)
	}

	switch {
	case next == "profiling_finished":
		// no upload phase; nothing further to do
	case next == "out_files":
		if err := ctl.driveUpload(conn); err != nil {
			return cmdExitCode, err
		}
		final, err := conn.ReadLine()
		if err != nil {
			return cmdExitCode, errs.Connection(err)
		}
		if final != "finished" {
			return cmdExitCode, errs.Protocol("expected finished, got %q", final)
		}
	case isErrorFrame(next):
		return cmdExitCode, errs.Protocol("session failed: %s", next)
	default:
		return cmdExitCode, errs.Protocol("unexpected control frame %q", next)
	}

	if cmdErr != nil {
		return cmdExitCode, cmdErr
	}
	return cmdExitCode, probeErr
}

func runProfiledCommand(command []string, commandSet []int, log interface {
	Error(err error, msg string, kv ...any)
}) (int, error) {
	cmd := exec.Command(command[0], command[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return 0, errs.Tool(command[0], -1)
	}
	if len(commandSet) > 0 {
		if err := cpu.SetAffinity(cmd.Process.Pid, commandSet); err != nil {
			log.Error(err, "failed to pin profiled command to command CPU set")
		}
	}

	err := cmd.Wait()
	if err == nil {
		return 0, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode(), nil
	}
	return 0, errs.Connection(err)
}

func terminateAll(handles []*probe.Handle) {
	for _, h := range handles {
		h.Terminate()
	}
	for _, h := range handles {
		_ = h.Wait()
	}
}

func isErrorFrame(line string) bool {
	return strings.HasPrefix(line, "error_")
}

func splitDialLine(line string) (kind, instructions string, err error) {
	parts := strings.SplitN(line, " ", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("malformed dial-instructions frame %q", line)
	}
	return parts[0], parts[1], nil
}

// driveUpload implements the peer side of spec.md §4.3's file-upload
// subphase: read the file acceptor's dial instructions, optionally send
// the profiled command's source path as the code-paths manifest, then
// close the subphase.
func (ctl *Controller) driveUpload(conn transport.Connection) error {
	dialLine, err := conn.ReadLine()
	if err != nil {
		return errs.Connection(err)
	}
	_, inst, err := splitDialLine(dialLine)
	if err != nil {
		return errs.Protocol("%v", err)
	}

	if ctl.Config.CodesDst.Kind == session.CodesSendToServer {
		if err := ctl.sendCodePaths(conn, inst); err != nil {
			ctl.Logger.Error(err, "failed to send source code paths")
		}
	}

	if err := conn.WriteLine("<STOP>"); err != nil {
		return errs.Connection(err)
	}
	return nil
}

// sendCodePaths uploads the profiled command's own executable path as
// the code_paths.lst manifest, triggering the server's on-server
// archive creation.
func (ctl *Controller) sendCodePaths(conn transport.Connection, dialInstructions string) error {
	if err := conn.WriteLine("p " + codePathsManifest); err != nil {
		return errs.Connection(err)
	}

	fileConn, err := transport.DialTCP(dialInstructions, dialBufSize)
	if err != nil {
		return err
	}
	defer fileConn.Close()

	absPath, err := filepath.Abs(ctl.Config.Command[0])
	if err != nil {
		return fmt.Errorf("resolving command path: %w", err)
	}
	if err := fileConn.WriteLine(absPath); err != nil {
		return err
	}
	if err := fileConn.WriteLine(""); err != nil {
		return err
	}

	ack, err := conn.ReadLine()
	if err != nil {
		return errs.Connection(err)
	}
	if ack != "out_file_ok" {
		return errs.Protocol("code paths upload: %s", ack)
	}
	return nil
}
