// Copyright Adaptyst Project Authors. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

// Package ingest implements the server-side per-session coordinator:
// the control-connection state machine of spec.md §4.3, the merge
// algorithm, and the file-upload subphase.
package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adaptyst-project/adaptyst-go/internal/archive"
	"github.com/adaptyst-project/adaptyst-go/internal/errs"
	"github.com/adaptyst-project/adaptyst-go/internal/subclient"
	"github.com/adaptyst-project/adaptyst-go/internal/transport"
	"github.com/go-logr/logr"
)

// State is a node of the control-connection state machine.
type State int

const (
	AwaitStart State = iota
	AwaitStartProfile
	AwaitTimestamp
	Collecting
	AwaitFiles
	Done
	Failed
)

// ProbeSpec is one registered probe the Client spawns a Subclient for,
// in the order probes were registered (this order is also the merge
// order, making duplicate-chain-id detection deterministic per
// spec.md §5 "Ordering").
type ProbeSpec struct {
	Name     string
	Acceptor transport.Acceptor
	NewParser func() subclient.RecordParser
}

// Client is the per-session ingest coordinator owning the control
// connection. One Client exists per profiling session.
type Client struct {
	Control   transport.Connection
	Probes    []ProbeSpec
	WorkingDir string

	// FileAcceptor and Archiver are only required when UploadActive is
	// true.
	FileAcceptor transport.Acceptor
	Archiver     archive.SourceArchiver
	UploadActive bool

	// AllowDuplicateChainIDs downgrades a chain-id collision during
	// merge from a ProtocolError to last-writer-wins-with-a-warning, for
	// bug-compatibility with the original tool (REDESIGN FLAGS).
	AllowDuplicateChainIDs bool

	AcceptTimeout time.Duration
	FileTimeout   time.Duration

	Logger logr.Logger

	mu            sync.Mutex
	cond          *sync.Cond
	acceptedCount int

	state       State
	resultDir   string
	filename    string
	epoch       uint64
	subResults  []*subclient.Result
	collectWG   *sync.WaitGroup
	collectErrs chan error
	merged      *MergedOutput
}

var startRe = regexp.MustCompile(`^start([1-9]\d*) (.+)$`)

// ParseStartLine parses the "start<N> <result_dir>" control frame that
// opens every session, per spec.md §4.3. A standalone multi-session
// server calls this itself, before it knows how many data acceptors to
// bind, so it can construct a Client and hand off to RunFrom.
func ParseStartLine(line string) (n int, resultDir string, err error) {
	m := startRe.FindStringSubmatch(line)
	if m == nil {
		return 0, "", fmt.Errorf("expected start frame, got %q", line)
	}

	n, err = strconv.Atoi(m[1])
	if err != nil || n < 1 {
		return 0, "", fmt.Errorf("invalid subclient count in %q", line)
	}
	return n, m[2], nil
}

// Run drives the control connection through the full state machine,
// including reading the initial "start N result_dir" frame itself, and
// returns once the session reaches Done, or an error if it reaches
// Failed. It blocks the calling goroutine for the session's duration.
func (c *Client) Run() error {
	c.cond = sync.NewCond(&c.mu)
	c.state = AwaitStart

	if err := c.awaitStart(); err != nil {
		return err
	}
	return c.runFromStartProfile()
}

// RunFrom is Run for a caller (a multi-session server's accept loop)
// that has already read and parsed the "start N result_dir" frame off
// the control connection in order to decide how many data acceptors to
// bind before constructing this Client.
func (c *Client) RunFrom(n int, resultDir string) error {
	c.cond = sync.NewCond(&c.mu)
	c.state = AwaitStart

	if err := c.bootstrapStart(n, resultDir); err != nil {
		return err
	}
	return c.runFromStartProfile()
}

func (c *Client) runFromStartProfile() error {
	if err := c.awaitStartProfile(); err != nil {
		return err
	}

	c.waitForSubclients()
	if err := c.Control.WriteLine("start_profile"); err != nil {
		return errs.Connection(err)
	}

	if err := c.awaitTimestamp(); err != nil {
		return err
	}
	if err := c.Control.WriteLine("tstamp_ack"); err != nil {
		return errs.Connection(err)
	}
	c.state = Collecting

	if err := c.collect(); err != nil {
		return err
	}

	if !c.UploadActive {
		if err := c.Control.WriteLine("profiling_finished"); err != nil {
			return errs.Connection(err)
		}
		c.state = Done
		return nil
	}

	if err := c.runUploadPhase(); err != nil {
		return err
	}

	if err := c.Control.WriteLine("finished"); err != nil {
		return errs.Connection(err)
	}
	c.state = Done
	return nil
}

func (c *Client) fail(frame string, cause error) error {
	c.state = Failed
	_ = c.Control.WriteLine(frame)
	_ = c.Control.Close()
	if cause != nil {
		return errs.Protocol("%s: %v", frame, cause)
	}
	return errs.Protocol("%s", frame)
}

func (c *Client) awaitStart() error {
	line, err := c.Control.ReadLine()
	if err != nil {
		return errs.Connection(err)
	}

	n, resultDir, err := ParseStartLine(line)
	if err != nil {
		return c.fail("error_wrong_command", err)
	}

	return c.bootstrapStart(n, resultDir)
}

// bootstrapStart is the half of the AwaitStart state shared by Run
// (which reads the start frame itself) and RunFrom (whose caller read
// it first to size its data acceptors).
func (c *Client) bootstrapStart(n int, resultDirRaw string) error {
	resultDir, err := sanitizeResultDir(resultDirRaw)
	if err != nil {
		return c.fail("error_result_dir", err)
	}
	c.resultDir = resultDir

	if err := c.makeResultDirs(); err != nil {
		return c.fail("error_result_dir", err)
	}

	if n != len(c.Probes) {
		return c.fail("error_wrong_command", fmt.Errorf("start requested %d subclients but %d probes are registered", n, len(c.Probes)))
	}

	c.spawnSubclients(n)

	for _, spec := range c.Probes {
		line := fmt.Sprintf("%s %s", spec.Acceptor.Kind(), spec.Acceptor.DialInstructions())
		if err := c.Control.WriteLine(line); err != nil {
			return errs.Connection(err)
		}
	}

	c.state = AwaitStartProfile
	return nil
}

// sanitizeResultDir rejects path separators and ".." per SPEC_FULL.md's
// REDESIGN FLAG extending the "never write outside processed/ or out/"
// invariant to the result directory name itself.
func sanitizeResultDir(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "/\\") {
		return "", fmt.Errorf("invalid result_dir %q", name)
	}
	return name, nil
}

func (c *Client) makeResultDirs() error {
	base := filepath.Join(c.WorkingDir, c.resultDir)
	if err := os.MkdirAll(filepath.Join(base, "processed"), 0o755); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Join(base, "out"), 0o755); err != nil {
		return err
	}
	return nil
}

func (c *Client) spawnSubclients(n int) {
	var wg sync.WaitGroup
	c.subResults = make([]*subclient.Result, n)
	errCh := make(chan error, n)

	for i, spec := range c.Probes {
		wg.Add(1)
		go func(i int, spec ProbeSpec) {
			defer wg.Done()

			conn, err := spec.Acceptor.Accept(0, c.AcceptTimeout)
			if err != nil {
				errCh <- err
				c.notify()
				return
			}
			defer conn.Close()

			sc := &subclient.Subclient{
				Name:      spec.Name,
				Conn:      conn,
				Parser:    spec.NewParser(),
				Readiness: c.notify,
				Logger:    c.Logger.WithName("subclient." + spec.Name),
			}

			res, err := sc.Run()
			if err != nil {
				errCh <- err
				return
			}
			c.subResults[i] = res
		}(i, spec)
	}

	go func() {
		wg.Wait()
		close(errCh)
	}()

	c.collectWG = &wg
	c.collectErrs = errCh
}

func (c *Client) notify() {
	c.mu.Lock()
	c.acceptedCount++
	c.mu.Unlock()
	c.cond.Broadcast()
}

func (c *Client) waitForSubclients() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.acceptedCount < len(c.Probes) {
		c.cond.Wait()
	}
}

func (c *Client) awaitStartProfile() error {
	filename, err := c.Control.ReadLine()
	if err != nil {
		return errs.Connection(err)
	}
	c.filename = filename
	return nil
}

func (c *Client) awaitTimestamp() error {
	line, err := c.Control.ReadLine()
	if err != nil {
		return errs.Connection(err)
	}
	epoch, err := strconv.ParseUint(line, 10, 64)
	if err != nil {
		return c.fail("error_tstamp", fmt.Errorf("invalid timestamp %q", line))
	}
	c.epoch = epoch
	c.state = AwaitTimestamp
	return nil
}

func (c *Client) collect() error {
	c.collectWG.Wait()

	var firstErr error
	for err := range c.collectErrs {
		c.Logger.Error(err, "subclient failed")
		if firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		c.state = Failed
		return firstErr
	}

	merged, err := c.merge()
	if err != nil {
		return c.fail("error_wrong_command", err)
	}

	if err := merged.Write(filepath.Join(c.WorkingDir, c.resultDir, "processed")); err != nil {
		return errs.Connection(err)
	}

	return nil
}
