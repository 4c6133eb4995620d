// Copyright Adaptyst Project Authors. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/adaptyst-project/adaptyst-go/internal/subclient"
	"github.com/adaptyst-project/adaptyst-go/internal/transport"
	"github.com/go-logr/logr"
	"github.com/stretchr/testify/require"
)

func mustAcceptor(t *testing.T) *transport.TCPAcceptor {
	a, err := transport.NewTCPAcceptor(transport.TCPAcceptorConfig{Host: "127.0.0.1", Port: 0})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

// TestClientRunHappyPathNoUpload drives Client.Run through the full
// control-connection state machine for a single tree-probe session with
// the upload phase disabled, mirroring end-to-end scenario 1's shape
// without the extra hardware-event probe.
func TestClientRunHappyPathNoUpload(t *testing.T) {
	t.Parallel()

	workDir := t.TempDir()
	controlAcceptor := mustAcceptor(t)
	dataAcceptor := mustAcceptor(t)

	client := &Client{
		WorkingDir: workDir,
		Probes: []ProbeSpec{
			{Name: "tree", Acceptor: dataAcceptor, NewParser: func() subclient.RecordParser { return subclient.NewTreeParser() }},
		},
		Logger:        logr.Discard(),
		AcceptTimeout: 5 * time.Second,
		FileTimeout:   5 * time.Second,
	}

	controlAccepted := make(chan transport.Connection, 1)
	go func() {
		conn, err := controlAcceptor.Accept(4096, 5*time.Second)
		require.NoError(t, err)
		controlAccepted <- conn
	}()

	peerControl, err := transport.DialTCP(controlAcceptor.DialInstructions(), 4096)
	require.NoError(t, err)
	defer peerControl.Close()

	client.Control = <-controlAccepted

	runErrCh := make(chan error, 1)
	go func() { runErrCh <- client.Run() }()

	require.NoError(t, peerControl.WriteLine("start1 run1"))

	dialLine, err := peerControl.ReadLineTimeout(5 * time.Second)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(dialLine, "tcp "))
	instructions := strings.TrimPrefix(dialLine, "tcp ")

	require.NoError(t, peerControl.WriteLine("my_program"))

	probeConn, err := transport.DialTCP(instructions, 4096)
	require.NoError(t, err)
	require.NoError(t, probeConn.WriteLine("proc 1 0 my_program 1000"))
	require.NoError(t, probeConn.WriteLine("exit 1 2000"))
	require.NoError(t, probeConn.Close())

	line, err := peerControl.ReadLineTimeout(5 * time.Second)
	require.NoError(t, err)
	require.Equal(t, "start_profile", line)

	require.NoError(t, peerControl.WriteLine("1700000000000000000"))

	line, err = peerControl.ReadLineTimeout(5 * time.Second)
	require.NoError(t, err)
	require.Equal(t, "tstamp_ack", line)

	line, err = peerControl.ReadLineTimeout(5 * time.Second)
	require.NoError(t, err)
	require.Equal(t, "profiling_finished", line)

	require.NoError(t, <-runErrCh)

	data, err := os.ReadFile(filepath.Join(workDir, "run1", "processed", "metadata.json"))
	require.NoError(t, err)
	require.Contains(t, string(data), "my_program")
}

func TestSanitizeResultDirRejectsTraversal(t *testing.T) {
	t.Parallel()

	_, err := sanitizeResultDir("../escape")
	require.Error(t, err)

	_, err = sanitizeResultDir("a/b")
	require.Error(t, err)

	_, err = sanitizeResultDir("run1")
	require.NoError(t, err)
}

func TestParseStartLine(t *testing.T) {
	t.Parallel()

	n, resultDir, err := ParseStartLine("start2 run1")
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, "run1", resultDir)
}

func TestParseStartLineInvalid(t *testing.T) {
	t.Parallel()

	for _, line := range []string{"start run1", "start0 run1", "startN run1", "start2run1", "nonsense"} {
		_, _, err := ParseStartLine(line)
		require.Error(t, err, line)
	}
}

// TestClientRunFromHappyPath mirrors TestClientRunHappyPathNoUpload but
// exercises the standalone-server entry point: the caller parses the
// start frame itself before the Client exists, as cmd/adaptyst-server's
// accept loop does.
func TestClientRunFromHappyPath(t *testing.T) {
	t.Parallel()

	workDir := t.TempDir()
	controlAcceptor := mustAcceptor(t)
	dataAcceptor := mustAcceptor(t)

	client := &Client{
		WorkingDir: workDir,
		Probes: []ProbeSpec{
			{Name: "tree", Acceptor: dataAcceptor, NewParser: func() subclient.RecordParser { return subclient.NewTreeParser() }},
		},
		Logger:        logr.Discard(),
		AcceptTimeout: 5 * time.Second,
		FileTimeout:   5 * time.Second,
	}

	controlAccepted := make(chan transport.Connection, 1)
	go func() {
		conn, err := controlAcceptor.Accept(4096, 5*time.Second)
		require.NoError(t, err)
		controlAccepted <- conn
	}()

	peerControl, err := transport.DialTCP(controlAcceptor.DialInstructions(), 4096)
	require.NoError(t, err)
	defer peerControl.Close()

	client.Control = <-controlAccepted

	require.NoError(t, peerControl.WriteLine("start1 run2"))
	line, err := client.Control.ReadLine()
	require.NoError(t, err)
	n, resultDir, err := ParseStartLine(line)
	require.NoError(t, err)

	runErrCh := make(chan error, 1)
	go func() { runErrCh <- client.RunFrom(n, resultDir) }()

	dialLine, err := peerControl.ReadLineTimeout(5 * time.Second)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(dialLine, "tcp "))
	instructions := strings.TrimPrefix(dialLine, "tcp ")

	require.NoError(t, peerControl.WriteLine("my_program"))

	probeConn, err := transport.DialTCP(instructions, 4096)
	require.NoError(t, err)
	require.NoError(t, probeConn.WriteLine("proc 1 0 my_program 1000"))
	require.NoError(t, probeConn.WriteLine("exit 1 2000"))
	require.NoError(t, probeConn.Close())

	line, err = peerControl.ReadLineTimeout(5 * time.Second)
	require.NoError(t, err)
	require.Equal(t, "start_profile", line)

	require.NoError(t, peerControl.WriteLine("1700000000000000000"))

	line, err = peerControl.ReadLineTimeout(5 * time.Second)
	require.NoError(t, err)
	require.Equal(t, "tstamp_ack", line)

	line, err = peerControl.ReadLineTimeout(5 * time.Second)
	require.NoError(t, err)
	require.Equal(t, "profiling_finished", line)

	require.NoError(t, <-runErrCh)

	data, err := os.ReadFile(filepath.Join(workDir, "run2", "processed", "metadata.json"))
	require.NoError(t, err)
	require.Contains(t, string(data), "my_program")
}
