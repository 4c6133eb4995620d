// Copyright Adaptyst Project Authors. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

// Package transport implements the uniform framed byte-stream
// abstraction spec.md §4.1 describes, with two concrete variants: local
// process-pipe pairs and TCP sockets. A Connection offers message-oriented
// read/write over newline-delimited frames plus raw byte transfer for
// file payloads; an Acceptor yields Connections of one variant and
// publishes the dial instructions the peer needs to connect back.
package transport

import (
	"io"
	"os"
	"time"

	"github.com/adaptyst-project/adaptyst-go/internal/errs"
)

// Kind identifies a transport variant.
type Kind string

const (
	KindTCP  Kind = "tcp"
	KindPipe Kind = "pipe"
)

// Connection is one end of a framed, bidirectional byte stream.
type Connection interface {
	// ReadLine blocks until a full newline-terminated frame is
	// available, returning it without the trailing newline. On clean
	// EOF with a buffered, non-terminated prefix, that prefix is
	// returned once as a final frame; a subsequent call returns
	// io.EOF.
	ReadLine() (string, error)

	// ReadLineTimeout is ReadLine bounded by a per-call deadline.
	// Returns errs.TimeoutError on expiry.
	ReadLineTimeout(timeout time.Duration) (string, error)

	// ReadBytes reads up to len(buf) bytes into buf, blocking until at
	// least one byte arrives, EOF, or timeout elapses. Returns the
	// number of bytes read; 0 with a nil error signals EOF, matching
	// the upload phase's "read until EOF" contract.
	ReadBytes(buf []byte, timeout time.Duration) (int, error)

	// WriteLine writes s followed by a newline. It verifies that all
	// bytes were written, raising errs.ConnectionError on a short
	// write.
	WriteLine(s string) error

	// WriteBytes writes buf verbatim (no framing), for file payloads.
	WriteBytes(buf []byte) error

	// SendFile streams the contents of the file at path as raw bytes.
	SendFile(path string) error

	Close() error
}

// Acceptor yields Connections of a single transport variant and
// publishes a textual "dial instructions" string the peer uses to
// connect back: for TCP, "host_port"; for a pipe, "fd_fd".
type Acceptor interface {
	Kind() Kind
	DialInstructions() string

	// Accept blocks until a peer connects, returning a Connection
	// buffered to bufSize bytes per internal read. A zero timeout
	// means block indefinitely.
	Accept(bufSize int, timeout time.Duration) (Connection, error)

	Close() error
}

var _ = io.EOF // re-exported via errors.Is(err, io.EOF) at call sites

// wrapShortWrite turns a short write into errs.ConnectionError, per
// spec.md §4.1's write_line contract.
func wrapShortWrite(want, got int, cause error) error {
	if cause != nil {
		return errs.Connection(cause)
	}
	if got != want {
		return errs.Connection(io.ErrShortWrite)
	}
	return nil
}

const fileBufSize = 64 * 1024

// sendFile streams path's contents over conn as raw bytes.
func sendFile(conn Connection, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errs.Connection(err)
	}
	defer f.Close()

	buf := make([]byte, fileBufSize)
	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			if werr := conn.WriteBytes(buf[:n]); werr != nil {
				return werr
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return errs.Connection(rerr)
		}
	}
}
