// Copyright Adaptyst Project Authors. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package transport

import (
	"fmt"
	"os"
	"time"

	"github.com/adaptyst-project/adaptyst-go/internal/errs"
)

const connectToken = "connect"

// PipeAcceptor hands a local child process (started with the returned
// ChildFiles as os/exec.Cmd.ExtraFiles) a pair of anonymous pipes to talk
// back to this process. It accepts exactly one Connection, matching the
// original tool's single-connection-per-probe pipe usage.
type PipeAcceptor struct {
	parentRead  *os.File
	parentWrite *os.File
	childRead   *os.File
	childWrite  *os.File

	// childReadFD/childWriteFD are the fd numbers the child process
	// will see these files as, once placed in exec.Cmd.ExtraFiles at
	// the given indices (Go places ExtraFiles starting at fd 3).
	childReadFD  int
	childWriteFD int
}

// NewPipeAcceptor creates a fresh bidirectional pipe pair. extraFilesBase
// is the fd number the child will see its first ExtraFiles entry as
// (always 3 for a freshly exec'd process with stdin/stdout/stderr
// inherited); the caller appends ChildFiles() to cmd.ExtraFiles in order.
func NewPipeAcceptor(extraFilesBase int) (*PipeAcceptor, error) {
	childRead, parentWrite, err := os.Pipe()
	if err != nil {
		return nil, errs.Connection(err)
	}

	parentRead, childWrite, err := os.Pipe()
	if err != nil {
		childRead.Close()
		parentWrite.Close()
		return nil, errs.Connection(err)
	}

	return &PipeAcceptor{
		parentRead:   parentRead,
		parentWrite:  parentWrite,
		childRead:    childRead,
		childWrite:   childWrite,
		childReadFD:  extraFilesBase,
		childWriteFD: extraFilesBase + 1,
	}, nil
}

// ChildFiles returns the two files to append to exec.Cmd.ExtraFiles, in
// (read, write) order matching DialInstructions' "fd_fd" pair.
func (a *PipeAcceptor) ChildFiles() []*os.File {
	return []*os.File{a.childRead, a.childWrite}
}

func (a *PipeAcceptor) Kind() Kind { return KindPipe }

func (a *PipeAcceptor) DialInstructions() string {
	return fmt.Sprintf("%d_%d", a.childReadFD, a.childWriteFD)
}

// Accept performs the handshake: the peer must write exactly the literal
// byte sequence "connect"; anything else is a fatal protocol error.
func (a *PipeAcceptor) Accept(bufSize int, timeout time.Duration) (Connection, error) {
	// The child's copies of its ends are only needed for inheritance
	// across exec; once the child has started, the parent's handles
	// to them are redundant and would otherwise keep the pipe open
	// after the child exits.
	a.childRead.Close()
	a.childWrite.Close()

	if timeout > 0 {
		if err := a.parentRead.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return nil, errs.Connection(err)
		}
		defer a.parentRead.SetReadDeadline(time.Time{})
	}

	token := make([]byte, len(connectToken))
	if _, err := readFull(a.parentRead, token); err != nil {
		if isTimeout(err) {
			return nil, errs.Timeout("accept")
		}
		return nil, errs.Connection(err)
	}

	if string(token) != connectToken {
		return nil, errs.Protocol("pipe handshake: expected %q, got %q", connectToken, string(token))
	}

	conn := &pipeConnection{
		read:  a.parentRead,
		write: a.parentWrite,
	}
	conn.fb = newFrameBuffer(conn, bufSize)
	return conn, nil
}

func (a *PipeAcceptor) Close() error {
	err1 := a.parentRead.Close()
	err2 := a.parentWrite.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

func readFull(f *os.File, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := f.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// pipeConnection is a Connection over a pair of anonymous pipe fds. It
// implements deadlineReadWriteCloser by multiplexing Read to the read
// end and Write to the write end.
type pipeConnection struct {
	read  *os.File
	write *os.File
	fb    *frameBuffer
}

func (c *pipeConnection) Read(p []byte) (int, error)  { return c.read.Read(p) }
func (c *pipeConnection) Write(p []byte) (int, error) { return c.write.Write(p) }
func (c *pipeConnection) SetReadDeadline(t time.Time) error {
	return c.read.SetReadDeadline(t)
}

func (c *pipeConnection) Close() error {
	err1 := c.read.Close()
	err2 := c.write.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

func (c *pipeConnection) ReadLine() (string, error)                       { return c.fb.readLine(0) }
func (c *pipeConnection) ReadLineTimeout(t time.Duration) (string, error) { return c.fb.readLine(t) }
func (c *pipeConnection) ReadBytes(buf []byte, t time.Duration) (int, error) {
	return c.fb.readBytes(buf, t)
}
func (c *pipeConnection) WriteLine(s string) error    { return c.fb.writeLine(s) }
func (c *pipeConnection) WriteBytes(buf []byte) error { return c.fb.writeBytes(buf) }
func (c *pipeConnection) SendFile(path string) error  { return sendFile(c, path) }

// DialPipe is used by a peer process that inherited the fds published in
// DialInstructions (e.g. a child started with those files in
// ExtraFiles). It performs the "connect" handshake and returns the
// ready Connection.
func DialPipe(readFD, writeFD int, bufSize int) (Connection, error) {
	read := os.NewFile(uintptr(readFD), "adaptyst-pipe-read")
	write := os.NewFile(uintptr(writeFD), "adaptyst-pipe-write")
	if read == nil || write == nil {
		return nil, fmt.Errorf("invalid pipe file descriptors %d/%d", readFD, writeFD)
	}

	if _, err := write.Write([]byte(connectToken)); err != nil {
		return nil, errs.Connection(err)
	}

	conn := &pipeConnection{read: read, write: write}
	conn.fb = newFrameBuffer(conn, bufSize)
	return conn, nil
}
