// Copyright Adaptyst Project Authors. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package transport

import (
	"bytes"
	"errors"
	"io"
	"net"
	"time"

	"github.com/adaptyst-project/adaptyst-go/internal/errs"
)

// deadlineReadWriteCloser is the minimal surface both net.Conn and
// *os.File (for pipes) implement, letting frameBuffer drive either
// variant with one piece of logic.
type deadlineReadWriteCloser interface {
	io.ReadWriteCloser
	SetReadDeadline(t time.Time) error
}

// frameBuffer implements the newline-framing contract of spec.md §4.1 on
// top of any deadlineReadWriteCloser: partial frames are preserved across
// reads, and any extra complete frames received in the same underlying
// Read are queued in FIFO order for subsequent calls.
type frameBuffer struct {
	conn    deadlineReadWriteCloser
	bufSize int

	prefix []byte   // bytes received but not yet forming a complete frame
	queue  []string // complete frames already extracted, awaiting delivery
	eof    bool     // underlying stream has hit EOF
}

func newFrameBuffer(conn deadlineReadWriteCloser, bufSize int) *frameBuffer {
	if bufSize <= 0 {
		bufSize = 4096
	}
	return &frameBuffer{conn: conn, bufSize: bufSize}
}

// readLine implements Connection.ReadLine. A zero timeout blocks
// indefinitely.
func (f *frameBuffer) readLine(timeout time.Duration) (string, error) {
	if len(f.queue) > 0 {
		line := f.queue[0]
		f.queue = f.queue[1:]
		return line, nil
	}

	if f.eof {
		if len(f.prefix) > 0 {
			line := string(f.prefix)
			f.prefix = nil
			return line, nil
		}
		return "", io.EOF
	}

	if timeout > 0 {
		if err := f.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return "", errs.Connection(err)
		}
		defer f.conn.SetReadDeadline(time.Time{})
	}

	tmp := make([]byte, f.bufSize)

	for {
		n, err := f.conn.Read(tmp)
		if n > 0 {
			f.prefix = append(f.prefix, tmp[:n]...)
		}

		if err != nil {
			if isTimeout(err) {
				return "", errs.Timeout("read_line")
			}
			if errors.Is(err, io.EOF) {
				f.eof = true
				if idx := bytes.IndexByte(f.prefix, '\n'); idx >= 0 {
					break
				}
				if len(f.prefix) > 0 {
					line := string(f.prefix)
					f.prefix = nil
					return line, nil
				}
				return "", io.EOF
			}
			return "", errs.Connection(err)
		}

		if bytes.IndexByte(f.prefix, '\n') >= 0 {
			break
		}
	}

	return f.popFrame()
}

// popFrame splits f.prefix into complete frames. The first is returned;
// any additional complete frames are queued FIFO; any trailing partial
// frame (no terminator yet) is retained as the new prefix.
func (f *frameBuffer) popFrame() (string, error) {
	data := f.prefix
	f.prefix = nil

	var frames []string
	for {
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		frames = append(frames, string(data[:idx]))
		data = data[idx+1:]
	}

	if len(data) > 0 {
		f.prefix = data
	}

	if len(frames) == 0 {
		// No complete frame yet (can happen right after an EOF-driven
		// break with no '\n' at all, defensive only).
		if f.eof && len(f.prefix) > 0 {
			line := string(f.prefix)
			f.prefix = nil
			return line, nil
		}
		return "", io.EOF
	}

	first := frames[0]
	if len(frames) > 1 {
		f.queue = append(f.queue, frames[1:]...)
	}
	return first, nil
}

// readBytes implements Connection.ReadBytes: raw, unframed reads,
// draining any buffered prefix bytes first (defensive; file connections
// in this protocol are not expected to have gone through readLine
// first).
func (f *frameBuffer) readBytes(buf []byte, timeout time.Duration) (int, error) {
	if len(f.prefix) > 0 {
		n := copy(buf, f.prefix)
		f.prefix = f.prefix[n:]
		return n, nil
	}

	if f.eof {
		return 0, nil
	}

	if timeout > 0 {
		if err := f.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return 0, errs.Connection(err)
		}
		defer f.conn.SetReadDeadline(time.Time{})
	}

	n, err := f.conn.Read(buf)
	if err != nil {
		if isTimeout(err) {
			return n, errs.Timeout("read_bytes")
		}
		if errors.Is(err, io.EOF) {
			f.eof = true
			return n, nil
		}
		return n, errs.Connection(err)
	}
	return n, nil
}

func (f *frameBuffer) writeLine(s string) error {
	payload := []byte(s + "\n")
	n, err := f.conn.Write(payload)
	if werr := wrapShortWrite(len(payload), n, err); werr != nil {
		return werr
	}
	return nil
}

func (f *frameBuffer) writeBytes(buf []byte) error {
	n, err := f.conn.Write(buf)
	if werr := wrapShortWrite(len(buf), n, err); werr != nil {
		return werr
	}
	return nil
}

func isTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}
