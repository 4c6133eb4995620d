// Copyright Adaptyst Project Authors. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

// Package errs defines the typed error taxonomy used to compute the
// session's final exit code. Every error that crosses a package boundary
// in this module is either one of these types or wraps one with %w.
package errs

import (
	"errors"
	"fmt"
)

// ExitCode is the process exit status a session terminates with.
type ExitCode int

const (
	ExitOK   ExitCode = 0
	ExitEnv  ExitCode = 1
	ExitIO   ExitCode = 2
	ExitUser ExitCode = 3
)

// UserError is an invalid flag combination, missing command, or malformed
// config. No session state is created before this is returned.
type UserError struct {
	Msg string
}

func (e *UserError) Error() string { return e.Msg }

func User(format string, a ...any) error {
	return &UserError{Msg: fmt.Sprintf(format, a...)}
}

// EnvError is a hardware/topology/tool-path problem detected before any
// session state is created: missing perf binary, unsupported CPU vendor
// for roofline, etc.
type EnvError struct {
	Msg string
	Err error
}

func (e *EnvError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *EnvError) Unwrap() error { return e.Err }

func Env(err error, format string, a ...any) error {
	return &EnvError{Msg: fmt.Sprintf(format, a...), Err: err}
}

// ConnectionError wraps any I/O failure on a transport. The temp directory
// is preserved for forensics when this surfaces.
type ConnectionError struct {
	Cause error
}

func (e *ConnectionError) Error() string { return fmt.Sprintf("connection error: %v", e.Cause) }
func (e *ConnectionError) Unwrap() error { return e.Cause }

func Connection(cause error) error {
	return &ConnectionError{Cause: cause}
}

// ProtocolError is an unexpected frame or an out-of-state control message.
// The ingest server replies with the matching error_* frame before closing.
type ProtocolError struct {
	Msg string
}

func (e *ProtocolError) Error() string { return fmt.Sprintf("protocol error: %s", e.Msg) }

func Protocol(format string, a ...any) error {
	return &ProtocolError{Msg: fmt.Sprintf(format, a...)}
}

// TimeoutError is a read timeout. It only ever fires during the file
// upload phase or an optional accept deadline, and never aborts the
// session by itself.
type TimeoutError struct {
	Op string
}

func (e *TimeoutError) Error() string { return fmt.Sprintf("timeout during %s", e.Op) }

func Timeout(op string) error {
	return &TimeoutError{Op: op}
}

// AlreadyInUseError is raised by a TCP acceptor bind collision when
// try_subsequent_ports is not set.
type AlreadyInUseError struct {
	Addr string
}

func (e *AlreadyInUseError) Error() string { return fmt.Sprintf("address already in use: %s", e.Addr) }

func AlreadyInUse(addr string) error {
	return &AlreadyInUseError{Addr: addr}
}

// ToolError is a non-zero exit from a spawned child process (a probe or
// the external roofline benchmarking tool).
type ToolError struct {
	Tool     string
	ExitCode int
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s exited with non-zero status %d", e.Tool, e.ExitCode)
}

func Tool(tool string, code int) error {
	return &ToolError{Tool: tool, ExitCode: code}
}

// Code maps an error returned from session setup/run to the process exit
// code defined in spec.md §7. The profiled command's own exit code is
// handled separately by the caller and takes priority unless a more
// severe error here preempts it.
func Code(err error) ExitCode {
	if err == nil {
		return ExitOK
	}

	var userErr *UserError
	var envErr *EnvError
	if errors.As(err, &userErr) {
		return ExitUser
	}
	if errors.As(err, &envErr) {
		return ExitEnv
	}
	return ExitIO
}
