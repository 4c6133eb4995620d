// Copyright Adaptyst Project Authors. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package subclient

import (
	"errors"
	"io"

	"github.com/adaptyst-project/adaptyst-go/internal/errs"
	"github.com/adaptyst-project/adaptyst-go/internal/transport"
	"github.com/go-logr/logr"
)

// stopToken is the control line the probe wrapper sends to end a
// subclient's stream early, instead of just closing the connection.
const stopToken = "<STOP>"

// ReadinessSignal is the capability a Subclient calls exactly once,
// right after it has accepted its data connection — the shared-pointer
// callback pattern of the original source expressed as a plain
// function value, per SPEC_FULL.md's "Shared-pointer subclient ↔ client
// callbacks" design note.
type ReadinessSignal func()

// Subclient is the per-probe, per-connection receiver described in
// spec.md §4.2. Each one runs on its own goroutine.
type Subclient struct {
	Name      string
	Conn      transport.Connection
	Parser    RecordParser
	Readiness ReadinessSignal
	Logger    logr.Logger
}

// Run accepts the subclient's ownership of Conn, signals readiness, then
// reads newline-framed records until clean EOF or an explicit <STOP>,
// feeding each into Parser. It returns the parser's accumulated Result
// on success.
//
// A failed subclient does not cancel its siblings; the caller (the
// ingest client) is responsible for joining every subclient regardless
// of individual failures, per spec.md §4.2's completion contract.
func (s *Subclient) Run() (*Result, error) {
	if s.Readiness != nil {
		s.Readiness()
	}

	for {
		line, err := s.Conn.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}

		if line == stopToken {
			break
		}

		if perr := s.Parser.ParseLine(line); perr != nil {
			s.Logger.Error(perr, "malformed record", "subclient", s.Name, "line", line)
			return nil, perr
		}
	}

	result, err := s.Parser.Finish()
	if err != nil {
		return nil, errs.Protocol("subclient %s: %v", s.Name, err)
	}
	return result, nil
}
