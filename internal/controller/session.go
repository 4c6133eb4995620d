// Copyright Adaptyst Project Authors. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package controller

import (
	"context"
	"strings"

	"github.com/cenkalti/backoff/v5"

	"github.com/adaptyst-project/adaptyst-go/internal/archive"
	"github.com/adaptyst-project/adaptyst-go/internal/errs"
	"github.com/adaptyst-project/adaptyst-go/internal/ingest"
	"github.com/adaptyst-project/adaptyst-go/internal/session"
	"github.com/adaptyst-project/adaptyst-go/internal/transport"
)

// peerSession is the controller's view of the control connection it
// drives as the protocol's "peer" role (spec.md §4.3), plus whatever
// local ingest server it spun up to answer that connection. remoteMode
// sessions leave client/dataAcceptors/fileAcceptor nil: the peer
// instead speaks to a standalone adaptyst-server process.
type peerSession struct {
	conn          transport.Connection
	client        *ingest.Client
	ingestErrCh   chan error
	dataAcceptors []transport.Acceptor
	fileAcceptor  transport.Acceptor
	controlAcc    *transport.TCPAcceptor
}

func (s *peerSession) Close() {
	if s.conn != nil {
		_ = s.conn.Close()
	}
	for _, acc := range s.dataAcceptors {
		_ = acc.Close()
	}
	if s.fileAcceptor != nil {
		_ = s.fileAcceptor.Close()
	}
	if s.controlAcc != nil {
		_ = s.controlAcc.Close()
	}
}

// bindAndConnect implements spec.md §4.5 steps 5-6: bind one data
// acceptor per probe plus a control acceptor, start the in-process
// ingest server, and open the peer's own control connection to it — or,
// for a remote session, dial the configured peer directly and skip all
// local binding.
func (ctl *Controller) bindAndConnect(probes []session.ProbeDescriptor, workingDir string) (*peerSession, error) {
	cfg := ctl.Config

	if cfg.RemoteAddress != "" {
		conn, err := dialRemoteWithBackoff(cfg.RemoteAddress)
		if err != nil {
			return nil, err
		}
		return &peerSession{conn: conn}, nil
	}

	return ctl.bindLocal(probes, workingDir)
}

func (ctl *Controller) bindLocal(probes []session.ProbeDescriptor, workingDir string) (*peerSession, error) {
	cfg := ctl.Config
	sess := &peerSession{}

	controlAcc, err := transport.NewTCPAcceptor(transport.TCPAcceptorConfig{Host: "127.0.0.1", TrySubsequentPorts: true})
	if err != nil {
		return nil, err
	}
	sess.controlAcc = controlAcc

	probeSpecs := make([]ingest.ProbeSpec, len(probes))
	for i, p := range probes {
		acc, err := transport.NewTCPAcceptor(transport.TCPAcceptorConfig{Host: "127.0.0.1", TrySubsequentPorts: true})
		if err != nil {
			sess.Close()
			return nil, err
		}
		sess.dataAcceptors = append(sess.dataAcceptors, acc)
		probeSpecs[i] = ingest.ProbeSpec{
			Name:      p.Name,
			Acceptor:  acc,
			NewParser: parserFor(p.Kind),
		}
	}

	var archiver archive.SourceArchiver
	if cfg.UploadActive() {
		fileAcc, err := transport.NewTCPAcceptor(transport.TCPAcceptorConfig{Host: "127.0.0.1", TrySubsequentPorts: true})
		if err != nil {
			sess.Close()
			return nil, err
		}
		sess.fileAcceptor = fileAcc
		archiver = archive.ZipArchiver{}
	}

	client := &ingest.Client{
		Probes:        probeSpecs,
		WorkingDir:    workingDir,
		FileAcceptor:  sess.fileAcceptor,
		Archiver:      archiver,
		UploadActive:  cfg.UploadActive(),
		AcceptTimeout: acceptTimeout,
		FileTimeout:   fileTimeout,
		Logger:        ctl.Logger.WithName("ingest"),
	}
	sess.client = client

	type acceptResult struct {
		conn transport.Connection
		err  error
	}
	accepted := make(chan acceptResult, 1)
	go func() {
		conn, err := controlAcc.Accept(dialBufSize, acceptTimeout)
		accepted <- acceptResult{conn, err}
	}()

	peerConn, err := transport.DialTCP(controlAcc.DialInstructions(), dialBufSize)
	if err != nil {
		sess.Close()
		return nil, err
	}
	sess.conn = peerConn

	res := <-accepted
	if res.err != nil {
		sess.Close()
		return nil, res.err
	}
	client.Control = res.conn

	sess.ingestErrCh = make(chan error, 1)
	go func() { sess.ingestErrCh <- client.Run() }()

	return sess, nil
}

// dialRemoteWithBackoff dials a remote ingest server, retrying with
// exponential backoff, per SPEC_FULL.md's grounding of
// github.com/cenkalti/backoff/v5 in this package. address is the
// HOST:PORT syntax -a/--address takes; DialTCP wants HOST_PORT.
func dialRemoteWithBackoff(address string) (transport.Connection, error) {
	instructions := strings.Replace(address, ":", "_", 1)

	op := func() (transport.Connection, error) {
		return transport.DialTCP(instructions, dialBufSize)
	}

	conn, err := backoff.Retry(context.Background(), op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(5),
	)
	if err != nil {
		return nil, errs.Connection(err)
	}
	return conn, nil
}
