// Copyright Adaptyst Project Authors. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

// adaptyst-server is the standalone remote ingest server of spec.md
// §4.2's "remote mode": it listens for controller connections and runs
// one ingest.Client per session, concurrently, for as long as the
// process lives.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"

	"github.com/adaptyst-project/adaptyst-go/internal/archive"
	"github.com/adaptyst-project/adaptyst-go/internal/ingest"
	"github.com/adaptyst-project/adaptyst-go/internal/subclient"
	"github.com/adaptyst-project/adaptyst-go/internal/transport"
)

const version = "0.1.0"

var flags struct {
	listen     string
	workingDir string
	upload     bool
	verbose    bool
	quiet      bool
	showVer    bool
}

func init() {
	flag.StringVar(&flags.listen, "l", "0.0.0.0:8001", "Address to listen on, HOST:PORT")
	flag.StringVar(&flags.listen, "listen", "0.0.0.0:8001", "Address to listen on, HOST:PORT")

	flag.StringVar(&flags.workingDir, "d", "", "Working directory for session result directories (default: a fresh temp dir)")
	flag.StringVar(&flags.workingDir, "working-dir", "", "Working directory for session result directories (default: a fresh temp dir)")

	flag.BoolVar(&flags.upload, "upload", false, "Accept the optional source-code upload phase for every session")

	flag.BoolVar(&flags.quiet, "q", false, "Suppress informational output")
	flag.BoolVar(&flags.quiet, "quiet", false, "Suppress informational output")

	flag.BoolVar(&flags.verbose, "verbose", false, "Enable verbose (development) logging")

	flag.BoolVar(&flags.showVer, "v", false, "Print version and exit")
	flag.BoolVar(&flags.showVer, "version", false, "Print version and exit")
}

func main() {
	flag.Parse()

	if flags.showVer {
		fmt.Println("adaptyst-server", version)
		return
	}

	log := newLogger()

	workingDir := flags.workingDir
	if workingDir == "" {
		var err error
		workingDir, err = os.MkdirTemp("", "adaptyst-server-")
		if err != nil {
			log.Error(err, "failed to create working directory")
			os.Exit(1)
		}
	}

	host, port, err := splitListenAddr(flags.listen)
	if err != nil {
		log.Error(err, "invalid --listen address", "listen", flags.listen)
		os.Exit(1)
	}

	controlAcc, err := transport.NewTCPAcceptor(transport.TCPAcceptorConfig{Host: host, Port: port})
	if err != nil {
		log.Error(err, "failed to bind control listener", "listen", flags.listen)
		os.Exit(1)
	}
	defer controlAcc.Close()

	log.Info("listening", "address", flags.listen, "working_dir", workingDir, "upload", flags.upload)

	srv := &server{
		dataHost:   host,
		workingDir: workingDir,
		upload:     flags.upload,
		logger:     log,
	}
	srv.acceptLoop(controlAcc)
}

func newLogger() logr.Logger {
	if flags.quiet {
		return logr.Discard()
	}
	if flags.verbose {
		zapLog, _ := zap.NewDevelopment()
		return zapr.NewLogger(zapLog)
	}
	zapLog, _ := zap.NewProduction()
	return zapr.NewLogger(zapLog)
}

func splitListenAddr(addr string) (host string, port int, err error) {
	h, p, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	portNum, err := strconv.Atoi(p)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port %q: %w", p, err)
	}
	return h, portNum, nil
}

// server accepts control connections and runs one ingest.Client per
// session, each in its own goroutine, for the lifetime of the process.
type server struct {
	dataHost   string
	workingDir string
	upload     bool
	logger     logr.Logger

	sessionNum int
}

func (s *server) acceptLoop(acc *transport.TCPAcceptor) {
	for {
		conn, err := acc.Accept(controlBufSize, 0)
		if err != nil {
			s.logger.Error(err, "accept failed")
			continue
		}
		s.sessionNum++
		go s.handleSession(conn, s.sessionNum)
	}
}

const controlBufSize = 64 * 1024

// handleSession reads the start frame itself (per spec.md §4.3), binds
// one data acceptor per requested subclient plus an optional file
// acceptor, and hands off to ingest.Client.RunFrom for the rest of the
// control-connection state machine.
//
// Probe index 0 is always the thread-tree probe, matching the fixed
// probe ordering session.BuildProbeList produces on the controller
// side: the wire protocol never tells the server which event kind a
// given data connection carries, so this ordering convention is the
// only way a standalone server can pick the right subclient.RecordParser
// for each one.
func (s *server) handleSession(conn transport.Connection, num int) {
	log := s.logger.WithValues("session", num)
	defer conn.Close()

	line, err := conn.ReadLine()
	if err != nil {
		log.Error(err, "failed to read start frame")
		return
	}

	n, resultDir, err := ingest.ParseStartLine(line)
	if err != nil {
		log.Error(err, "malformed start frame", "line", line)
		_ = conn.WriteLine("error_wrong_command")
		return
	}

	probes := make([]ingest.ProbeSpec, n)
	var acceptors []transport.Acceptor
	defer func() {
		for _, acc := range acceptors {
			_ = acc.Close()
		}
	}()

	for i := 0; i < n; i++ {
		acc, err := transport.NewTCPAcceptor(transport.TCPAcceptorConfig{Host: s.dataHost, TrySubsequentPorts: true})
		if err != nil {
			log.Error(err, "failed to bind subclient data acceptor")
			_ = conn.WriteLine("error_out_file")
			return
		}
		acceptors = append(acceptors, acc)

		probes[i] = ingest.ProbeSpec{
			Name:      fmt.Sprintf("probe%d", i),
			Acceptor:  acc,
			NewParser: parserFor(i),
		}
	}

	var fileAcc transport.Acceptor
	var archiver archive.SourceArchiver
	if s.upload {
		acc, err := transport.NewTCPAcceptor(transport.TCPAcceptorConfig{Host: s.dataHost, TrySubsequentPorts: true})
		if err != nil {
			log.Error(err, "failed to bind file acceptor")
			_ = conn.WriteLine("error_out_file")
			return
		}
		acceptors = append(acceptors, acc)
		fileAcc = acc
		archiver = archive.ZipArchiver{}
	}

	client := &ingest.Client{
		Control:      conn,
		Probes:       probes,
		WorkingDir:   s.workingDir,
		FileAcceptor: fileAcc,
		Archiver:     archiver,
		UploadActive: s.upload,
		Logger:       log.WithName("ingest"),
	}

	if err := client.RunFrom(n, resultDir); err != nil {
		log.Error(err, "session failed")
	}
}

// parserFor follows the controller's own probe-index convention
// (session.BuildProbeList always places the thread-tree probe first):
// index 0 decodes as a call-tree stream, every other index as a flat
// sample stream.
func parserFor(index int) func() subclient.RecordParser {
	if index == 0 {
		return func() subclient.RecordParser { return subclient.NewTreeParser() }
	}
	return func() subclient.RecordParser { return subclient.NewSampleParser() }
}
