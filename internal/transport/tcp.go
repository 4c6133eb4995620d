// Copyright Adaptyst Project Authors. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package transport

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/adaptyst-project/adaptyst-go/internal/errs"
)

// TCPAcceptor binds a TCP listener. If TrySubsequentPorts is set, a bind
// collision ("address already in use") increments the port and retries;
// otherwise the collision is raised as errs.AlreadyInUseError.
type TCPAcceptor struct {
	ln   net.Listener
	host string
	port int
}

// TCPAcceptorConfig configures NewTCPAcceptor.
type TCPAcceptorConfig struct {
	Host               string
	Port               int
	TrySubsequentPorts bool
}

func NewTCPAcceptor(cfg TCPAcceptorConfig) (*TCPAcceptor, error) {
	port := cfg.Port

	for {
		addr := net.JoinHostPort(cfg.Host, strconv.Itoa(port))
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			return &TCPAcceptor{ln: ln, host: cfg.Host, port: port}, nil
		}

		if isAddrInUse(err) {
			if cfg.TrySubsequentPorts {
				port++
				continue
			}
			return nil, errs.AlreadyInUse(addr)
		}

		return nil, errs.Connection(err)
	}
}

func isAddrInUse(err error) bool {
	return errors.Is(err, os.ErrExist) || strings.Contains(err.Error(), "address already in use")
}

func (a *TCPAcceptor) Kind() Kind { return KindTCP }

// DialInstructions reports "host_port", where host is the bound address
// if explicitly set, otherwise empty (meaning "any local address" — the
// peer is expected to already know the target host out of band, e.g.
// because it dialed this machine to begin with).
func (a *TCPAcceptor) DialInstructions() string {
	_, port, _ := net.SplitHostPort(a.ln.Addr().String())
	return fmt.Sprintf("%s_%s", a.host, port)
}

func (a *TCPAcceptor) Port() int { return a.Addr().Port }

func (a *TCPAcceptor) Addr() *net.TCPAddr {
	return a.ln.Addr().(*net.TCPAddr)
}

func (a *TCPAcceptor) Accept(bufSize int, timeout time.Duration) (Connection, error) {
	if timeout > 0 {
		if tl, ok := a.ln.(*net.TCPListener); ok {
			_ = tl.SetDeadline(time.Now().Add(timeout))
			defer tl.SetDeadline(time.Time{})
		}
	}

	conn, err := a.ln.Accept()
	if err != nil {
		if isTimeout(err) {
			return nil, errs.Timeout("accept")
		}
		return nil, errs.Connection(err)
	}

	return &tcpConnection{fb: newFrameBuffer(conn, bufSize), conn: conn}, nil
}

func (a *TCPAcceptor) Close() error {
	return a.ln.Close()
}

// tcpConnection is a Connection backed by a net.TCPConn.
type tcpConnection struct {
	fb   *frameBuffer
	conn net.Conn
}

// DialTCP connects to a peer's published "host_port" dial instructions.
func DialTCP(instructions string, bufSize int) (Connection, error) {
	host, port, err := splitDialInstructions(instructions)
	if err != nil {
		return nil, err
	}

	conn, err := net.Dial("tcp", net.JoinHostPort(host, port))
	if err != nil {
		return nil, errs.Connection(err)
	}

	return &tcpConnection{fb: newFrameBuffer(conn, bufSize), conn: conn}, nil
}

func splitDialInstructions(instructions string) (host, port string, err error) {
	parts := strings.SplitN(instructions, "_", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("malformed TCP dial instructions %q", instructions)
	}
	return parts[0], parts[1], nil
}

func (c *tcpConnection) ReadLine() (string, error)                          { return c.fb.readLine(0) }
func (c *tcpConnection) ReadLineTimeout(t time.Duration) (string, error)    { return c.fb.readLine(t) }
func (c *tcpConnection) ReadBytes(buf []byte, t time.Duration) (int, error) { return c.fb.readBytes(buf, t) }
func (c *tcpConnection) WriteLine(s string) error                          { return c.fb.writeLine(s) }
func (c *tcpConnection) WriteBytes(buf []byte) error                       { return c.fb.writeBytes(buf) }
func (c *tcpConnection) Close() error                                      { return c.conn.Close() }

func (c *tcpConnection) SendFile(path string) error {
	return sendFile(c, path)
}
