// Copyright Adaptyst Project Authors. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package transport

import (
	"testing"
	"time"

	"github.com/adaptyst-project/adaptyst-go/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTCPAcceptorBindsEphemeralPort(t *testing.T) {
	t.Parallel()

	a, err := NewTCPAcceptor(TCPAcceptorConfig{Host: "127.0.0.1", Port: 0})
	require.NoError(t, err)
	defer a.Close()

	assert.NotZero(t, a.Port())
	assert.Equal(t, KindTCP, a.Kind())
}

func TestNewTCPAcceptorCollisionWithoutRetry(t *testing.T) {
	t.Parallel()

	first, err := NewTCPAcceptor(TCPAcceptorConfig{Host: "127.0.0.1", Port: 0})
	require.NoError(t, err)
	defer first.Close()

	_, err = NewTCPAcceptor(TCPAcceptorConfig{
		Host:               "127.0.0.1",
		Port:               first.Port(),
		TrySubsequentPorts: false,
	})
	require.Error(t, err)

	var inUse *errs.AlreadyInUseError
	assert.ErrorAs(t, err, &inUse)
}

func TestNewTCPAcceptorCollisionWithRetry(t *testing.T) {
	t.Parallel()

	first, err := NewTCPAcceptor(TCPAcceptorConfig{Host: "127.0.0.1", Port: 0})
	require.NoError(t, err)
	defer first.Close()

	second, err := NewTCPAcceptor(TCPAcceptorConfig{
		Host:               "127.0.0.1",
		Port:               first.Port(),
		TrySubsequentPorts: true,
	})
	require.NoError(t, err)
	defer second.Close()

	assert.NotEqual(t, first.Port(), second.Port())
}

func TestTCPAcceptDialRoundTrip(t *testing.T) {
	t.Parallel()

	a, err := NewTCPAcceptor(TCPAcceptorConfig{Host: "127.0.0.1", Port: 0})
	require.NoError(t, err)
	defer a.Close()

	type result struct {
		conn Connection
		err  error
	}
	accepted := make(chan result, 1)
	go func() {
		conn, aerr := a.Accept(4096, 0)
		accepted <- result{conn, aerr}
	}()

	client, err := DialTCP(a.DialInstructions(), 4096)
	require.NoError(t, err)
	defer client.Close()

	res := <-accepted
	require.NoError(t, res.err)
	defer res.conn.Close()

	require.NoError(t, client.WriteLine("ping"))
	line, err := res.conn.ReadLineTimeout(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "ping", line)
}

func TestTCPAcceptTimeout(t *testing.T) {
	t.Parallel()

	a, err := NewTCPAcceptor(TCPAcceptorConfig{Host: "127.0.0.1", Port: 0})
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Accept(4096, 50*time.Millisecond)
	require.Error(t, err)

	var timeoutErr *errs.TimeoutError
	assert.ErrorAs(t, err, &timeoutErr)
}
