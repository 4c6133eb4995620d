// Copyright Adaptyst Project Authors. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package transport

import (
	"os"
	"testing"
	"time"

	"github.com/adaptyst-project/adaptyst-go/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipeAcceptorDialInstructions(t *testing.T) {
	t.Parallel()

	a, err := NewPipeAcceptor(3)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	assert.Equal(t, KindPipe, a.Kind())
	assert.Equal(t, "3_4", a.DialInstructions())
	assert.Len(t, a.ChildFiles(), 2)
}

// dialPipeDirect mimics DialPipe but operates on already-open *os.File
// handles rather than raw fd numbers, since in-process tests cannot
// fabricate fds the way a freshly exec'd child inherits them.
func dialPipeDirect(read, write *os.File, bufSize int) (Connection, error) {
	if _, err := write.Write([]byte(connectToken)); err != nil {
		return nil, errs.Connection(err)
	}
	conn := &pipeConnection{read: read, write: write}
	conn.fb = newFrameBuffer(conn, bufSize)
	return conn, nil
}

func TestPipeHandshakeAndRoundTrip(t *testing.T) {
	t.Parallel()

	a, err := NewPipeAcceptor(3)
	require.NoError(t, err)

	childRead := a.childRead
	childWrite := a.childWrite

	type result struct {
		conn Connection
		err  error
	}
	accepted := make(chan result, 1)
	go func() {
		conn, aerr := a.Accept(4096, 2*time.Second)
		accepted <- result{conn, aerr}
	}()

	client, err := dialPipeDirect(childRead, childWrite, 4096)
	require.NoError(t, err)
	defer client.Close()

	res := <-accepted
	require.NoError(t, res.err)
	defer res.conn.Close()

	require.NoError(t, res.conn.WriteLine("hello"))
	line, err := client.ReadLineTimeout(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "hello", line)
}

func TestPipeHandshakeRejectsWrongToken(t *testing.T) {
	t.Parallel()

	a, err := NewPipeAcceptor(3)
	require.NoError(t, err)

	childWrite := a.childWrite

	accepted := make(chan error, 1)
	go func() {
		_, aerr := a.Accept(4096, 2*time.Second)
		accepted <- aerr
	}()

	_, err = childWrite.Write([]byte("bogus!!"))
	require.NoError(t, err)

	err = <-accepted
	require.Error(t, err)

	var protoErr *errs.ProtocolError
	assert.ErrorAs(t, err, &protoErr)
}

func TestPipeAcceptTimeout(t *testing.T) {
	t.Parallel()

	a, err := NewPipeAcceptor(3)
	require.NoError(t, err)
	t.Cleanup(func() { a.parentWrite.Close() })

	_, err = a.Accept(4096, 50*time.Millisecond)
	require.Error(t, err)

	var timeoutErr *errs.TimeoutError
	assert.ErrorAs(t, err, &timeoutErr)
}
