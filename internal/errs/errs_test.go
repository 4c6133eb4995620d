// Copyright Adaptyst Project Authors. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCode(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want ExitCode
	}{
		{"nil", nil, ExitOK},
		{"user", User("bad flag"), ExitUser},
		{"env", Env(errors.New("cause"), "missing perf binary"), ExitEnv},
		{"connection", Connection(errors.New("cause")), ExitIO},
		{"protocol", Protocol("unexpected frame %q", "x"), ExitIO},
		{"tool", Tool("perf", 1), ExitIO},
		{"wrapped env", fmt.Errorf("context: %w", Env(nil, "boom")), ExitEnv},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Code(tc.err))
		})
	}
}

func TestEnvErrorUnwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	err := Env(cause, "setting up")
	assert.ErrorIs(t, err, cause)
}

func TestConnectionErrorUnwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	err := Connection(cause)
	assert.ErrorIs(t, err, cause)
}

func TestTimeoutError(t *testing.T) {
	t.Parallel()

	err := Timeout("read_line")
	assert.Contains(t, err.Error(), "read_line")
}

func TestAlreadyInUseError(t *testing.T) {
	t.Parallel()

	err := AlreadyInUse("127.0.0.1:8001")
	assert.Contains(t, err.Error(), "127.0.0.1:8001")
}
