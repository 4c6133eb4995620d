// Copyright Adaptyst Project Authors. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package controller

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitDialLine(t *testing.T) {
	t.Parallel()

	kind, inst, err := splitDialLine("tcp 127.0.0.1_9001")
	require.NoError(t, err)
	assert.Equal(t, "tcp", kind)
	assert.Equal(t, "127.0.0.1_9001", inst)
}

func TestSplitDialLineMalformed(t *testing.T) {
	t.Parallel()

	_, _, err := splitDialLine("tcp")
	assert.Error(t, err)
}

func TestIsErrorFrame(t *testing.T) {
	t.Parallel()

	assert.True(t, isErrorFrame("error_wrong_command"))
	assert.True(t, isErrorFrame("error_result_dir"))
	assert.False(t, isErrorFrame("start_profile"))
	assert.False(t, isErrorFrame("finished"))
}
