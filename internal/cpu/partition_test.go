// Copyright Adaptyst Project Authors. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseList(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want []int
	}{
		{"", []int{}},
		{"0", []int{0}},
		{"0-3", []int{0, 1, 2, 3}},
		{"0,2-4,7", []int{0, 2, 3, 4, 7}},
		{" 1 , 3-3 ", []int{1, 3}},
	}

	for _, tc := range cases {
		got, err := ParseList(tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}
}

func TestParseListInvalid(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"a", "1-", "3-1", "1-2-3"} {
		_, err := ParseList(in)
		assert.Error(t, err, in)
	}
}

func TestMaxPostProcess(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1, MaxPostProcess(4))
	assert.Equal(t, 1, MaxPostProcess(3))
	assert.Equal(t, 1, MaxPostProcess(2))
	assert.Equal(t, 5, MaxPostProcess(8))
}

func TestBuildDisjoint(t *testing.T) {
	t.Parallel()

	online, err := ParseList("0-7")
	require.NoError(t, err)

	part, err := Build(online, 1)
	require.NoError(t, err)
	require.NoError(t, part.Validate())
	assert.Equal(t, []int{0}, part.ProfilerSet)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7}, part.CommandSet)
}

func TestBuildNoIsolation(t *testing.T) {
	t.Parallel()

	online, err := ParseList("0-3")
	require.NoError(t, err)

	part, err := Build(online, 0)
	require.NoError(t, err)
	assert.Equal(t, online, part.ProfilerSet)
	assert.Empty(t, part.CommandSet)
}

func TestBuildExceedsMax(t *testing.T) {
	t.Parallel()

	online, err := ParseList("0-3")
	require.NoError(t, err)

	_, err = Build(online, 2)
	assert.Error(t, err)
}
