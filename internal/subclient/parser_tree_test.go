// Copyright Adaptyst Project Authors. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package subclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTreeParserBuildsMetaAndChains(t *testing.T) {
	t.Parallel()

	p := NewTreeParser()
	lines := []string{
		"proc 100 0 bash 1000",
		"proc 101 100 bash 1100",
		"chain c1 main|run|helper",
		"exit 101 2000",
	}
	for _, l := range lines {
		require.NoError(t, p.ParseLine(l))
	}

	res, err := p.Finish()
	require.NoError(t, err)
	require.NotNil(t, res.Tree)

	assert.Equal(t, []int{100, 101}, res.Tree.TIDs)
	assert.Equal(t, int64(2000), res.Tree.Meta[101].Tag.EndTime)
	assert.Equal(t, []string{"main", "run", "helper"}, res.Tree.Callchains["c1"])
	assert.Nil(t, res.Tree.Meta[100].Parent)
	require.NotNil(t, res.Tree.Meta[101].Parent)
	assert.Equal(t, 100, *res.Tree.Meta[101].Parent)
}

func TestTreeParserRejectsDuplicateChainID(t *testing.T) {
	t.Parallel()

	p := NewTreeParser()
	require.NoError(t, p.ParseLine("chain c1 a|b"))
	assert.Error(t, p.ParseLine("chain c1 x|y"))
}

func TestTreeParserRejectsUnknownRecord(t *testing.T) {
	t.Parallel()

	p := NewTreeParser()
	assert.Error(t, p.ParseLine("bogus 1 2 3"))
}

func TestTreeParserExitForUnknownPid(t *testing.T) {
	t.Parallel()

	p := NewTreeParser()
	assert.Error(t, p.ParseLine("exit 999 1000"))
}
