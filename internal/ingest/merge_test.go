// Copyright Adaptyst Project Authors. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package ingest

import (
	"testing"

	"github.com/adaptyst-project/adaptyst-go/internal/jsonvalue"
	"github.com/adaptyst-project/adaptyst-go/internal/subclient"
	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeSyntheticThreadForUnknownSample(t *testing.T) {
	t.Parallel()

	c := &Client{Logger: logr.Discard(), epoch: 1000}
	c.subResults = []*subclient.Result{
		{
			Samples: subclient.SampleResult{
				"5/5": &subclient.SampleEntry{SampledTime: 3, Extra: jsonvalue.Map{}},
			},
		},
	}

	out, err := c.merge()
	require.NoError(t, err)
	require.Len(t, out.Metadata.ThreadTree, 1)
	assert.Equal(t, "5/5", out.Metadata.ThreadTree[0].Identifier)
	assert.Nil(t, out.Metadata.ThreadTree[0].Parent)
	assert.Equal(t, [4]any{"?", "5/5", -1, -1}, out.Metadata.ThreadTree[0].Tag)
}

func TestMergeKnownThreadSkipsSynthesis(t *testing.T) {
	t.Parallel()

	c := &Client{Logger: logr.Discard()}
	c.subResults = []*subclient.Result{
		{
			Tree: &subclient.ThreadTreeResult{
				TIDs: []int{5},
				Meta: map[int]subclient.ThreadMeta{
					5: {Tag: subclient.ThreadTag{Command: "bash", PidTid: "5/5", StartTime: 1, EndTime: 2}},
				},
				Callchains: map[string][]string{},
			},
		},
		{
			Samples: subclient.SampleResult{
				"5/5": &subclient.SampleEntry{SampledTime: 3, Extra: jsonvalue.Map{}},
			},
		},
	}

	out, err := c.merge()
	require.NoError(t, err)
	require.Len(t, out.Metadata.ThreadTree, 1)
	assert.Equal(t, "bash", out.Metadata.ThreadTree[0].Tag[0])
}

func TestMergeRebasesOffCPURegions(t *testing.T) {
	t.Parallel()

	c := &Client{Logger: logr.Discard(), epoch: 1700000000000000000}
	c.subResults = []*subclient.Result{
		{
			Samples: subclient.SampleResult{
				"1/1": &subclient.SampleEntry{
					OffCPURegions: []subclient.OffCPURegion{{Start: 1700000000000000500, Duration: 200}},
					Extra:         jsonvalue.Map{},
				},
			},
		},
	}

	out, err := c.merge()
	require.NoError(t, err)
	require.Len(t, out.Metadata.OffCPURegions["1/1"], 1)
	assert.Equal(t, uint64(500), out.Metadata.OffCPURegions["1/1"][0][0])
}

func TestMergeDuplicateChainIDErrorsByDefault(t *testing.T) {
	t.Parallel()

	c := &Client{Logger: logr.Discard()}
	c.subResults = []*subclient.Result{
		{Tree: &subclient.ThreadTreeResult{Callchains: map[string][]string{"c1": {"a"}}}},
		{Tree: &subclient.ThreadTreeResult{Callchains: map[string][]string{"c1": {"b"}}}},
	}

	_, err := c.merge()
	assert.Error(t, err)
}

func TestMergeDuplicateChainIDAllowedWhenFlagged(t *testing.T) {
	t.Parallel()

	c := &Client{Logger: logr.Discard(), AllowDuplicateChainIDs: true}
	c.subResults = []*subclient.Result{
		{Tree: &subclient.ThreadTreeResult{Callchains: map[string][]string{"c1": {"a"}}}},
		{Tree: &subclient.ThreadTreeResult{Callchains: map[string][]string{"c1": {"b"}}}},
	}

	out, err := c.merge()
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, out.Metadata.Callchains["c1"])
}

func TestMergedOutputWrite(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	out := &MergedOutput{
		Metadata: Metadata{
			Callchains:    map[string][]string{},
			OffCPURegions: map[string][][2]uint64{},
			SampledTimes:  map[string]uint64{},
		},
		PerPidTid: map[string]jsonvalue.Map{
			"5/5": {},
		},
	}

	require.NoError(t, out.Write(dir))
}
