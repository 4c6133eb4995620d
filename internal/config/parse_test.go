// Copyright Adaptyst Project Authors. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adaptyst-project/adaptyst-go/internal/session"
)

func TestParseExtraEvents(t *testing.T) {
	t.Parallel()

	got, err := parseExtraEvents([]string{"cache-misses,1000,Cache Misses"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, session.ExtraEvent{Name: "cache-misses", Period: 1000, Title: "Cache Misses"}, got[0])
}

func TestParseExtraEventsInvalid(t *testing.T) {
	t.Parallel()

	cases := []string{"too,few", "bad-period,zero,Title", "bad-period,-1,Title"}
	for _, c := range cases {
		_, err := parseExtraEvents([]string{c})
		assert.Error(t, err, c)
	}
}

func TestParseFilterSpecNone(t *testing.T) {
	t.Parallel()

	spec, err := parseFilterSpec("", false)
	require.NoError(t, err)
	assert.Equal(t, session.FilterNone, spec.Kind)
}

func TestParseFilterSpecAllow(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "allow.txt")
	require.NoError(t, os.WriteFile(path, []byte("SYM ^main$\n"), 0o644))

	spec, err := parseFilterSpec("allow:"+path, true)
	require.NoError(t, err)
	assert.Equal(t, session.FilterAllow, spec.Kind)
	assert.True(t, spec.Mark)
	assert.NotNil(t, spec.Pattern)
}

func TestParseFilterSpecPythonRejectsStdin(t *testing.T) {
	t.Parallel()

	_, err := parseFilterSpec("python:-", false)
	assert.Error(t, err)
}

func TestParseFilterSpecUnknownKind(t *testing.T) {
	t.Parallel()

	_, err := parseFilterSpec("bogus:/tmp/x", false)
	assert.Error(t, err)
}

func TestParseCodesDst(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw  string
		want session.CodesDst
	}{
		{"", session.CodesDst{Kind: session.CodesBundleHere}},
		{"srv", session.CodesDst{Kind: session.CodesSendToServer}},
		{"file:/tmp/out.zip", session.CodesDst{Kind: session.CodesWriteToFile, Path: "/tmp/out.zip"}},
		{"fd:3", session.CodesDst{Kind: session.CodesWriteToFD, FD: 3}},
	}

	for _, tc := range cases {
		got, err := parseCodesDst(tc.raw)
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.want, got, tc.raw)
	}
}

func TestParseCodesDstInvalid(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"file", "file:", "fd", "fd:abc", "bogus"} {
		_, err := parseCodesDst(raw)
		assert.Error(t, err, raw)
	}
}

func TestParseCommandPreSplit(t *testing.T) {
	t.Parallel()

	got, err := parseCommand([]string{"ls", "-la", "/tmp"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ls", "-la", "/tmp"}, got)
}

func TestParseCommandShellSplit(t *testing.T) {
	t.Parallel()

	got, err := parseCommand([]string{`ls -la "/tmp/my dir"`})
	require.NoError(t, err)
	assert.Equal(t, []string{"ls", "-la", "/tmp/my dir"}, got)
}

func TestParseCommandEmpty(t *testing.T) {
	t.Parallel()

	_, err := parseCommand(nil)
	assert.Error(t, err)

	_, err = parseCommand([]string{"   "})
	assert.Error(t, err)
}
