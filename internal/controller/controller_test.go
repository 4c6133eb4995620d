// Copyright Adaptyst Project Authors. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package controller

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adaptyst-project/adaptyst-go/internal/session"
)

func TestCheckPerfPath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "bin"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bin", "perf"), []byte("#!/bin/sh\n"), 0o755))

	assert.NoError(t, checkPerfPath(dir))
}

func TestCheckPerfPathMissingBinary(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	assert.Error(t, checkPerfPath(dir))
}

func TestCheckPerfPathNotADirectory(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	assert.Error(t, checkPerfPath(file))
}

func TestParserForThreadTreeFirst(t *testing.T) {
	t.Parallel()

	treeParser := parserFor(session.EventThreadTree)()
	assert.NotNil(t, treeParser)

	sampleParser := parserFor(session.EventMain)()
	assert.NotNil(t, sampleParser)

	extraParser := parserFor(session.EventExtra)()
	assert.NotNil(t, extraParser)
}
