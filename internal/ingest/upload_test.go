// Copyright Adaptyst Project Authors. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseUploadLine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		line     string
		wantOK   bool
		wantDest string
		wantName string
	}{
		{"o metadata.json", true, "out", "metadata.json"},
		{"p src.zip", true, "processed", "src.zip"},
		{"x foo.txt", false, "", ""},
		{"oo", false, "", ""},
		{"o ../escape", false, "", ""},
		{"o", false, "", ""},
	}

	for _, tt := range tests {
		dest, name, ok := parseUploadLine(tt.line)
		assert.Equal(t, tt.wantOK, ok, tt.line)
		if tt.wantOK {
			assert.Equal(t, tt.wantDest, dest, tt.line)
			assert.Equal(t, tt.wantName, name, tt.line)
		}
	}
}
