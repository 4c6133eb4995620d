// Copyright Adaptyst Project Authors. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package jsonvalue

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueRoundTrip(t *testing.T) {
	t.Parallel()

	v, err := Of(map[string]any{"a": 1, "b": []int{1, 2, 3}})
	require.NoError(t, err)

	data, err := json.Marshal(v)
	require.NoError(t, err)

	var got Value
	require.NoError(t, json.Unmarshal(data, &got))

	var dst map[string]any
	require.NoError(t, got.Decode(&dst))
	assert.Equal(t, float64(1), dst["a"])
	assert.Equal(t, []any{float64(1), float64(2), float64(3)}, dst["b"])
}

func TestValueZeroMarshalsNull(t *testing.T) {
	t.Parallel()

	var v Value
	data, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))
}

func TestMapSet(t *testing.T) {
	t.Parallel()

	m := Map{}
	require.NoError(t, m.Set("count", 42))

	var got int
	require.NoError(t, m["count"].Decode(&got))
	assert.Equal(t, 42, got)
}

func TestMapRoundTripThroughJSON(t *testing.T) {
	t.Parallel()

	m := Map{}
	require.NoError(t, m.Set("name", "thread-1"))
	require.NoError(t, m.Set("samples", []int{1, 2, 3}))

	data, err := json.Marshal(m)
	require.NoError(t, err)

	var got Map
	require.NoError(t, json.Unmarshal(data, &got))

	var name string
	require.NoError(t, got["name"].Decode(&name))
	assert.Equal(t, "thread-1", name)
}
