// Copyright Adaptyst Project Authors. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

// Package jsonvalue provides a sum-typed JSON value used to carry
// event-specific counters through the merge algorithm without the
// ingest client needing to know each probe's field set ahead of time.
package jsonvalue

import (
	"encoding/json"
	"fmt"
)

// Value is a minimal sum type over the JSON value space: null, bool,
// number, string, array, and object. It round-trips through
// encoding/json without losing the original shape, which a plain
// map[string]any read via json.Unmarshal already does for objects/arrays,
// but Value makes that contract explicit at the type level so callers in
// the merge path don't need to type-switch on `any`.
type Value struct {
	raw json.RawMessage
}

// Of wraps any marshalable Go value as a Value.
func Of(v any) (Value, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Value{}, fmt.Errorf("marshaling json value: %w", err)
	}
	return Value{raw: raw}, nil
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.raw == nil {
		return []byte("null"), nil
	}
	return v.raw, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	v.raw = append(v.raw[:0], data...)
	return nil
}

// Decode unmarshals the value into dst.
func (v Value) Decode(dst any) error {
	if v.raw == nil {
		return nil
	}
	return json.Unmarshal(v.raw, dst)
}

// Map is a JSON object keyed by field name, used for both the per-event
// counter bag in a PerThreadResult and the final per-pid_tid output
// document. Three field names are carved out with their own Go types by
// the merge algorithm (sampled_time, offcpu_regions, first_time);
// everything else round-trips through Map verbatim.
type Map map[string]Value

// Set stores v under key after marshaling it.
func (m Map) Set(key string, v any) error {
	val, err := Of(v)
	if err != nil {
		return fmt.Errorf("setting field %q: %w", key, err)
	}
	m[key] = val
	return nil
}
