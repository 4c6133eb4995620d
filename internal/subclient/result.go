// Copyright Adaptyst Project Authors. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

// Package subclient implements the per-probe server-side receiver:
// parses a probe's line-oriented records, accumulates a PerThreadResult,
// and signals readiness to its owning ingest client once its data
// connection is accepted.
package subclient

import (
	"github.com/adaptyst-project/adaptyst-go/internal/jsonvalue"
)

// ThreadTag is the four-tuple the original source attaches to every
// thread-tree entry.
type ThreadTag struct {
	Command   string
	PidTid    string
	StartTime int64
	EndTime   int64
}

// ThreadMeta is one thread_tree entry's metadata, keyed by tid in
// ThreadTreeResult.Meta.
type ThreadMeta struct {
	Parent *int
	Tag    ThreadTag
}

// ThreadTreeResult is the PerThreadResult shape the thread-tree probe's
// subclient produces: the observed TIDs in encounter order, their
// metadata, and the callchain dictionary keyed by synthetic chain id.
type ThreadTreeResult struct {
	TIDs       []int
	Meta       map[int]ThreadMeta
	Callchains map[string][]string // chain_id -> frames, root first
}

// OffCPURegion is one off-CPU wait window, raw (pre-epoch-rebase)
// timestamp and duration in nanoseconds.
type OffCPURegion struct {
	Start    uint64
	Duration uint64
}

// SampleEntry is one pid_tid's accumulated counters from a sample probe.
type SampleEntry struct {
	SampledTime   uint64
	OffCPURegions []OffCPURegion
	FirstTime     uint64
	Extra         jsonvalue.Map
}

// SampleResult maps "pid/tid" to its accumulated entry.
type SampleResult map[string]*SampleEntry

// Result is the PerThreadResult a subclient's RecordParser yields on
// clean completion. Exactly one of Tree or Samples is populated,
// depending on which probe kind produced it.
type Result struct {
	Tree    *ThreadTreeResult
	Samples SampleResult
}
