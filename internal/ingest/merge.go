// Copyright Adaptyst Project Authors. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package ingest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/adaptyst-project/adaptyst-go/internal/errs"
	"github.com/adaptyst-project/adaptyst-go/internal/jsonvalue"
	"github.com/adaptyst-project/adaptyst-go/internal/subclient"
)

// ThreadEntry is one metadata.thread_tree element.
type ThreadEntry struct {
	Identifier string `json:"identifier"`
	Parent     *int   `json:"parent"`
	Tag        [4]any `json:"tag"`
}

// Metadata is metadata.json's shape.
type Metadata struct {
	ThreadTree    []ThreadEntry          `json:"thread_tree"`
	Callchains    map[string][]string    `json:"callchains"`
	OffCPURegions map[string][][2]uint64 `json:"offcpu_regions"`
	SampledTimes  map[string]uint64      `json:"sampled_times"`
}

// MergedOutput is the full result of merging every subclient's
// PerThreadResult, ready to be written to processed/.
type MergedOutput struct {
	Metadata  Metadata
	PerPidTid map[string]jsonvalue.Map
}

// merge implements spec.md §4.3's merge algorithm across c.subResults,
// in subclient-registration order, then rebases off-CPU timestamps
// against c.epoch.
func (c *Client) merge() (*MergedOutput, error) {
	out := &MergedOutput{
		Metadata: Metadata{
			Callchains:    make(map[string][]string),
			OffCPURegions: make(map[string][][2]uint64),
			SampledTimes:  make(map[string]uint64),
		},
		PerPidTid: make(map[string]jsonvalue.Map),
	}

	knownTids := make(map[string]bool)

	for _, res := range c.subResults {
		if res == nil {
			continue
		}

		if res.Tree != nil {
			if err := c.mergeTree(out, res.Tree, knownTids); err != nil {
				return nil, err
			}
		}

		if res.Samples != nil {
			mergeSamples(out, res.Samples, knownTids)
		}
	}

	rebase(out, c.epoch)

	return out, nil
}

func (c *Client) mergeTree(out *MergedOutput, tree *subclient.ThreadTreeResult, knownTids map[string]bool) error {
	for _, tid := range tree.TIDs {
		meta := tree.Meta[tid]
		out.Metadata.ThreadTree = append(out.Metadata.ThreadTree, ThreadEntry{
			Identifier: fmt.Sprintf("%d", tid),
			Parent:     meta.Parent,
			Tag:        [4]any{meta.Tag.Command, meta.Tag.PidTid, meta.Tag.StartTime, meta.Tag.EndTime},
		})
		knownTids[fmt.Sprintf("%d", tid)] = true
	}

	for chainID, frames := range tree.Callchains {
		if _, dup := out.Metadata.Callchains[chainID]; dup {
			if c.AllowDuplicateChainIDs {
				c.Logger.Info("chain id collision, overwriting (bug-compatible mode)", "chain_id", chainID)
			} else {
				return errs.Protocol("duplicate chain id %q across subclients", chainID)
			}
		}
		out.Metadata.Callchains[chainID] = frames
	}

	return nil
}

func mergeSamples(out *MergedOutput, samples subclient.SampleResult, knownTids map[string]bool) {
	// Deterministic key order keeps output stable across runs even
	// though map iteration order is not.
	keys := make([]string, 0, len(samples))
	for k := range samples {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, pidTid := range keys {
		entry := samples[pidTid]

		if !knownTids[pidTid] {
			out.Metadata.ThreadTree = append(out.Metadata.ThreadTree, ThreadEntry{
				Identifier: pidTid,
				Parent:     nil,
				Tag:        [4]any{"?", pidTid, -1, -1},
			})
			knownTids[pidTid] = true
		}

		out.Metadata.SampledTimes[pidTid] += entry.SampledTime

		for _, r := range entry.OffCPURegions {
			out.Metadata.OffCPURegions[pidTid] = append(out.Metadata.OffCPURegions[pidTid], [2]uint64{r.Start, r.Duration})
		}
		// first_time is intentionally discarded per spec.md §4.3.

		dst, ok := out.PerPidTid[pidTid]
		if !ok {
			dst = make(jsonvalue.Map)
			out.PerPidTid[pidTid] = dst
		}
		for field, val := range entry.Extra {
			dst[field] = val
		}
	}
}

// rebase subtracts epoch from every off-CPU region's start timestamp.
// The protocol contract guarantees epoch <= every observed timestamp, so
// the subtraction never underflows despite being unsigned.
func rebase(out *MergedOutput, epoch uint64) {
	for pidTid, regions := range out.Metadata.OffCPURegions {
		for i, r := range regions {
			regions[i][0] = r[0] - epoch
		}
		out.Metadata.OffCPURegions[pidTid] = regions
	}
}

// Write persists metadata.json and each <pid_tid>.json under dir
// (processed/), each as a single JSON line terminated by \n.
func (m *MergedOutput) Write(dir string) error {
	if err := writeJSONLine(filepath.Join(dir, "metadata.json"), m.Metadata); err != nil {
		return err
	}

	for pidTid, fields := range m.PerPidTid {
		name := sanitizePidTidFilename(pidTid) + ".json"
		if err := writeJSONLine(filepath.Join(dir, name), fields); err != nil {
			return err
		}
	}
	return nil
}

func sanitizePidTidFilename(pidTid string) string {
	out := make([]byte, len(pidTid))
	for i := 0; i < len(pidTid); i++ {
		if pidTid[i] == '/' {
			out[i] = '_'
		} else {
			out[i] = pidTid[i]
		}
	}
	return string(out)
}

func writeJSONLine(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", path, err)
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}
