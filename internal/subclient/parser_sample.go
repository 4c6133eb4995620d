// Copyright Adaptyst Project Authors. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package subclient

import (
	"strconv"
	"strings"

	"github.com/adaptyst-project/adaptyst-go/internal/errs"
	"github.com/adaptyst-project/adaptyst-go/internal/jsonvalue"
)

// SampleParser implements RecordParser for the on/off-CPU probe and for
// named hardware-event probes. Both share one grammar; the difference is
// only which fields appear.
//
// Grammar, one record per line, all keyed by "pid/tid":
//
//	<pid_tid> sampled_time <u64>              accumulate on-CPU sample count/time
//	<pid_tid> offcpu <start_ns> <duration_ns> append an off-CPU region
//	<pid_tid> first_time <u64>                set once, first occurrence wins
//	<pid_tid> <field> <value>                 anything else: event-specific counter
type SampleParser struct {
	entries map[string]*SampleEntry
}

func NewSampleParser() *SampleParser {
	return &SampleParser{entries: make(map[string]*SampleEntry)}
}

func (p *SampleParser) entry(pidTid string) *SampleEntry {
	e, ok := p.entries[pidTid]
	if !ok {
		e = &SampleEntry{Extra: make(jsonvalue.Map)}
		p.entries[pidTid] = e
	}
	return e
}

func (p *SampleParser) ParseLine(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	if len(fields) < 2 {
		return errs.Protocol("sample record: malformed record %q", line)
	}

	pidTid := fields[0]
	field := fields[1]
	e := p.entry(pidTid)

	switch field {
	case "sampled_time":
		if len(fields) != 3 {
			return errs.Protocol("sample record: malformed sampled_time record %q", line)
		}
		v, err := strconv.ParseUint(fields[2], 10, 64)
		if err != nil {
			return errs.Protocol("sample record: invalid sampled_time %q", fields[2])
		}
		e.SampledTime += v

	case "offcpu":
		if len(fields) != 4 {
			return errs.Protocol("sample record: malformed offcpu record %q", line)
		}
		start, err := strconv.ParseUint(fields[2], 10, 64)
		if err != nil {
			return errs.Protocol("sample record: invalid offcpu start %q", fields[2])
		}
		dur, err := strconv.ParseUint(fields[3], 10, 64)
		if err != nil {
			return errs.Protocol("sample record: invalid offcpu duration %q", fields[3])
		}
		e.OffCPURegions = append(e.OffCPURegions, OffCPURegion{Start: start, Duration: dur})

	case "first_time":
		if len(fields) != 3 {
			return errs.Protocol("sample record: malformed first_time record %q", line)
		}
		v, err := strconv.ParseUint(fields[2], 10, 64)
		if err != nil {
			return errs.Protocol("sample record: invalid first_time %q", fields[2])
		}
		if e.FirstTime == 0 {
			e.FirstTime = v
		}

	default:
		if len(fields) < 3 {
			return errs.Protocol("sample record: malformed event field record %q", line)
		}
		value := strings.Join(fields[2:], " ")
		if err := e.Extra.Set(field, value); err != nil {
			return errs.Protocol("sample record: cannot store field %q: %v", field, err)
		}
	}

	return nil
}

func (p *SampleParser) Finish() (*Result, error) {
	return &Result{Samples: p.entries}, nil
}
