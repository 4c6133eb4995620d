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
)

// TreeParser implements RecordParser for the thread-tree probe, whose
// child wrapper (adapted from adaptyst-syscall-process.py's syscall
// post-processing) emits one record per observed process/thread spawn,
// exit, and callchain.
//
// Grammar, one record per line:
//
//	proc <pid> <ppid> <comm> <start_ns>   new process/thread observed
//	exit <pid> <end_ns>                   thread exited
//	chain <chain_id> <frame>|<frame>|...  callchain, root frame first
type TreeParser struct {
	order      []int
	meta       map[int]ThreadMeta
	callchains map[string][]string
}

func NewTreeParser() *TreeParser {
	return &TreeParser{
		meta:       make(map[int]ThreadMeta),
		callchains: make(map[string][]string),
	}
}

func (p *TreeParser) ParseLine(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	switch fields[0] {
	case "proc":
		return p.parseProc(fields)
	case "exit":
		return p.parseExit(fields)
	case "chain":
		return p.parseChain(line, fields)
	default:
		return errs.Protocol("thread-tree record: unknown record type %q", fields[0])
	}
}

func (p *TreeParser) parseProc(fields []string) error {
	if len(fields) != 5 {
		return errs.Protocol("thread-tree record: malformed proc record %q", strings.Join(fields, " "))
	}

	pid, err := strconv.Atoi(fields[1])
	if err != nil {
		return errs.Protocol("thread-tree record: invalid pid %q", fields[1])
	}
	ppid, err := strconv.Atoi(fields[2])
	if err != nil {
		return errs.Protocol("thread-tree record: invalid ppid %q", fields[2])
	}
	comm := fields[3]
	startTime, err := strconv.ParseInt(fields[4], 10, 64)
	if err != nil {
		return errs.Protocol("thread-tree record: invalid start time %q", fields[4])
	}

	var parent *int
	if ppid > 0 {
		v := ppid
		parent = &v
	}

	if _, exists := p.meta[pid]; !exists {
		p.order = append(p.order, pid)
	}
	p.meta[pid] = ThreadMeta{
		Parent: parent,
		Tag: ThreadTag{
			Command:   comm,
			PidTid:    pidTidKey(ppid, pid),
			StartTime: startTime,
			EndTime:   -1,
		},
	}
	return nil
}

func (p *TreeParser) parseExit(fields []string) error {
	if len(fields) != 3 {
		return errs.Protocol("thread-tree record: malformed exit record %q", strings.Join(fields, " "))
	}

	pid, err := strconv.Atoi(fields[1])
	if err != nil {
		return errs.Protocol("thread-tree record: invalid pid %q", fields[1])
	}
	endTime, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return errs.Protocol("thread-tree record: invalid end time %q", fields[2])
	}

	meta, ok := p.meta[pid]
	if !ok {
		return errs.Protocol("thread-tree record: exit for unknown pid %d", pid)
	}
	meta.Tag.EndTime = endTime
	p.meta[pid] = meta
	return nil
}

func (p *TreeParser) parseChain(line string, fields []string) error {
	if len(fields) < 2 {
		return errs.Protocol("thread-tree record: malformed chain record %q", line)
	}
	chainID := fields[1]
	rest := strings.TrimPrefix(line, "chain "+chainID)
	rest = strings.TrimPrefix(rest, " ")

	if _, dup := p.callchains[chainID]; dup {
		return errs.Protocol("thread-tree record: duplicate chain id %q from one subclient", chainID)
	}

	var frames []string
	if rest != "" {
		frames = strings.Split(rest, "|")
	}
	p.callchains[chainID] = frames
	return nil
}

func (p *TreeParser) Finish() (*Result, error) {
	return &Result{
		Tree: &ThreadTreeResult{
			TIDs:       p.order,
			Meta:       p.meta,
			Callchains: p.callchains,
		},
	}, nil
}

func pidTidKey(pid, tid int) string {
	return strconv.Itoa(pid) + "/" + strconv.Itoa(tid)
}
