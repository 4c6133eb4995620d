// Copyright Adaptyst Project Authors. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package config

import (
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/adaptyst-project/adaptyst-go/internal/errs"
	"github.com/adaptyst-project/adaptyst-go/internal/filter"
	"github.com/adaptyst-project/adaptyst-go/internal/session"
	"github.com/google/shlex"
)

// BuildSessionConfig turns the registered CLI Flags, the positional
// arguments left after flag.Parse(), and the loaded config Table into a
// SessionConfig. It does not call Validate; the caller does that once,
// per spec.md §4.5 step 1.
func BuildSessionConfig(table Table, positional []string) (*session.SessionConfig, error) {
	cfg := &session.SessionConfig{
		Freq:          Flags.Freq,
		Buffer:        Flags.Buffer,
		OffCPUFreq:    Flags.OffCPUFreq,
		OffCPUBuffer:  Flags.OffCPUBuffer,
		PostProcess:   Flags.PostProcess,
		Mode:          session.CaptureMode(Flags.Mode),
		WarmupSeconds: Flags.Warmup,
		RemoteAddress: Flags.Address,
		ServerBuffer:  Flags.ServerBuffer,
		Roofline:      Flags.Roofline,
		Quiet:         Flags.Quiet,
	}

	if path, ok := table["perf_path"]; ok {
		cfg.PerfPath = path
	}
	cfg.CarmToolPath = table["carm_tool_path"]
	cfg.RooflineBenchPath = table["roofline_benchmark_path"]

	events, err := parseExtraEvents(Flags.Events)
	if err != nil {
		return nil, err
	}
	cfg.ExtraEvents = events

	filterSpec, err := parseFilterSpec(Flags.Filter, Flags.Mark)
	if err != nil {
		return nil, err
	}
	cfg.Filter = filterSpec

	codesDst, err := parseCodesDst(Flags.Codes)
	if err != nil {
		return nil, err
	}
	cfg.CodesDst = codesDst

	command, err := parseCommand(positional)
	if err != nil {
		return nil, err
	}
	cfg.Command = command

	return cfg, nil
}

// parseExtraEvents parses repeated -e/--event EVENT,PERIOD,TITLE flags.
func parseExtraEvents(raw []string) ([]session.ExtraEvent, error) {
	events := make([]session.ExtraEvent, 0, len(raw))
	for _, s := range raw {
		parts := strings.SplitN(s, ",", 3)
		if len(parts) != 3 {
			return nil, errs.User("-e/--event %q must be EVENT,PERIOD,TITLE", s)
		}
		period, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil || period < 1 {
			return nil, errs.User("-e/--event %q: period must be an integer >= 1", s)
		}
		events = append(events, session.ExtraEvent{Name: parts[0], Period: period, Title: parts[2]})
	}
	return events, nil
}

// parseFilterSpec parses -i/--filter (deny|allow|python):<path>.
func parseFilterSpec(raw string, mark bool) (session.FilterSpec, error) {
	if raw == "" {
		return session.FilterSpec{Kind: session.FilterNone, Mark: mark}, nil
	}

	parts := strings.SplitN(raw, ":", 2)
	if len(parts) != 2 {
		return session.FilterSpec{}, errs.User("-i/--filter %q must be (deny|allow|python):<path>", raw)
	}
	kindStr, path := parts[0], parts[1]

	switch kindStr {
	case "allow", "deny":
		pattern, err := loadFilterPattern(path)
		if err != nil {
			return session.FilterSpec{}, err
		}
		return session.FilterSpec{
			Kind:    session.FilterKind(kindStr),
			Pattern: pattern,
			Mark:    mark,
		}, nil

	case "python":
		if path == "-" {
			return session.FilterSpec{}, errs.User("-i python:- is not permitted; python filters must be a real file path")
		}
		return session.FilterSpec{Kind: session.FilterScript, ScriptPath: path, Mark: mark}, nil

	default:
		return session.FilterSpec{}, errs.User("-i/--filter: unknown kind %q, want deny|allow|python", kindStr)
	}
}

func loadFilterPattern(path string) (filter.Pattern, error) {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, errs.User("-i/--filter: cannot open %q: %v", path, err)
		}
		defer f.Close()
		r = f
	}

	pattern, err := filter.Parse(r)
	if err != nil {
		return nil, errs.User("-i/--filter: %v", err)
	}
	return pattern, nil
}

// parseCodesDst parses -c/--codes TYPE[:ARG].
func parseCodesDst(raw string) (session.CodesDst, error) {
	if raw == "" {
		return session.CodesDst{Kind: session.CodesBundleHere}, nil
	}

	typ, arg, hasArg := strings.Cut(raw, ":")
	switch typ {
	case "srv":
		return session.CodesDst{Kind: session.CodesSendToServer}, nil
	case "file":
		if !hasArg || arg == "" {
			return session.CodesDst{}, errs.User("-c file:<path> requires a path")
		}
		return session.CodesDst{Kind: session.CodesWriteToFile, Path: arg}, nil
	case "fd":
		if !hasArg {
			return session.CodesDst{}, errs.User("-c fd:<n> requires a file descriptor number")
		}
		n, err := strconv.Atoi(arg)
		if err != nil {
			return session.CodesDst{}, errs.User("-c fd:%q: not an integer", arg)
		}
		return session.CodesDst{Kind: session.CodesWriteToFD, FD: n}, nil
	default:
		return session.CodesDst{}, errs.User("-c/--codes: unknown type %q, want srv|file:<path>|fd:<n>", typ)
	}
}

// parseCommand resolves spec.md §6's COMMAND… surface: positional is
// either the pre-split argv following "--", or, when exactly one
// argument remains, a single string parsed with shell-like splitting
// rules (whitespace, quoting).
func parseCommand(positional []string) ([]string, error) {
	if len(positional) == 0 {
		return nil, errs.User("a command to profile is required")
	}
	if len(positional) > 1 {
		return positional, nil
	}

	words, err := shlex.Split(positional[0])
	if err != nil {
		return nil, errs.User("cannot parse command string %q: %v", positional[0], err)
	}
	if len(words) == 0 {
		return nil, errs.User("a command to profile is required")
	}
	return words, nil
}
