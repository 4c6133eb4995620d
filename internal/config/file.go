// Copyright Adaptyst Project Authors. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

// Package config loads the tool paths key=value config file of
// spec.md §6 and registers the CLI flag surface of spec.md §6's flag
// table.
package config

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/adaptyst-project/adaptyst-go/internal/errs"
	"github.com/go-logr/logr"
)

// Table is the parsed key=value config file contents.
type Table map[string]string

// entryRe matches one config line: key, optional surrounding whitespace
// around '=', then the rest of the line verbatim as the value. A bare
// key with no '=' does not match and is a fatal syntax error, per
// entrypoint.cpp's read_config lambda.
var entryRe = regexp.MustCompile(`^(\S+)\s*=\s*(.+)$`)

// Load parses one config file. Comments (#) and blank lines are
// skipped before the regex check; anything else that fails to match is
// a fatal syntax error.
func Load(path string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	table := make(Table)
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		m := entryRe.FindStringSubmatch(line)
		if m == nil {
			return nil, fmt.Errorf("%s:%d: malformed config line %q", path, lineNo, line)
		}
		table[m[1]] = m[2]
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	return table, nil
}

// LoadLayered reads the system config file, then the local config file,
// with later entries overriding earlier ones. A missing file is logged
// and treated as empty, per spec.md §7's "per-config-file missing"
// local-recovery rule; a malformed file is fatal.
func LoadLayered(systemPath, localPath string, logger logr.Logger) (Table, error) {
	merged := make(Table)

	for _, path := range []string{systemPath, localPath} {
		if path == "" {
			continue
		}

		table, err := Load(path)
		if err != nil {
			if os.IsNotExist(err) {
				logger.V(1).Info("config file not found, continuing with empty table", "path", path)
				continue
			}
			return nil, err
		}
		for k, v := range table {
			merged[k] = v
		}
	}

	return merged, nil
}

// RequirePerfPath validates the one config key spec.md §6 marks
// required: perf_path, a directory containing bin/perf and
// libexec/perf-core/scripts/python/.../Trace.
func (t Table) RequirePerfPath() (string, error) {
	path, ok := t["perf_path"]
	if !ok || path == "" {
		return "", errs.Env(nil, "perf_path is required in the config file")
	}
	return path, nil
}
