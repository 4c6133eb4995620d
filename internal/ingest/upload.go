// Copyright Adaptyst Project Authors. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adaptyst-project/adaptyst-go/internal/errs"
)

// fileBufferSize answers spec.md §9's FILE_BUFFER_SIZE Open Question:
// fixed at 64 KiB, satisfying the "tunable >= 4 KiB" note.
const fileBufferSize = 64 * 1024

const codePathsManifest = "code_paths.lst"

// runUploadPhase implements the AwaitFiles state: spec.md §4.3's
// file-upload subphase.
func (c *Client) runUploadPhase() error {
	c.state = AwaitFiles

	if err := c.Control.WriteLine("out_files"); err != nil {
		return errs.Connection(err)
	}
	if err := c.Control.WriteLine(fmt.Sprintf("%s %s", c.FileAcceptor.Kind(), c.FileAcceptor.DialInstructions())); err != nil {
		return errs.Connection(err)
	}

	var codePaths []string

	for {
		line, err := c.Control.ReadLine()
		if err != nil {
			return errs.Connection(err)
		}

		if line == "<STOP>" {
			break
		}

		dest, name, ok := parseUploadLine(line)
		if !ok {
			if werr := c.Control.WriteLine("error_wrong_file_format"); werr != nil {
				return errs.Connection(werr)
			}
			continue
		}

		if name == codePathsManifest {
			paths, err := c.receiveCodePaths()
			if err != nil {
				if werr := c.Control.WriteLine("error_out_file"); werr != nil {
					return errs.Connection(werr)
				}
				continue
			}
			codePaths = append(codePaths, paths...)
			if werr := c.Control.WriteLine("out_file_ok"); werr != nil {
				return errs.Connection(werr)
			}
			continue
		}

		if err := c.receiveFile(dest, name); err != nil {
			frame := "error_out_file"
			var timeoutErr *errs.TimeoutError
			if asTimeout(err, &timeoutErr) {
				frame = "error_out_file_timeout"
			}
			if werr := c.Control.WriteLine(frame); werr != nil {
				return errs.Connection(werr)
			}
			continue
		}

		if werr := c.Control.WriteLine("out_file_ok"); werr != nil {
			return errs.Connection(werr)
		}
	}

	if len(codePaths) > 0 {
		dest := filepath.Join(c.WorkingDir, c.resultDir, "processed", "src.zip")
		if err := c.Archiver.Archive(codePaths, dest); err != nil {
			c.Logger.Error(err, "failed to archive source paths")
		}
	}

	return nil
}

func asTimeout(err error, target **errs.TimeoutError) bool {
	if te, ok := err.(*errs.TimeoutError); ok {
		*target = te
		return true
	}
	return false
}

// parseUploadLine implements the destination-selector grammar: first
// byte o/p, second byte a space, remainder a basename-only file name.
func parseUploadLine(line string) (dest, name string, ok bool) {
	if len(line) < 3 || line[1] != ' ' {
		return "", "", false
	}
	switch line[0] {
	case 'o':
		dest = "out"
	case 'p':
		dest = "processed"
	default:
		return "", "", false
	}

	name = line[2:]
	if name == "" || strings.ContainsAny(name, "/\\") {
		return "", "", false
	}
	return dest, name, true
}

func (c *Client) receiveFile(dest, name string) error {
	conn, err := c.FileAcceptor.Accept(0, c.FileTimeout)
	if err != nil {
		return err
	}
	defer conn.Close()

	path := filepath.Join(c.WorkingDir, c.resultDir, dest, name)
	f, err := os.Create(path)
	if err != nil {
		return errs.Connection(err)
	}
	defer f.Close()

	buf := make([]byte, fileBufferSize)
	for {
		n, err := conn.ReadBytes(buf, c.FileTimeout)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				return errs.Connection(werr)
			}
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
	}
}

// receiveCodePaths reads the code_paths.lst manifest in-band as
// newline-framed paths, terminated by an empty line (not EOF), per
// SPEC_FULL.md's supplemented "code_paths.lst in-band archive trigger"
// feature.
func (c *Client) receiveCodePaths() ([]string, error) {
	conn, err := c.FileAcceptor.Accept(0, c.FileTimeout)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	seen := make(map[string]bool)
	var paths []string
	for {
		line, err := conn.ReadLineTimeout(c.FileTimeout)
		if err != nil {
			return nil, err
		}
		if line == "" {
			break
		}
		abs, err := filepath.Abs(line)
		if err != nil {
			continue
		}
		if !seen[abs] {
			seen[abs] = true
			paths = append(paths, abs)
		}
	}
	return paths, nil
}
