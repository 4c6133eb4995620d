// Copyright Adaptyst Project Authors. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package probe

import (
	"bufio"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/adaptyst-project/adaptyst-go/internal/errs"
	"github.com/go-logr/logr"
)

// DetectVendor reads /proc/cpuinfo's vendor_id, the same signal
// __builtin_cpu_is("intel")/("amd") resolves to on x86. No third-party
// package in the retrieved corpus exposes CPU vendor identity (x/sys/cpu
// exposes feature bits, not vendor strings), so this one read is done
// directly against the stdlib.
func DetectVendor() (Vendor, error) {
	f, err := os.Open("/proc/cpuinfo")
	if err != nil {
		return VendorUnknown, errs.Env(err, "reading /proc/cpuinfo")
	}
	defer f.Close()

	return parseVendor(f), nil
}

func parseVendor(r io.Reader) Vendor {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "vendor_id") {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		switch strings.TrimSpace(parts[1]) {
		case "GenuineIntel":
			return VendorIntel
		case "AuthenticAMD":
			return VendorAMD
		default:
			return VendorUnknown
		}
	}
	return VendorUnknown
}

// RooflineBenchmarkResolver obtains the CARM roofline CSV path to feed
// the downstream visualization pipeline: either the one already
// configured, or a freshly generated one from the external CARM tool,
// per SPEC_FULL.md's "Roofline benchmark auto-run" supplemented feature.
type RooflineBenchmarkResolver struct {
	CarmToolPath      string
	RooflineBenchPath string
	Logger            logr.Logger
}

// Resolve returns a roofline.csv path, running the CARM tool if none was
// pre-configured. The CSV path, if freshly generated, is the caller's
// responsibility to persist back into the local config file.
func (r *RooflineBenchmarkResolver) Resolve(tmpDir string) (string, error) {
	if r.RooflineBenchPath != "" {
		if _, err := os.Stat(r.RooflineBenchPath); err != nil {
			return "", errs.Env(err, "roofline_benchmark_path %q does not exist", r.RooflineBenchPath)
		}
		return r.RooflineBenchPath, nil
	}

	if r.CarmToolPath == "" {
		return "", errs.Env(nil, "roofline requested but neither roofline_benchmark_path nor carm_tool_path is configured")
	}

	r.Logger.Info("no roofline benchmark results configured, running the CARM tool (this may take a while)")

	outDir := filepath.Join(tmpDir, "roofline")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", errs.Env(err, "creating roofline output directory")
	}

	cmd := exec.Command("python3", filepath.Join(r.CarmToolPath, "run.py"), "-out", outDir)
	if out, err := cmd.CombinedOutput(); err != nil {
		r.Logger.Error(err, "CARM tool failed", "output", string(out))
		return "", errs.Tool("carm_tool", exitCodeOf(err))
	}

	csv := filepath.Join(outDir, "unnamed_roofline.csv")
	if _, err := os.Stat(csv); err != nil {
		return "", errs.Env(err, "CARM tool did not produce %s", csv)
	}
	return csv, nil
}

func exitCodeOf(err error) int {
	if ee, ok := err.(*exec.ExitError); ok {
		return ee.ExitCode()
	}
	return -1
}
