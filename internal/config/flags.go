// Copyright Adaptyst Project Authors. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package config

import "flag"

// Flags holds every registered CLI flag's destination, short/long pairs
// bound to the same variable, one init() per concern following
// internal/intake/flags.go's per-package registration style.
var Flags struct {
	Freq         uint64
	Buffer       uint64
	OffCPUFreq   int64
	OffCPUBuffer uint64
	PostProcess  uint
	Address      string
	Codes        string
	ServerBuffer uint64
	Warmup       uint
	Events       stringList
	Roofline     uint
	Filter       string
	Mark         bool
	Mode         string
	Quiet        bool
	Verbose      bool
	Version      bool
}

// stringList implements flag.Value to collect a repeatable flag
// (-e/--event) into a slice, the same way a teacher CLI would add a
// custom flag.Value for a multi-occurrence option.
type stringList []string

func (l *stringList) String() string { return "" }
func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func init() {
	flag.Uint64Var(&Flags.Freq, "F", 10, "On-CPU sampling frequency in Hz")
	flag.Uint64Var(&Flags.Freq, "freq", 10, "On-CPU sampling frequency in Hz")

	flag.Uint64Var(&Flags.Buffer, "B", 1, "Event buffer depth (1 = no buffering)")
	flag.Uint64Var(&Flags.Buffer, "buffer", 1, "Event buffer depth (1 = no buffering)")

	flag.Int64Var(&Flags.OffCPUFreq, "f", 0, "Off-CPU sampling frequency (0 disables, -1 captures all)")
	flag.Int64Var(&Flags.OffCPUFreq, "off-cpu-freq", 0, "Off-CPU sampling frequency (0 disables, -1 captures all)")

	flag.Uint64Var(&Flags.OffCPUBuffer, "b", 0, "Off-CPU buffer depth (0 = adaptive)")
	flag.Uint64Var(&Flags.OffCPUBuffer, "off-cpu-buffer", 0, "Off-CPU buffer depth (0 = adaptive)")

	flag.UintVar(&Flags.PostProcess, "p", 0, "Post-processing thread count")
	flag.UintVar(&Flags.PostProcess, "post-process", 0, "Post-processing thread count")

	flag.UintVar(&Flags.Warmup, "w", 1, "Warmup period in seconds before the profiled command starts")
	flag.UintVar(&Flags.Warmup, "warmup", 1, "Warmup period in seconds before the profiled command starts")

	flag.StringVar(&Flags.Mode, "m", "user", "Capture mode: kernel|user|both")
	flag.StringVar(&Flags.Mode, "mode", "user", "Capture mode: kernel|user|both")

	flag.BoolVar(&Flags.Quiet, "q", false, "Suppress informational output")
	flag.BoolVar(&Flags.Quiet, "quiet", false, "Suppress informational output")

	flag.BoolVar(&Flags.Verbose, "verbose", false, "Enable verbose (development) logging")

	flag.BoolVar(&Flags.Version, "v", false, "Print version and exit")
	flag.BoolVar(&Flags.Version, "version", false, "Print version and exit")

	flag.Var(&Flags.Events, "e", "Extra event as EVENT,PERIOD,TITLE (repeatable)")
	flag.Var(&Flags.Events, "event", "Extra event as EVENT,PERIOD,TITLE (repeatable)")
}

func init() {
	flag.StringVar(&Flags.Address, "a", "", "Remote ingest server address, HOST:PORT")
	flag.StringVar(&Flags.Address, "address", "", "Remote ingest server address, HOST:PORT")

	flag.StringVar(&Flags.Codes, "c", "", "Source-code destination: srv | file:<path> | fd:<n>")
	flag.StringVar(&Flags.Codes, "codes", "", "Source-code destination: srv | file:<path> | fd:<n>")

	flag.Uint64Var(&Flags.ServerBuffer, "s", 0, "Local ingest server buffer size (mutually exclusive with -a)")
	flag.Uint64Var(&Flags.ServerBuffer, "server-buffer", 0, "Local ingest server buffer size (mutually exclusive with -a)")
}

func init() {
	flag.UintVar(&Flags.Roofline, "r", 0, "Run cache-aware roofline profiling at the given frequency (x86 only)")
	flag.UintVar(&Flags.Roofline, "roofline", 0, "Run cache-aware roofline profiling at the given frequency (x86 only)")
}

func init() {
	flag.StringVar(&Flags.Filter, "i", "", "Stack filter: (deny|allow|python):<path> ('-' for stdin, forbidden for python)")
	flag.StringVar(&Flags.Filter, "filter", "", "Stack filter: (deny|allow|python):<path> ('-' for stdin, forbidden for python)")

	flag.BoolVar(&Flags.Mark, "k", false, "Annotate filtered frames instead of dropping them (requires -i)")
	flag.BoolVar(&Flags.Mark, "mark", false, "Annotate filtered frames instead of dropping them (requires -i)")
}
