// Copyright Adaptyst Project Authors. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package subclient

// RecordParser is the probe-dependent grammar plugged into a Subclient.
// One implementation exists per EventKind: parser_tree.go for the
// syscall-derived thread-tree probe, parser_sample.go for the on/off-CPU
// and named-hardware-event sample probes.
type RecordParser interface {
	// ParseLine consumes one line already stripped of its trailing '\n'.
	// It returns a ProtocolError-wrapped error on malformed input.
	ParseLine(line string) error

	// Finish returns the accumulated Result. Called once, after the
	// subclient's connection has reached clean EOF or <STOP>.
	Finish() (*Result, error)
}
