// Package progress turns the assembly engine's unstructured, high-frequency
// console output into a monotonic, phase-tagged, rate-limited event stream.
//
// The engine's output format is an unversioned wire format subject to silent
// drift: every classifier here is tested against literal captured sample
// lines, and a line matching no known pattern is never an error.
package progress
