// Package services holds cross-cutting helpers shared by the reassembly
// pipeline: the error classification taxonomy and context annotations for
// correlating log lines with jobs and sessions.
package services
