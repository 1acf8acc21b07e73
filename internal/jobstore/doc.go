// Package jobstore persists reassembly job history in SQLite. Running jobs
// are recorded when launched and updated as they progress, so job state
// survives daemon restarts and the CLI can show past runs.
package jobstore
