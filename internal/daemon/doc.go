// Package daemon ties the long-running pieces together: the reassembly
// orchestrator, the job history store, the HTTP API server, and a periodic
// sweep of abandoned staging directories, under flock-based locking so only
// one daemon instance runs per machine.
package daemon
