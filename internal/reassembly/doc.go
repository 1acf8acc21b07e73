// Package reassembly owns the lifecycle of audiobook reassembly jobs: it
// prepares staging, launches the external assembly engine, routes its output
// through the progress parser, and commits finished artifacts atomically into
// the output directory. Jobs are tracked in an explicit registry keyed by job
// id; registry membership is the single source of truth for whether a job is
// live, which makes cancel/complete races safe to resolve.
package reassembly
