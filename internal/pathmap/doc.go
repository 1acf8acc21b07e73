// Package pathmap translates paths between native, Windows drive, and
// WSL-mounted forms, and locates the python environment and assembly engine
// executables. All translation functions are pure and idempotent on
// already-canonical input.
package pathmap
