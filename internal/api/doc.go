// Package api exposes the daemon's HTTP boundary: session discovery and
// metadata editing, reassembly job control, and cursor-paged progress event
// polling. All responses are JSON; authentication is an optional bearer
// token shared by every endpoint.
package api
