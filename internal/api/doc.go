// Package api defines the transport-facing job representations and the
// read service that produces them. The daemon's HTTP server and the CLI
// both consume these types, so queue internals never leak onto the wire.
package api
