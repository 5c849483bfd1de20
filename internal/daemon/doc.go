// Package daemon hosts the long-running dubflow process: it enforces
// single-instance execution with a file lock, runs the workflow manager,
// and serves the HTTP API the CLI talks to.
package daemon
