// Package preflight validates the environment before the daemon accepts
// work: directory permissions, local tool availability, and external
// service reachability.
package preflight
