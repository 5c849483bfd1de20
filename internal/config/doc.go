// Package config loads, normalizes, and validates dubflow configuration
// from TOML files with environment overrides for secrets.
package config
