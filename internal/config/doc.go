// Package config loads and validates YAML configuration for the relay daemon
// and feed clients.
//
// Config files may reference environment variables with ${VAR} syntax; they
// are expanded before parsing. Zero values are replaced by the Default*
// constants, so a minimal file only needs the required identity and endpoint
// fields.
package config
