// Package config handles loading and parsing of configuration from YAML files
// and environment variables. It defines the application configuration
// structure including server settings, logging, registry-wide breaker
// defaults, and per-dependency breaker overrides.
package config
