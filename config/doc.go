// Package config handles loading and parsing of configuration from YAML
// files and environment variables. It covers the proxy listener address,
// forwarding timeout and connection pool, rotation strategy, circuit
// breaker thresholds, registry state file settings and logging.
package config
