// Package registry maintains the durable set of upstream endpoints.
//
// State is a JSON document keyed by region, written atomically
// (temp file + rename) with an optional .bak copy of the previous version.
// A corrupt primary falls back to the backup, then to an empty registry;
// persistence failures are soft and never crash the caller.
//
// The optional Watcher reloads the registry when an external process
// rewrites the state file.
package registry
