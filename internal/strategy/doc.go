// Package strategy defines the rotation strategy interface and implements
// the available algorithms:
//
//   - Round Robin: cyclic traversal in insertion order (the default)
//   - Random: uniform stateless pick
//   - Weighted: smooth weighted round-robin, weighted by recent success rate
//
// Strategies are agnostic of endpoint health; the rotation selector filters
// candidates before a strategy sees them.
package strategy
