// Package healthcheck implements an optional active prober that exercises
// each registered endpoint on an interval and reports results to the
// circuit breakers.
package healthcheck
