// Package retry provides an explicit retry policy with exponential backoff
// and jitter, applied as a wrapping call around any fallible operation.
package retry
