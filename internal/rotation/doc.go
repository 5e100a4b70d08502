// Package rotation selects the next usable upstream endpoint for a request,
// filtering the registry's active set through the circuit breakers before
// applying the configured strategy.
package rotation
