package circuitbreaker

import (
	"sync"
	"time"
)

// Registry holds one breaker per endpoint ID, created lazily on first use.
// Each breaker has its own lock so unrelated endpoints never contend.
type Registry struct {
	mutex     sync.RWMutex
	breakers  map[string]*CircuitBreaker
	threshold int
	timeout   time.Duration
}

func NewRegistry(threshold int, timeout time.Duration) *Registry {
	return &Registry{
		breakers:  make(map[string]*CircuitBreaker),
		threshold: threshold,
		timeout:   timeout,
	}
}

// Breaker returns the breaker for an endpoint ID, creating it if needed.
func (r *Registry) Breaker(endpointID string) *CircuitBreaker {
	r.mutex.RLock()
	cb, exists := r.breakers[endpointID]
	r.mutex.RUnlock()

	if exists {
		return cb
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	// Double-check: another goroutine may have created it
	if cb, exists = r.breakers[endpointID]; exists {
		return cb
	}

	cb = NewCircuitBreaker(r.threshold, r.timeout)
	r.breakers[endpointID] = cb
	return cb
}

// IsAvailable reports whether the endpoint may receive a call, claiming the
// half-open trial slot when one is due.
func (r *Registry) IsAvailable(endpointID string) bool {
	return r.Breaker(endpointID).Allow()
}

// ReleaseTrial resolves the endpoint's half-open trial without a verdict.
func (r *Registry) ReleaseTrial(endpointID string) {
	r.Breaker(endpointID).ReleaseTrial()
}

// RecordSuccess closes the endpoint's circuit.
func (r *Registry) RecordSuccess(endpointID string) {
	r.Breaker(endpointID).RecordSuccess()
}

// RecordFailure counts a failure against the endpoint's circuit.
func (r *Registry) RecordFailure(endpointID string) {
	r.Breaker(endpointID).RecordFailure()
}

// Reset discards all breaker state.
func (r *Registry) Reset() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.breakers = make(map[string]*CircuitBreaker)
}

// States returns a point-in-time view of every breaker, for the management
// layer.
func (r *Registry) States() map[string]State {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	states := make(map[string]State, len(r.breakers))
	for id, cb := range r.breakers {
		states[id] = cb.State()
	}
	return states
}
