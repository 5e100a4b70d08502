package circuitbreaker

import (
	"sync"
	"time"
)

type State int

const (
	StateClosed   State = iota // normal operation
	StateOpen                  // rejecting, endpoint excluded
	StateHalfOpen              // one trial call allowed
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF-OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreaker tracks consecutive failures for a single endpoint.
//
// closed -> open after failureThreshold consecutive failures;
// open -> half-open once recoveryTimeout has elapsed since the last failure;
// half-open admits exactly one in-flight trial: success closes the circuit
// and resets the count, failure reopens it and restarts the recovery timer.
// A trial that ends without a verdict must be returned via ReleaseTrial,
// which also reopens the circuit.
type CircuitBreaker struct {
	mutex            sync.Mutex
	state            State
	failures         int
	lastFailure      time.Time
	trialInFlight    bool
	failureThreshold int
	recoveryTimeout  time.Duration
}

func NewCircuitBreaker(threshold int, timeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		state:            StateClosed,
		failureThreshold: threshold,
		recoveryTimeout:  timeout,
	}
}

// Allow reports whether a call may proceed, claiming the half-open trial
// slot when the recovery timeout has elapsed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(cb.lastFailure) >= cb.recoveryTimeout {
			cb.state = StateHalfOpen
			cb.trialInFlight = true
			return true
		}
		return false
	case StateHalfOpen:
		if cb.trialInFlight {
			return false
		}
		cb.trialInFlight = true
		return true
	default:
		return true
	}
}

// RecordFailure counts a failed call. The count only advances in the closed
// and half-open states; a half-open failure reopens the circuit and restarts
// the recovery timer.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failures++
		cb.lastFailure = time.Now()
		if cb.failures >= cb.failureThreshold {
			cb.state = StateOpen
		}
	case StateHalfOpen:
		cb.failures++
		cb.lastFailure = time.Now()
		cb.state = StateOpen
		cb.trialInFlight = false
	case StateOpen:
		// Calls are rejected while open; nothing to count.
	}
}

// ReleaseTrial resolves an admitted half-open trial that produced no
// verdict on the endpoint (timeout, caller cancellation). The circuit
// reopens and the recovery timer restarts; a claimed trial slot must never
// outlive its call, or the breaker rejects everything forever. Closed and
// open states are unaffected.
func (cb *CircuitBreaker) ReleaseTrial() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if cb.state == StateHalfOpen && cb.trialInFlight {
		cb.state = StateOpen
		cb.lastFailure = time.Now()
		cb.trialInFlight = false
	}
}

// RecordSuccess closes the circuit and resets the failure count.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.failures = 0
	cb.state = StateClosed
	cb.trialInFlight = false
}

// Reset is an explicit operator reset, equivalent to a recorded success.
func (cb *CircuitBreaker) Reset() {
	cb.RecordSuccess()
}

func (cb *CircuitBreaker) State() State {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) Failures() int {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.failures
}
