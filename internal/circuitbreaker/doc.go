// Package circuitbreaker implements per-endpoint failure tracking so the
// rotation skips upstreams that keep failing.
//
// Each breaker is a three-state machine:
//
//   - CLOSED: normal operation, calls pass through
//   - OPEN: endpoint excluded from selection until the recovery timeout
//   - HALF-OPEN: exactly one trial call probes whether the endpoint recovered
//
// Usage:
//
//	breakers := circuitbreaker.NewRegistry(5, 60*time.Second)
//	if breakers.IsAvailable(ep.ID) {
//	    // forward...
//	    if err != nil {
//	        breakers.RecordFailure(ep.ID)
//	    } else {
//	        breakers.RecordSuccess(ep.ID)
//	    }
//	}
package circuitbreaker
