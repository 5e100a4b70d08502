package strategy

import (
	"sync"

	"github.com/proxyforge/proxy-rotator/internal/endpoint"
)

// RateSource reports the recent success rate for an endpoint, in [0, 1].
// Endpoints with no recorded outcomes report 1 so new endpoints stay eligible.
type RateSource interface {
	SuccessRate(endpointID string) float64
}

// weightedStrategy implements smooth weighted round-robin (the Nginx
// algorithm): each candidate accumulates its weight per selection cycle,
// the highest accumulated value wins and is reduced by the weight total.
// Weights are derived from recent success rates, so endpoints that fail
// often are picked less often without being excluded outright.
type weightedStrategy struct {
	mutex   sync.Mutex
	rates   RateSource
	current map[string]int // accumulated weight per endpoint ID
}

const maxWeight = 10

// NewWeightedStrategy creates a success-rate-weighted strategy. A nil rates
// source degrades to plain round-robin behavior (all weights equal).
func NewWeightedStrategy(rates RateSource) Strategy {
	return &weightedStrategy{
		rates:   rates,
		current: make(map[string]int),
	}
}

func (w *weightedStrategy) Select(candidates []*endpoint.Endpoint) *endpoint.Endpoint {
	if len(candidates) == 0 {
		return nil
	}

	w.mutex.Lock()
	defer w.mutex.Unlock()

	w.cleanup(candidates)

	totalWeight := 0
	var chosen *endpoint.Endpoint

	for _, ep := range candidates {
		weight := w.weightOf(ep)

		w.current[ep.ID] += weight
		totalWeight += weight

		if chosen == nil || w.current[ep.ID] > w.current[chosen.ID] {
			chosen = ep
		}
	}

	if chosen == nil || totalWeight == 0 {
		return nil
	}

	w.current[chosen.ID] -= totalWeight
	return chosen
}

// weightOf maps a success rate in [0,1] to an integer weight in [1,maxWeight].
// The floor of 1 keeps every candidate selectable; hard exclusion is the
// circuit breaker's job.
func (w *weightedStrategy) weightOf(ep *endpoint.Endpoint) int {
	if w.rates == nil {
		return 1
	}

	rate := w.rates.SuccessRate(ep.ID)
	if rate < 0 {
		rate = 0
	}
	if rate > 1 {
		rate = 1
	}

	return 1 + int(rate*float64(maxWeight-1))
}

// cleanup drops accumulated weights for endpoints no longer in the candidate
// set, preventing unbounded map growth as endpoints are removed.
func (w *weightedStrategy) cleanup(candidates []*endpoint.Endpoint) {
	alive := make(map[string]struct{}, len(candidates))
	for _, ep := range candidates {
		alive[ep.ID] = struct{}{}
	}

	for id := range w.current {
		if _, ok := alive[id]; !ok {
			delete(w.current, id)
		}
	}
}
