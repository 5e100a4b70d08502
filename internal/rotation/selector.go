package rotation

import (
	"errors"

	"github.com/proxyforge/proxy-rotator/internal/circuitbreaker"
	"github.com/proxyforge/proxy-rotator/internal/endpoint"
	"github.com/proxyforge/proxy-rotator/internal/registry"
	"github.com/proxyforge/proxy-rotator/internal/strategy"
)

// ErrNoUpstream is returned when no active endpoint with a non-open circuit
// exists. This is a normal, reportable condition, not a crash.
var ErrNoUpstream = errors.New("no upstream endpoint available")

// Selector combines the endpoint registry, the circuit breakers and a
// rotation strategy into a single "give me the next usable endpoint" call.
type Selector struct {
	strategy strategy.Strategy
	registry *registry.Registry
	breakers *circuitbreaker.Registry
}

func NewSelector(strat strategy.Strategy, reg *registry.Registry, breakers *circuitbreaker.Registry) *Selector {
	return &Selector{
		strategy: strat,
		registry: reg,
		breakers: breakers,
	}
}

// Next picks the next endpoint: active in the registry, not excluded by the
// caller, and admitted by its circuit breaker. An endpoint the strategy picks
// but whose breaker rejects it is dropped from the candidate set and the
// strategy asked again, so one tripped endpoint never empties a rotation
// cycle.
func (s *Selector) Next(excluded ...string) (*endpoint.Endpoint, error) {
	candidates := s.registry.Active()

	if len(excluded) > 0 {
		skip := make(map[string]struct{}, len(excluded))
		for _, id := range excluded {
			skip[id] = struct{}{}
		}
		kept := candidates[:0]
		for _, ep := range candidates {
			if _, ok := skip[ep.ID]; !ok {
				kept = append(kept, ep)
			}
		}
		candidates = kept
	}

	for len(candidates) > 0 {
		chosen := s.strategy.Select(candidates)
		if chosen == nil {
			break
		}

		if s.breakers.IsAvailable(chosen.ID) {
			return chosen, nil
		}

		candidates = without(candidates, chosen.ID)
	}

	return nil, ErrNoUpstream
}

// Strategy exposes the configured strategy, mainly for logging.
func (s *Selector) Strategy() strategy.Strategy {
	return s.strategy
}

func without(eps []*endpoint.Endpoint, id string) []*endpoint.Endpoint {
	kept := make([]*endpoint.Endpoint, 0, len(eps))
	for _, ep := range eps {
		if ep.ID != id {
			kept = append(kept, ep)
		}
	}
	return kept
}
