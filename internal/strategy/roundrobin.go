package strategy

import (
	"sync/atomic"

	"github.com/proxyforge/proxy-rotator/internal/endpoint"
)

type roundRobinStrategy struct {
	current uint64
}

// NewRoundRobinStrategy creates the baseline rotation strategy: a shared
// cursor advanced exactly once per Select call, cycling the candidate list
// in insertion order.
func NewRoundRobinStrategy() Strategy {
	return &roundRobinStrategy{}
}

func (rr *roundRobinStrategy) Select(candidates []*endpoint.Endpoint) *endpoint.Endpoint {
	if len(candidates) == 0 {
		return nil
	}

	n := atomic.AddUint64(&rr.current, 1)

	index := (n - 1) % uint64(len(candidates))

	return candidates[index]
}
