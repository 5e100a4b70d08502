package strategy

import (
	"math/rand"

	"github.com/proxyforge/proxy-rotator/internal/endpoint"
)

type randomStrategy struct{}

// NewRandomStrategy creates a stateless uniform-pick strategy.
func NewRandomStrategy() Strategy {
	return &randomStrategy{}
}

func (r *randomStrategy) Select(candidates []*endpoint.Endpoint) *endpoint.Endpoint {
	if len(candidates) == 0 {
		return nil
	}

	return candidates[rand.Intn(len(candidates))]
}
