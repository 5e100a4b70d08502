package strategy

import (
	"github.com/proxyforge/proxy-rotator/internal/endpoint"
)

// Strategy picks the next endpoint from an ordered candidate list.
// Implementations return nil for an empty list and never panic.
type Strategy interface {
	Select(candidates []*endpoint.Endpoint) *endpoint.Endpoint
}
