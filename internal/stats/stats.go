package stats

import (
	"sync"
	"time"
)

// OutcomeCounts holds per-endpoint success/failure tallies.
type OutcomeCounts struct {
	Success int64 `json:"success"`
	Failure int64 `json:"failure"`
}

// Snapshot is the read-only view handed to the management layer.
type Snapshot struct {
	TotalRequests int64                    `json:"total_requests"`
	Uptime        time.Duration            `json:"uptime"`
	PerEndpoint   map[string]OutcomeCounts `json:"per_endpoint"`
	Strategy      string                   `json:"strategy"`
}

// Stats is the thread-safe store behind the collector.
type Stats struct {
	mutex         sync.RWMutex
	totalRequests int64
	outcomes      map[string]OutcomeCounts
	startTime     time.Time
}

func NewStats() *Stats {
	return &Stats{
		outcomes:  make(map[string]OutcomeCounts),
		startTime: time.Now(),
	}
}

// IncrementRequests counts one inbound request.
func (s *Stats) IncrementRequests() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.totalRequests++
}

// RecordOutcome counts a forwarding result against an endpoint.
func (s *Stats) RecordOutcome(endpointID string, success bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	counts := s.outcomes[endpointID]
	if success {
		counts.Success++
	} else {
		counts.Failure++
	}
	s.outcomes[endpointID] = counts
}

// SuccessRate returns the endpoint's success fraction in [0,1]. Endpoints
// with no recorded outcomes report 1 so they stay fully weighted.
func (s *Stats) SuccessRate(endpointID string) float64 {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	counts := s.outcomes[endpointID]
	total := counts.Success + counts.Failure
	if total == 0 {
		return 1
	}
	return float64(counts.Success) / float64(total)
}

// Snapshot copies the current counters for the management layer to poll.
func (s *Stats) Snapshot(strategyName string) Snapshot {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	snap := Snapshot{
		TotalRequests: s.totalRequests,
		Uptime:        time.Since(s.startTime),
		PerEndpoint:   make(map[string]OutcomeCounts, len(s.outcomes)),
		Strategy:      strategyName,
	}
	for id, counts := range s.outcomes {
		snap.PerEndpoint[id] = counts
	}

	return snap
}
