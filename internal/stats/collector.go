package stats

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type EventType string

const (
	EventRequestReceived EventType = "request_received"
	EventOutcome         EventType = "outcome"
)

type Event struct {
	Type       EventType
	Timestamp  time.Time
	EndpointID string
	Success    bool
}

// Collector consumes forwarding events off a buffered channel so counting
// never blocks the request path, and mirrors the counts into prometheus.
type Collector struct {
	eventCh chan Event
	stats   *Stats
	logger  *slog.Logger

	promRegistry  *prometheus.Registry
	requestsTotal prometheus.Counter
	outcomesTotal *prometheus.CounterVec
}

func NewCollector(bufferSize int, logger *slog.Logger) *Collector {
	promRegistry := prometheus.NewRegistry()
	factory := promauto.With(promRegistry)

	return &Collector{
		eventCh:      make(chan Event, bufferSize),
		stats:        NewStats(),
		logger:       logger,
		promRegistry: promRegistry,
		requestsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "proxy_rotator_requests_total",
			Help: "Inbound requests accepted by the forwarding engine.",
		}),
		outcomesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "proxy_rotator_forward_outcomes_total",
			Help: "Forwarding outcomes per endpoint.",
		}, []string{"endpoint", "result"}),
	}
}

// Emit sends an event without blocking; events are dropped when the buffer
// is full rather than slowing a request down.
func (c *Collector) Emit(event Event) {
	select {
	case c.eventCh <- event:
	default:
	}
}

// Start runs the processing loop in its own goroutine.
func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Info("Stats collector started")
	defer c.logger.Info("Stats collector stopped")

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			// Drain remaining events before shutdown
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event Event) {
	switch event.Type {
	case EventRequestReceived:
		c.stats.IncrementRequests()
		c.requestsTotal.Inc()

	case EventOutcome:
		c.stats.RecordOutcome(event.EndpointID, event.Success)
		result := "failure"
		if event.Success {
			result = "success"
		}
		c.outcomesTotal.WithLabelValues(event.EndpointID, result).Inc()
	}
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}

// Snapshot returns the current counters.
func (c *Collector) Snapshot(strategyName string) Snapshot {
	return c.stats.Snapshot(strategyName)
}

// SuccessRate implements strategy.RateSource.
func (c *Collector) SuccessRate(endpointID string) float64 {
	return c.stats.SuccessRate(endpointID)
}
