package stats_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/proxyforge/proxy-rotator/internal/stats"
)

func TestStats(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Stats Suite")
}

var _ = Describe("Stats", func() {
	var s *stats.Stats

	BeforeEach(func() {
		s = stats.NewStats()
	})

	It("should count inbound requests", func() {
		s.IncrementRequests()
		s.IncrementRequests()
		Expect(s.Snapshot("round-robin").TotalRequests).To(Equal(int64(2)))
	})

	It("should tally outcomes per endpoint", func() {
		s.RecordOutcome("e1", true)
		s.RecordOutcome("e1", true)
		s.RecordOutcome("e1", false)
		s.RecordOutcome("e2", false)

		snap := s.Snapshot("round-robin")
		Expect(snap.PerEndpoint["e1"]).To(Equal(stats.OutcomeCounts{Success: 2, Failure: 1}))
		Expect(snap.PerEndpoint["e2"]).To(Equal(stats.OutcomeCounts{Success: 0, Failure: 1}))
	})

	Describe("SuccessRate", func() {
		It("should report 1 for an endpoint with no outcomes", func() {
			Expect(s.SuccessRate("unknown")).To(Equal(1.0))
		})

		It("should report the success fraction", func() {
			s.RecordOutcome("e1", true)
			s.RecordOutcome("e1", true)
			s.RecordOutcome("e1", false)
			s.RecordOutcome("e1", false)
			Expect(s.SuccessRate("e1")).To(Equal(0.5))
		})

		It("should report 0 for an endpoint with only failures", func() {
			s.RecordOutcome("e1", false)
			Expect(s.SuccessRate("e1")).To(BeZero())
		})
	})

	It("should carry the strategy name and uptime in the snapshot", func() {
		snap := s.Snapshot("weighted")
		Expect(snap.Strategy).To(Equal("weighted"))
		Expect(snap.Uptime).To(BeNumerically(">=", 0))
	})
})

var _ = Describe("Collector", func() {
	var (
		collector *stats.Collector
		ctx       context.Context
		cancel    context.CancelFunc
	)

	BeforeEach(func() {
		log := slog.New(slog.NewTextHandler(os.Stdout, nil))
		collector = stats.NewCollector(100, log)
		ctx, cancel = context.WithCancel(context.Background())
		collector.Start(ctx)
	})

	AfterEach(func() {
		cancel()
	})

	It("should process emitted events off the channel", func() {
		collector.Emit(stats.Event{Type: stats.EventRequestReceived, Timestamp: time.Now()})
		collector.Emit(stats.Event{Type: stats.EventOutcome, Timestamp: time.Now(), EndpointID: "e1", Success: true})
		collector.Emit(stats.Event{Type: stats.EventOutcome, Timestamp: time.Now(), EndpointID: "e1", Success: false})

		Eventually(func() int64 {
			return collector.Snapshot("round-robin").TotalRequests
		}).Should(Equal(int64(1)))

		Eventually(func() stats.OutcomeCounts {
			return collector.Snapshot("round-robin").PerEndpoint["e1"]
		}).Should(Equal(stats.OutcomeCounts{Success: 1, Failure: 1}))
	})

	It("should expose success rates for the weighted strategy", func() {
		collector.Emit(stats.Event{Type: stats.EventOutcome, Timestamp: time.Now(), EndpointID: "e1", Success: false})

		Eventually(func() float64 {
			return collector.SuccessRate("e1")
		}).Should(BeZero())
	})

	It("should never block the emitter when the buffer is full", func() {
		small := stats.NewCollector(1, slog.New(slog.NewTextHandler(os.Stdout, nil)))

		done := make(chan struct{})
		go func() {
			defer close(done)
			for i := 0; i < 100; i++ {
				small.Emit(stats.Event{Type: stats.EventRequestReceived})
			}
		}()
		Eventually(done).Should(BeClosed())
	})

	Describe("Handler", func() {
		It("should serve the snapshot as JSON", func() {
			collector.Emit(stats.Event{Type: stats.EventRequestReceived, Timestamp: time.Now()})
			Eventually(func() int64 {
				return collector.Snapshot("round-robin").TotalRequests
			}).Should(Equal(int64(1)))

			rec := httptest.NewRecorder()
			collector.Handler("round-robin")(rec, httptest.NewRequest("GET", "/stats", nil))

			Expect(rec.Code).To(Equal(200))
			Expect(rec.Header().Get("Content-Type")).To(Equal("application/json"))

			var snap stats.Snapshot
			Expect(json.Unmarshal(rec.Body.Bytes(), &snap)).To(Succeed())
			Expect(snap.TotalRequests).To(Equal(int64(1)))
			Expect(snap.Strategy).To(Equal("round-robin"))
		})
	})

	Describe("MetricsHandler", func() {
		It("should expose the prometheus counters", func() {
			collector.Emit(stats.Event{Type: stats.EventOutcome, Timestamp: time.Now(), EndpointID: "e1", Success: true})
			Eventually(func() stats.OutcomeCounts {
				return collector.Snapshot("round-robin").PerEndpoint["e1"]
			}).Should(Equal(stats.OutcomeCounts{Success: 1}))

			rec := httptest.NewRecorder()
			collector.MetricsHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

			Expect(rec.Code).To(Equal(200))
			body, err := io.ReadAll(rec.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring("proxy_rotator_requests_total"))
			Expect(string(body)).To(ContainSubstring(`proxy_rotator_forward_outcomes_total{endpoint="e1",result="success"} 1`))
		})
	})
})
