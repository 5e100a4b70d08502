package stats

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler returns the JSON snapshot endpoint the management layer polls.
func (c *Collector) Handler(strategyName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := c.stats.Snapshot(strategyName)

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(snap); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
}

// MetricsHandler serves the prometheus mirror of the same counters.
func (c *Collector) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(c.promRegistry, promhttp.HandlerOpts{})
}
