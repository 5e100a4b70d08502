package healthcheck

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/proxyforge/proxy-rotator/internal/circuitbreaker"
	"github.com/proxyforge/proxy-rotator/internal/registry"
)

// Probe periodically issues a GET against every registered endpoint's base
// URL and feeds the result into the circuit breakers, so a dead endpoint is
// noticed between client requests. A response below 500 counts as healthy;
// gateways routinely answer 403 for bare probes, which still proves the path
// is up.
func Probe(
	ctx context.Context,
	reg *registry.Registry,
	breakers *circuitbreaker.Registry,
	interval time.Duration,
	logger *slog.Logger,
) {
	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Health probe stopped")
			return

		case <-ticker.C:
			for _, ep := range reg.Active() {
				req, err := http.NewRequestWithContext(
					ctx, http.MethodGet, ep.BaseURL+"/", nil)
				if err != nil {
					continue
				}

				res, err := client.Do(req)
				if err != nil {
					breakers.RecordFailure(ep.ID)
					logger.Warn("Endpoint probe failed",
						slog.String("id", ep.ID),
						slog.String("base_url", ep.BaseURL),
						slog.Any("err", err))
					continue
				}
				res.Body.Close()

				if res.StatusCode < http.StatusInternalServerError {
					breakers.RecordSuccess(ep.ID)
				} else {
					breakers.RecordFailure(ep.ID)
					logger.Warn("Endpoint probe returned server error",
						slog.String("id", ep.ID),
						slog.Int("status", res.StatusCode))
				}
			}
		}
	}
}
