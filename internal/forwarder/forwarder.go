package forwarder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/proxyforge/proxy-rotator/internal/circuitbreaker"
	"github.com/proxyforge/proxy-rotator/internal/endpoint"
	"github.com/proxyforge/proxy-rotator/internal/retry"
	"github.com/proxyforge/proxy-rotator/internal/rotation"
	"github.com/proxyforge/proxy-rotator/internal/stats"
)

// hopByHopHeaders are stripped in both directions: they describe a single
// transport connection and must not cross the proxy boundary.
var hopByHopHeaders = map[string]struct{}{
	"host":                {},
	"connection":          {},
	"keep-alive":          {},
	"proxy-authenticate":  {},
	"proxy-authorization": {},
	"te":                  {},
	"trailers":            {},
	"transfer-encoding":   {},
	"upgrade":             {},
}

// Options configures the forwarding engine.
type Options struct {
	// Timeout bounds every outbound call. Default 10s.
	Timeout time.Duration

	// PoolSize bounds the outbound connection pool. Default 100.
	PoolSize int

	// RetryEnabled turns on bounded cross-endpoint retry for idempotent
	// methods. Single-shot forwarding is the default contract.
	RetryEnabled bool

	// RetryPolicy drives the retry waits when RetryEnabled is set.
	// MaxAttempts is capped at 3 (one call plus two retries).
	RetryPolicy retry.Policy
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.PoolSize <= 0 {
		o.PoolSize = 100
	}
	if o.RetryPolicy.MaxAttempts < 1 {
		o.RetryPolicy = retry.DefaultPolicy()
	}
	if o.RetryPolicy.MaxAttempts > 3 {
		o.RetryPolicy.MaxAttempts = 3
	}
	return o
}

// Handler is the forwarding engine: it resolves the logical target of each
// inbound request, rotates it onto an upstream endpoint and relays the
// response.
type Handler struct {
	logger    *slog.Logger
	selector  *rotation.Selector
	breakers  *circuitbreaker.Registry
	collector *stats.Collector
	client    *http.Client
	opts      Options
}

func NewHandler(
	logger *slog.Logger,
	selector *rotation.Selector,
	breakers *circuitbreaker.Registry,
	collector *stats.Collector,
	opts Options,
) *Handler {
	opts = opts.withDefaults()

	transport := &http.Transport{
		MaxIdleConns:        opts.PoolSize,
		MaxIdleConnsPerHost: opts.PoolSize,
		MaxConnsPerHost:     opts.PoolSize,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Handler{
		logger:    logger,
		selector:  selector,
		breakers:  breakers,
		collector: collector,
		client: &http.Client{
			Transport: transport,
			// The inbound caller must see raw redirects.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		opts: opts,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.collector.Emit(stats.Event{Type: stats.EventRequestReceived, Timestamp: time.Now()})

	// CONNECT is acknowledged but never tunneled.
	if r.Method == http.MethodConnect {
		h.logger.Info("CONNECT acknowledged without tunnel", slog.String("host", r.Host))
		w.WriteHeader(http.StatusOK)
		return
	}

	target, err := logicalTarget(r)
	if err != nil {
		h.logger.Warn("unparseable forwarding target",
			slog.String("path", r.URL.Path),
			slog.Any("err", err))
		writeError(w, KindValidation, err.Error())
		return
	}

	newBody, retryable, err := h.requestBody(r)
	if err != nil {
		h.logger.Warn("unreadable inbound request body", slog.Any("err", err))
		writeError(w, KindValidation, err.Error())
		return
	}

	var (
		resp     *http.Response
		chosen   *endpoint.Endpoint
		lastKind Kind
		lastErr  error
		excluded []string
	)

	attempt := func() error {
		ep, selErr := h.selector.Next(excluded...)
		if selErr != nil {
			lastKind, lastErr = KindNoUpstream, selErr
			return selErr
		}
		chosen = ep
		excluded = append(excluded, ep.ID)

		resp, lastKind, lastErr = h.forwardOnce(r, ep, target, newBody())
		return lastErr
	}

	policy := h.opts.RetryPolicy
	if !retryable {
		policy.MaxAttempts = 1
	}

	if err := policy.Do(r.Context(), attempt, func(err error) bool {
		// Selection exhaustion cannot improve on retry; transport-level
		// failures may succeed against a different endpoint.
		return lastKind == KindTimeout || lastKind == KindTransport
	}); err != nil {
		if lastErr == nil {
			// The inbound context expired before the first attempt ran;
			// resp is nil and nothing was forwarded.
			lastKind, lastErr = KindTransport, err
		}
		writeError(w, lastKind, lastErr.Error())
		return
	}

	defer resp.Body.Close()

	copyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		h.logger.Warn("response relay interrupted",
			slog.String("endpoint", chosen.ID),
			slog.Any("err", err))
	}
}

// forwardOnce issues one outbound call against one endpoint and records the
// outcome. The returned Kind classifies any failure.
func (h *Handler) forwardOnce(
	r *http.Request,
	ep *endpoint.Endpoint,
	target *url.URL,
	body io.Reader,
) (*http.Response, Kind, error) {
	outboundURL := ep.BaseURL + pathAndQuery(target)

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.Timeout)

	req, err := http.NewRequestWithContext(ctx, r.Method, outboundURL, body)
	if err != nil {
		cancel()
		h.breakers.ReleaseTrial(ep.ID)
		return nil, KindValidation, fmt.Errorf("build outbound request: %w", err)
	}
	copyHeaders(req.Header, r.Header)

	h.logger.Info("Forwarding request",
		slog.String("method", r.Method),
		slog.String("target", target.String()),
		slog.String("endpoint", ep.ID),
		slog.String("region", ep.Region),
		slog.String("outbound", outboundURL))

	start := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		cancel()
		h.collector.Emit(stats.Event{
			Type:       stats.EventOutcome,
			Timestamp:  time.Now(),
			EndpointID: ep.ID,
		})

		if errors.Is(err, context.DeadlineExceeded) {
			// No verdict on the endpoint, so the closed-state failure
			// count is untouched, but an admitted half-open trial must
			// not stay claimed.
			h.breakers.ReleaseTrial(ep.ID)
			h.logger.Error("upstream call timed out",
				slog.String("endpoint", ep.ID),
				slog.Duration("timeout", h.opts.Timeout))
			return nil, KindTimeout, fmt.Errorf("upstream timeout after %s", h.opts.Timeout)
		}

		if errors.Is(err, context.Canceled) {
			// Client went away; surface as transport failure without
			// blaming the endpoint.
			h.breakers.ReleaseTrial(ep.ID)
			return nil, KindTransport, fmt.Errorf("inbound request cancelled")
		}

		h.breakers.RecordFailure(ep.ID)
		h.logger.Error("upstream call failed",
			slog.String("endpoint", ep.ID),
			slog.Any("err", err))
		return nil, KindTransport, fmt.Errorf("upstream transport failure: %v", err)
	}

	// Body lifetime extends past this call; release the timeout when the
	// body is fully consumed.
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}

	h.breakers.RecordSuccess(ep.ID)
	h.collector.Emit(stats.Event{
		Type:       stats.EventOutcome,
		Timestamp:  time.Now(),
		EndpointID: ep.ID,
		Success:    true,
	})

	h.logger.Info("Upstream responded",
		slog.String("endpoint", ep.ID),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)))

	return resp, "", nil
}

// requestBody returns a factory producing a fresh outbound body reader per
// attempt, and whether the request may be retried. Only idempotent methods
// are retried, and only with a replayable (buffered) body. A body that
// cannot be fully buffered fails the request; forwarding the half-consumed
// reader would truncate it.
func (h *Handler) requestBody(r *http.Request) (func() io.Reader, bool, error) {
	if !h.opts.RetryEnabled || !idempotent(r.Method) {
		return func() io.Reader { return r.Body }, false, nil
	}

	if r.Body == nil || r.Body == http.NoBody {
		return func() io.Reader { return nil }, true, nil
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, false, fmt.Errorf("read request body: %w", err)
	}
	return func() io.Reader { return bytes.NewReader(data) }, true, nil
}

func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}

// logicalTarget derives the request's logical destination. A path that
// embeds a full absolute URL is used verbatim; otherwise the target is
// reconstructed from the Host header and path.
func logicalTarget(r *http.Request) (*url.URL, error) {
	if r.URL.IsAbs() {
		return r.URL, nil
	}

	if embedded := strings.TrimPrefix(r.URL.Path, "/"); strings.HasPrefix(embedded, "http://") ||
		strings.HasPrefix(embedded, "https://") {
		target, err := url.Parse(embedded)
		if err != nil || target.Host == "" {
			return nil, fmt.Errorf("invalid embedded target URL %q", embedded)
		}
		if target.RawQuery == "" {
			target.RawQuery = r.URL.RawQuery
		}
		return target, nil
	}

	if r.Host == "" {
		return nil, fmt.Errorf("no host to derive forwarding target from")
	}

	return &url.URL{
		Scheme:   "http",
		Host:     r.Host,
		Path:     r.URL.Path,
		RawQuery: r.URL.RawQuery,
	}, nil
}

// pathAndQuery keeps only the path and query of the logical target; the
// endpoint decides the ultimate destination host.
func pathAndQuery(target *url.URL) string {
	p := target.EscapedPath()
	if p == "" {
		p = "/"
	}
	if target.RawQuery != "" {
		p += "?" + target.RawQuery
	}
	return p
}

// copyHeaders copies all but the hop-by-hop set.
func copyHeaders(dst, src http.Header) {
	for name, values := range src {
		if _, hop := hopByHopHeaders[strings.ToLower(name)]; hop {
			continue
		}
		for _, v := range values {
			dst.Add(name, v)
		}
	}
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
