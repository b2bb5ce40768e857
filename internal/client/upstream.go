// Package client provides the upstream HTTP clients for the gateway.
package client

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"dashboard-gateway/internal/config"
	"dashboard-gateway/internal/metrics"
	"dashboard-gateway/internal/model"
)

// maxLogoRedirects bounds how many hops the logo client follows.
const maxLogoRedirects = 10

// Upstream sends requests to a single upstream. Its redirect policy is chosen
// by the constructor.
type Upstream struct {
	name       string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// BackendClient talks to the configured backend origin.
type BackendClient struct {
	*Upstream
}

// LogoClient talks to the third-party image provider.
type LogoClient struct {
	*Upstream
}

// NewBackendClient creates the backend client. Redirects are never followed:
// a 3xx response is relayed to the caller as-is. It has no overall timeout
// because response bodies are streamed for as long as the upstream sends;
// the forwarding service bounds the time to response headers instead.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
func NewBackendClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *BackendClient {
	return &BackendClient{newUpstream(metrics.UpstreamBackend, 0, cfg.Backend.IdleConnections, noRedirects, logger, m)}
}

// NewLogoClient creates the image provider client. Logo bodies are small and
// fully buffered, so the whole exchange is bounded by logo.timeout_seconds.
// Providers commonly redirect to a CDN, so up to maxLogoRedirects hops are followed.
func NewLogoClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *LogoClient {
	timeout := time.Duration(cfg.Logo.TimeoutSeconds) * time.Second
	return &LogoClient{newUpstream(metrics.UpstreamLogo, timeout, 0, followRedirects, logger, m)}
}

func noRedirects(*http.Request, []*http.Request) error {
	return http.ErrUseLastResponse
}

func followRedirects(_ *http.Request, via []*http.Request) error {
	if len(via) >= maxLogoRedirects {
		return fmt.Errorf("stopped after %d redirects", maxLogoRedirects)
	}
	return nil
}

func newUpstream(
	name string,
	timeout time.Duration,
	idle int,
	checkRedirect func(*http.Request, []*http.Request) error,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Upstream {
	if idle <= 0 {
		idle = 10
	}
	transport := &http.Transport{
		MaxIdleConns:        idle,
		MaxIdleConnsPerHost: idle,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		ForceAttemptHTTP2:   true,
		// Bodies are relayed byte-for-byte; never decode on the caller's behalf.
		DisableCompression: true,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &Upstream{
		name: name,
		httpClient: &http.Client{
			Transport:     transport,
			Timeout:       timeout,
			CheckRedirect: checkRedirect,
		},
		logger:  logger.With("component", name+"_client"),
		metrics: m,
	}
}

// Do executes an HTTP request against the upstream and returns the raw response.
// The caller is responsible for closing the response body.
func (c *Upstream) Do(req *http.Request) (*model.ForwardResponse, error) {
	c.logger.Debug("upstream request",
		"method", req.Method,
		"host", req.URL.Host,
		"path", req.URL.Path,
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req) //nolint:bodyclose // body ownership transfers to caller via ForwardResponse
	duration := time.Since(start).Seconds()

	method := metrics.NormalizeMethod(req.Method)

	if err != nil {
		if c.metrics != nil {
			c.metrics.UpstreamDuration.WithLabelValues(c.name, method).Observe(duration)
			c.metrics.UpstreamFailures.WithLabelValues(c.name, method).Inc()
		}
		return nil, fmt.Errorf("upstream request: %w", err)
	}

	if c.metrics != nil {
		status := strconv.Itoa(resp.StatusCode)
		c.metrics.UpstreamDuration.WithLabelValues(c.name, method).Observe(duration)
		c.metrics.UpstreamResponses.WithLabelValues(c.name, method, status).Inc()
	}

	return &model.ForwardResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
	}, nil
}

// DoStream executes a request and returns the response body as a stream.
// The caller is responsible for closing the returned ReadCloser.
// The provided context controls the lifetime of the upstream request:
// when the context is canceled (e.g. client disconnects), the upstream
// request is also canceled.
func (c *Upstream) DoStream(ctx context.Context, method, url string, header http.Header, body io.Reader) (*model.ForwardResponse, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	if header != nil {
		req.Header = header
	}

	return c.Do(req)
}
