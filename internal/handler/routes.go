package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dashboard-gateway/internal/config"
	"dashboard-gateway/internal/metrics"
)

// RegisterRoutes wires all route handlers onto the Echo instance.
func RegisterRoutes(
	e *echo.Echo,
	cfg *config.Config,
	proxy *ProxyHandler,
	logo *LogoHandler,
	health *HealthHandler,
	m *metrics.Metrics,
) {
	e.GET("/healthz", health.Healthz)
	e.GET("/gateway/status", health.Status)

	e.GET(cfg.Logo.Path, logo.Handle)

	e.Any(cfg.Server.ProxyPrefix, proxy.Handle)
	e.Any(cfg.Server.ProxyPrefix+"/*", proxy.Handle)

	if cfg.Metrics.Enabled && m != nil {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}
}
