package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"dashboard-gateway/internal/client"
	"dashboard-gateway/internal/config"
	"dashboard-gateway/internal/credential"
	"dashboard-gateway/internal/metrics"
	"dashboard-gateway/internal/origin"
	"dashboard-gateway/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testConfig loads the default configuration pointed at the given upstreams.
func testConfig(t *testing.T, backendURL, logoURL string) *config.Config {
	t.Helper()
	cfg, err := config.Load(&config.CLI{BackendURL: backendURL})
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	cfg.Logo.URLTemplate = logoURL + "/image-stock/{symbol}.png"
	cfg.Metrics.Enabled = true
	return cfg
}

func mapLookup(env map[string]string) credential.LookupFunc {
	return func(name string) (string, bool) {
		v, ok := env[name]
		return v, ok
	}
}

// newTestGateway assembles every handler the way the server does.
func newTestGateway(t *testing.T, cfg *config.Config, env map[string]string) *echo.Echo {
	t.Helper()
	logger := testLogger()
	m := metrics.New(cfg.ReservedRoutes()...)
	resolver := credential.NewResolver(cfg.Logo.CredentialEnv, mapLookup(env))
	o := origin.Resolve(cfg.Backend.Origin, nil, nil)

	forward := service.NewForwardService(client.NewBackendClient(cfg, logger, m), o, cfg, logger)
	logos := service.NewLogoService(client.NewLogoClient(cfg, logger, m), resolver, nil, cfg, logger, m)

	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler(logger)
	RegisterRoutes(e, cfg,
		NewProxyHandler(forward, cfg, logger),
		NewLogoHandler(logos, cfg, logger),
		NewHealthHandler(o, resolver, "test"),
		m,
	)
	return e
}

func decodeFailure(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal %q: %v", rec.Body.String(), err)
	}
	return body
}
