package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"golang.org/x/time/rate"

	"dashboard-gateway/internal/cache"
	"dashboard-gateway/internal/client"
	"dashboard-gateway/internal/config"
	"dashboard-gateway/internal/credential"
	"dashboard-gateway/internal/handler"
	"dashboard-gateway/internal/metrics"
	"dashboard-gateway/internal/middleware"
	"dashboard-gateway/internal/origin"
	"dashboard-gateway/internal/service"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	var cli config.CLI
	kong.Parse(&cli,
		kong.Name("dashboard-gateway"),
		kong.Description("Forwarding gateway for the dashboard backend API and ticker logos."),
		kong.Vars{"version": fmt.Sprintf("%s (%s, %s)", version, commit, date)},
	)

	fx.New(
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With("component", "fx")}
		}),
		fx.Provide(
			func() *config.CLI { return &cli },
			func() handler.Version { return handler.Version(version) },
			config.Load,
			newLogger,
			newMetrics,
			newOrigin,
			newCredentialResolver,
			newLogoCache,
			newEcho,
			client.NewBackendClient,
			client.NewLogoClient,
			service.NewForwardService,
			service.NewLogoService,
			handler.NewProxyHandler,
			handler.NewLogoHandler,
			handler.NewHealthHandler,
		),
		fx.Invoke(handler.RegisterRoutes, warnConfigPermissions, startServer),
	).Run()
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "text":
		h = slog.NewTextHandler(os.Stdout, opts)
	default:
		h = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(h)
}

func newMetrics(cfg *config.Config) *metrics.Metrics {
	prefixes := cfg.ReservedRoutes()
	if cfg.Metrics.Enabled {
		prefixes = append(prefixes, cfg.Metrics.Path)
	}
	return metrics.New(prefixes...)
}

// newOrigin resolves the backend origin once; it is read-only afterwards.
func newOrigin(cfg *config.Config, logger *slog.Logger) origin.Origin {
	o := origin.Resolve(cfg.Backend.Origin, cfg.Backend.OriginEnv, cfg.LookupEnv)
	logger.Info("backend origin resolved", "origin", o.String())
	return o
}

func newCredentialResolver(cfg *config.Config, logger *slog.Logger) *credential.Resolver {
	r := credential.NewResolver(cfg.Logo.CredentialEnv, cfg.LookupEnv)
	if token, ok := r.Resolve(); ok {
		logger.Info("logo API key found", "source", token.Source)
	} else {
		logger.Warn("no logo API key configured; logo requests will fail", "sources", r.Sources())
	}
	return r
}

func newLogoCache(lc fx.Lifecycle, cfg *config.Config) (*cache.LogoCache, error) {
	c, err := cache.NewLogoCache(cfg)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(c.Close))
	return c, nil
}

func newEcho(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.ErrorHandler(logger)

	// Request bodies are streamed to the backend, so only the header read is
	// bounded; a whole-request ReadTimeout would cut long uploads.
	e.Server.ReadTimeout = 0
	e.Server.ReadHeaderTimeout = 10 * time.Second
	// WriteTimeout is disabled (0) so long-lived streamed responses such as
	// event streams are not cut off.
	e.Server.WriteTimeout = 0
	e.Server.IdleTimeout = 120 * time.Second

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(logger))
	if cfg.Metrics.Enabled {
		e.Use(middleware.MetricsMiddleware(m))
	}
	e.Use(echomw.BodyLimit(fmt.Sprintf("%dB", cfg.Server.BodyMaxBytes)))
	e.Use(middleware.SecurityHeaders())

	if cfg.Server.RateLimit.Enabled {
		store := echomw.NewRateLimiterMemoryStore(rate.Limit(cfg.Server.RateLimit.RequestsPerSecond))
		e.Use(echomw.RateLimiter(store))
		logger.Info("rate limiter enabled", "rps", cfg.Server.RateLimit.RequestsPerSecond)
	}

	return e
}

func warnConfigPermissions(cfg *config.Config, logger *slog.Logger) {
	cfg.WarnPermissions(logger)
}

func startServer(lc fx.Lifecycle, e *echo.Echo, cfg *config.Config, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			addr := cfg.Server.Addr()
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("bind %s: %w", addr, err)
			}
			logger.Info("starting server", "addr", addr, "version", version)
			go func() {
				if err := e.Server.Serve(ln); err != nil && err != http.ErrServerClosed {
					logger.Error("server error", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down server")
			return e.Shutdown(ctx)
		},
	})
}
