package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"dashboard-gateway/internal/config"
	"dashboard-gateway/internal/model"
	"dashboard-gateway/internal/service"
)

// LogoHandler serves ticker logos from the image provider.
type LogoHandler struct {
	service      *service.LogoService
	cacheControl string
	logger       *slog.Logger
}

// NewLogoHandler creates a LogoHandler.
func NewLogoHandler(svc *service.LogoService, cfg *config.Config, logger *slog.Logger) *LogoHandler {
	return &LogoHandler{
		service:      svc,
		cacheControl: cfg.Logo.CacheControl,
		logger:       logger.With("component", "logo_handler"),
	}
}

// Handle serves GET ?symbol=AAPL (or ?ticker=AAPL) with an optional
// &exchange= hint.
func (h *LogoHandler) Handle(c echo.Context) error {
	symbol := c.QueryParam("symbol")
	if strings.TrimSpace(symbol) == "" {
		symbol = c.QueryParam("ticker")
	}
	req := model.NewSymbolRequest(symbol, c.QueryParam("exchange"))

	logo, err := h.service.FetchLogo(c.Request().Context(), req)
	if err != nil {
		return h.mapError(c, req, err)
	}

	res := c.Response().Header()
	res.Set(echo.HeaderCacheControl, h.cacheControl)
	res.Set("ETag", logo.ETag)

	if etagMatches(c.Request().Header.Get("If-None-Match"), logo.ETag) {
		return c.NoContent(http.StatusNotModified)
	}

	return c.Blob(http.StatusOK, logo.ContentType, logo.Data)
}

func (h *LogoHandler) mapError(c echo.Context, req model.SymbolRequest, err error) error {
	f := toFailure(err)

	if f.Status >= http.StatusInternalServerError {
		h.logger.Error("logo error",
			"err", sanitizeError(err),
			"status", f.Status,
			"symbol", req.Symbol,
		)
	} else {
		h.logger.Warn("logo unavailable",
			"err", sanitizeError(err),
			"status", f.Status,
			"symbol", req.Symbol,
		)
	}

	// Errors must not be cached for as long as logos are.
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return writeFailure(c, f)
}

// etagMatches implements the weak comparison If-None-Match calls for.
func etagMatches(ifNoneMatch, etag string) bool {
	if ifNoneMatch == "" || etag == "" {
		return false
	}
	for _, candidate := range strings.Split(ifNoneMatch, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}
