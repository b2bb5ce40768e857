package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/labstack/echo/v4"

	"dashboard-gateway/internal/model"
	"dashboard-gateway/internal/service"
)

// apiKeyPattern matches apikey query parameter values in URLs embedded in error messages.
var apiKeyPattern = regexp.MustCompile(`(?i)(apikey=)[^&\s"]+`)

// sanitizeError redacts API keys from error messages that may contain upstream URLs.
func sanitizeError(err error) string {
	return apiKeyPattern.ReplaceAllString(err.Error(), "${1}[REDACTED]")
}

// writeFailure renders f as {"error": ..., "detail": ...}.
func writeFailure(c echo.Context, f *model.Failure) error {
	if c.Request().Method == http.MethodHead {
		return c.NoContent(f.Status)
	}
	return c.JSON(f.Status, f)
}

// ErrorHandler renders errors raised outside the gateway handlers (unknown
// routes, body limit, rate limit, recovered panics) in the same JSON shape.
func ErrorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		f := toFailure(err)
		if f.Status >= http.StatusInternalServerError {
			logger.Error("unhandled error", "err", sanitizeError(err), "path", c.Request().URL.Path)
		}
		if werr := writeFailure(c, f); werr != nil {
			logger.Error("writing error response", "err", werr)
		}
	}
}

func toFailure(err error) *model.Failure {
	var f *model.Failure
	if errors.As(err, &f) {
		return f
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		if he.Code == http.StatusRequestEntityTooLarge {
			return model.NewFailure(he.Code, service.MsgBodyTooLarge, "")
		}
		msg := http.StatusText(he.Code)
		if s, ok := he.Message.(string); ok && s != "" {
			msg = s
		}
		return model.NewFailure(he.Code, msg, "")
	}

	return model.NewFailure(http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError), "")
}
