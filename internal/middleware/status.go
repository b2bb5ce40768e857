package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"dashboard-gateway/internal/model"
)

// responseStatus reports the status the client receives. An error returned
// down the chain is rendered later by the central error handler, so until
// then the response carries no status of its own.
func responseStatus(c echo.Context, err error) int {
	if err == nil || c.Response().Committed {
		return c.Response().Status
	}

	var he *echo.HTTPError
	var f *model.Failure
	switch {
	case errors.As(err, &he):
		return he.Code
	case errors.As(err, &f):
		return f.Status
	default:
		return http.StatusInternalServerError
	}
}
