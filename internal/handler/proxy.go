package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"

	"dashboard-gateway/internal/config"
	"dashboard-gateway/internal/header"
	"dashboard-gateway/internal/model"
	"dashboard-gateway/internal/service"
)

// ProxyHandler forwards requests under the proxy prefix to the backend.
type ProxyHandler struct {
	service *service.ForwardService
	prefix  string
	logger  *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(svc *service.ForwardService, cfg *config.Config, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		prefix:  cfg.Server.ProxyPrefix,
		logger:  logger.With("component", "proxy_handler"),
	}
}

// Handle forwards the request to the backend and streams the response back.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	// Let the upstream response be written while the request body is still
	// being read.
	_ = http.NewResponseController(c.Response()).EnableFullDuplex()

	fr := &model.ForwardRequest{
		Method:        req.Method,
		Segments:      h.segments(req.URL),
		RawQuery:      req.URL.RawQuery,
		Header:        req.Header,
		Body:          req.Body,
		ContentLength: req.ContentLength,
	}

	resp, err := h.service.Forward(req.Context(), fr)
	if err != nil {
		return h.mapError(c, err)
	}
	defer func() { _ = resp.Body.Close() }()

	header.CopyTo(c.Response().Header(), resp.Header)
	c.Response().WriteHeader(resp.StatusCode)

	if req.Method == http.MethodHead {
		return nil
	}

	// Once the status is sent a failed copy can only truncate the response.
	if err := copyBody(c.Response(), resp.Body, isEventStream(resp.Header)); err != nil {
		h.logger.Warn("streaming response body",
			"err", err,
			"path", req.URL.Path,
		)
	}

	return nil
}

// segments returns the escaped path below the proxy prefix split on "/".
func (h *ProxyHandler) segments(u *url.URL) []string {
	rest := strings.TrimPrefix(u.EscapedPath(), h.prefix)
	rest = strings.TrimPrefix(rest, "/")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}

func (h *ProxyHandler) mapError(c echo.Context, err error) error {
	var f *model.Failure
	if !errors.As(err, &f) {
		f = model.WrapFailure(http.StatusBadGateway, service.MsgBackendUnreachable, err)
	}

	switch {
	case errors.Is(err, context.Canceled) && c.Request().Context().Err() != nil:
		h.logger.Info("client disconnected", "path", c.Request().URL.Path)
	case f.Status >= http.StatusInternalServerError:
		h.logger.Error("proxy error",
			"err", sanitizeError(err),
			"status", f.Status,
			"path", c.Request().URL.Path,
		)
	default:
		h.logger.Warn("proxy request rejected",
			"err", sanitizeError(err),
			"status", f.Status,
			"path", c.Request().URL.Path,
		)
	}

	return writeFailure(c, f)
}

// copyBody streams src to w. Event streams are flushed after every read so
// events reach the browser as soon as the backend emits them.
func copyBody(w http.ResponseWriter, src io.Reader, flush bool) error {
	if !flush {
		_, err := io.Copy(w, src)
		return err
	}

	rc := http.NewResponseController(w)
	buf := make([]byte, 32*1024)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
			_ = rc.Flush()
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func isEventStream(h http.Header) bool {
	mediaType, _, err := mime.ParseMediaType(h.Get("Content-Type"))
	return err == nil && mediaType == "text/event-stream"
}
