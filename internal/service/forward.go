// Package service implements the gateway's forwarding and logo logic.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"dashboard-gateway/internal/client"
	"dashboard-gateway/internal/config"
	"dashboard-gateway/internal/header"
	"dashboard-gateway/internal/model"
	"dashboard-gateway/internal/origin"
)

// Failure messages of the forwarding gateway.
const (
	MsgBackendUnreachable = "Unable to reach backend API"
	MsgBackendTimeout     = "Backend API timed out"
	MsgBodyTooLarge       = "Request body too large"
)

var errHeaderTimeout = errors.New("backend response headers timed out")

// ForwardService relays requests to the backend origin.
type ForwardService struct {
	client        *client.BackendClient
	origin        origin.Origin
	headerTimeout time.Duration
	logger        *slog.Logger
}

// NewForwardService creates a ForwardService for the given origin.
func NewForwardService(c *client.BackendClient, o origin.Origin, cfg *config.Config, logger *slog.Logger) *ForwardService {
	return &ForwardService{
		client:        c,
		origin:        o,
		headerTimeout: time.Duration(cfg.Backend.ResponseHeaderTimeoutSeconds) * time.Second,
		logger:        logger.With("component", "forward_service"),
	}
}

// Forward sends req to the backend and returns the upstream response with a
// live body. The caller must close the body; closing it releases the upstream
// connection. Redirects are returned, not followed.
//
// Every error returned is a *model.Failure: 413 when the inbound body exceeds
// the server limit, 504 when the backend sends no headers within the
// configured bound, 502 for any other transport failure.
func (s *ForwardService) Forward(ctx context.Context, req *model.ForwardRequest) (*model.ForwardResponse, error) {
	target := s.origin.Target(req.Segments, req.RawQuery)

	ctx, cancel := context.WithCancelCause(ctx)

	var body io.Reader
	if req.HasBody() {
		body = req.Body
	}
	upstreamReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		cancel(nil)
		return nil, model.WrapFailure(http.StatusBadGateway, MsgBackendUnreachable, err)
	}
	upstreamReq.Header = header.Sanitize(req.Header)
	if body != nil && req.ContentLength > 0 {
		upstreamReq.ContentLength = req.ContentLength
	}

	s.logger.Debug("forwarding request",
		"method", req.Method,
		"path", upstreamReq.URL.Path,
	)

	var timer *time.Timer
	if s.headerTimeout > 0 {
		timer = time.AfterFunc(s.headerTimeout, func() { cancel(errHeaderTimeout) })
	}

	resp, err := s.client.Do(upstreamReq)
	timedOut := timer != nil && !timer.Stop() && errors.Is(context.Cause(ctx), errHeaderTimeout)

	if timedOut {
		if resp != nil {
			_ = resp.Body.Close()
		}
		cancel(nil)
		return nil, &model.Failure{
			Status:  http.StatusGatewayTimeout,
			Message: MsgBackendTimeout,
			Detail:  fmt.Sprintf("no response headers within %s", s.headerTimeout),
			Cause:   errHeaderTimeout,
		}
	}
	if err != nil {
		cancel(nil)
		if bodyTooLarge(err) {
			return nil, model.WrapFailure(http.StatusRequestEntityTooLarge, MsgBodyTooLarge, err)
		}
		return nil, model.WrapFailure(http.StatusBadGateway, MsgBackendUnreachable, err)
	}

	resp.Header = header.Sanitize(resp.Header)
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// Origin returns the backend origin requests are forwarded to.
func (s *ForwardService) Origin() origin.Origin {
	return s.origin
}

func bodyTooLarge(err error) bool {
	var maxBytesErr *http.MaxBytesError
	return errors.Is(err, echo.ErrStatusRequestEntityTooLarge) || errors.As(err, &maxBytesErr)
}

// cancelOnClose ends the request context once the body is released.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelCauseFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel(nil)
	return err
}
