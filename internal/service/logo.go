package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/zeebo/blake3"
	"golang.org/x/sync/singleflight"

	"dashboard-gateway/internal/cache"
	"dashboard-gateway/internal/client"
	"dashboard-gateway/internal/config"
	"dashboard-gateway/internal/credential"
	"dashboard-gateway/internal/metrics"
	"dashboard-gateway/internal/model"
)

// Failure messages of the logo gateway.
const (
	MsgSymbolMissing      = "Missing required query parameter: symbol"
	MsgLogoNotConfigured  = "Logo service is not configured"
	MsgLogoFetchFailed    = "Failed to retrieve logo"
	msgLogoNotAvailableAs = "Logo not available for %s"
)

// LogoService resolves ticker symbols to images from the third-party provider.
type LogoService struct {
	client      *client.LogoClient
	credentials *credential.Resolver
	cache       *cache.LogoCache
	metrics     *metrics.Metrics
	logger      *slog.Logger
	group       singleflight.Group

	template           string
	tokenParam         string
	maxBytes           int64
	defaultContentType string
}

// NewLogoService creates a LogoService. The cache and metrics may be nil.
func NewLogoService(
	c *client.LogoClient,
	r *credential.Resolver,
	lc *cache.LogoCache,
	cfg *config.Config,
	logger *slog.Logger,
	m *metrics.Metrics,
) *LogoService {
	return &LogoService{
		client:             c,
		credentials:        r,
		cache:              lc,
		metrics:            m,
		logger:             logger.With("component", "logo_service"),
		template:           cfg.Logo.URLTemplate,
		tokenParam:         cfg.Logo.TokenParam,
		maxBytes:           cfg.Logo.MaxBytes,
		defaultContentType: cfg.Logo.DefaultContentType,
	}
}

// FetchLogo returns the logo for req. Errors are *model.Failure values:
// 400 for a missing symbol (no upstream call is made), 500 when no API key is
// configured, the upstream status for a non-2xx reply and 502 when the
// provider cannot be reached or the image is unusable.
//
// Concurrent requests for the same symbol share one upstream fetch. A caller
// that gives up does not abort the fetch for the others.
func (s *LogoService) FetchLogo(ctx context.Context, req model.SymbolRequest) (*model.Logo, error) {
	if !req.Valid() {
		return nil, model.NewFailure(http.StatusBadRequest, MsgSymbolMissing, "")
	}

	token, ok := s.credentials.Resolve()
	if !ok {
		return nil, model.NewFailure(http.StatusInternalServerError, MsgLogoNotConfigured,
			"no API key found; set one of "+strings.Join(s.credentials.Sources(), ", "))
	}

	key := req.Key()
	if logo, ok := s.cache.Get(key); ok {
		s.observeCache(metrics.CacheHit)
		return logo, nil
	}

	ch := s.group.DoChan(key, func() (any, error) {
		logo, err := s.fetch(context.WithoutCancel(ctx), req, token.Value)
		if err != nil {
			return nil, err
		}
		s.cache.Set(key, logo)
		return logo, nil
	})

	select {
	case <-ctx.Done():
		return nil, model.WrapFailure(http.StatusBadGateway, MsgLogoFetchFailed, ctx.Err())
	case res := <-ch:
		if res.Shared {
			s.observeCache(metrics.CacheCoalesced)
		} else {
			s.observeCache(metrics.CacheMiss)
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*model.Logo), nil
	}
}

func (s *LogoService) fetch(ctx context.Context, req model.SymbolRequest, token string) (*model.Logo, error) {
	target, err := s.buildURL(req, token)
	if err != nil {
		return nil, model.WrapFailure(http.StatusBadGateway, MsgLogoFetchFailed, err)
	}

	s.logger.Debug("fetching logo", "symbol", req.Symbol, "exchange", req.Exchange)

	resp, err := s.client.DoStream(ctx, http.MethodGet, target, http.Header{"Accept": {"image/*"}}, nil)
	if err != nil {
		return nil, unreachable(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		s.logger.Warn("logo upstream rejected request", "symbol", req.Symbol, "status", resp.StatusCode)
		detail := fmt.Sprintf("upstream responded %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
		// Only error statuses are relayed; a 3xx left over after redirects
		// would be an unusable status for a JSON error body.
		if resp.StatusCode < 400 {
			return nil, model.NewFailure(http.StatusBadGateway, MsgLogoFetchFailed, detail)
		}
		return nil, model.NewFailure(resp.StatusCode, fmt.Sprintf(msgLogoNotAvailableAs, req.Symbol), detail)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes+1))
	if err != nil {
		return nil, unreachable(err)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, model.NewFailure(http.StatusBadGateway, MsgLogoFetchFailed,
			fmt.Sprintf("logo exceeds %d bytes", s.maxBytes))
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = s.defaultContentType
	}

	return &model.Logo{
		ContentType: contentType,
		ETag:        etag(data),
		Data:        data,
	}, nil
}

// buildURL fills the provider template and appends the API key.
func (s *LogoService) buildURL(req model.SymbolRequest, token string) (string, error) {
	raw := strings.NewReplacer(
		"{symbol}", url.PathEscape(req.Symbol),
		"{exchange}", url.PathEscape(req.Exchange),
	).Replace(s.template)

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse logo url: %w", err)
	}
	q := u.Query()
	q.Set(s.tokenParam, token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (s *LogoService) observeCache(result string) {
	if s.metrics != nil {
		s.metrics.LogoCacheResults.WithLabelValues(result).Inc()
	}
}

// unreachable builds a 502 whose detail omits the request URL, which carries
// the API key.
func unreachable(err error) *model.Failure {
	detail := err.Error()
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		detail = urlErr.Err.Error()
	}
	return &model.Failure{
		Status:  http.StatusBadGateway,
		Message: MsgLogoFetchFailed,
		Detail:  detail,
		Cause:   err,
	}
}

func etag(data []byte) string {
	sum := blake3.Sum256(data)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}
