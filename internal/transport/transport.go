// Package transport is the network capability the source core fetches
// through: TileJSON documents and tile images alike.
package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jaennil/guide_helper/backend/rastersource/pkg/config"
	"github.com/jaennil/guide_helper/backend/rastersource/pkg/logger"
	"github.com/jaennil/guide_helper/backend/rastersource/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// maxBodySize caps a single payload; raster tiles and TileJSON documents are
// far smaller.
const maxBodySize = 32 << 20

type Response struct {
	Status      int
	Body        []byte
	ContentType string
	Directives  CacheDirectives
}

// Success reports a 2xx status.
func (r *Response) Success() bool {
	return r.Status >= 200 && r.Status < 300
}

// Transport fetches url. Cancelling ctx must abort the request; deadlines
// come only from ctx. Non-2xx statuses are returned as a Response, not an
// error.
type Transport interface {
	Fetch(ctx context.Context, url string, headers http.Header) (*Response, error)
}

type HTTPTransport struct {
	httpClient *http.Client
	userAgent  string
	logger     logger.Logger
}

var _ Transport = (*HTTPTransport)(nil)

func NewHTTPTransport(cfg config.Transport, l logger.Logger) *HTTPTransport {
	return &HTTPTransport{
		httpClient: &http.Client{},
		userAgent:  cfg.UserAgent,
		logger:     l,
	}
}

func (t *HTTPTransport) Fetch(ctx context.Context, url string, headers http.Header) (*Response, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "transport.fetch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("url.full", url)),
	)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("User-Agent") == "" && t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}

	start := time.Now()
	resp, err := t.httpClient.Do(req)
	if err != nil {
		t.logger.Debug("fetch failed", "url", url, "duration", time.Since(start), "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	span.SetAttributes(
		attribute.Int("http.response.status_code", resp.StatusCode),
		attribute.Int("http.response.size", len(body)),
	)

	t.logger.Debug("fetched",
		"url", url,
		"status", resp.StatusCode,
		"size", len(body),
		"duration", time.Since(start),
	)

	return &Response{
		Status:      resp.StatusCode,
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
		Directives:  ParseCacheDirectives(resp.Header),
	}, nil
}
