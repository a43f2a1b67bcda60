package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-featurehooks/core"
)

const defaultSenderClientTimeout = 30 * time.Second
const defaultResponseBodyLimit int64 = 64 << 10

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPSender delivers webhook payloads. Only the status code of the response
// is interpreted; the body is read up to MaxResponseBodyBytes and the rest is
// discarded so connections can be reused.
type HTTPSender struct {
	Client               HTTPDoer
	DefaultHeaders       map[string]string
	MaxResponseBodyBytes int64
}

func NewHTTPSender(client HTTPDoer) *HTTPSender {
	if client == nil {
		client = &http.Client{Timeout: defaultSenderClientTimeout}
	}
	return &HTTPSender{
		Client:               client,
		DefaultHeaders:       map[string]string{"User-Agent": "featurehooks/1"},
		MaxResponseBodyBytes: defaultResponseBodyLimit,
	}
}

func (s *HTTPSender) Send(ctx context.Context, req core.OutboundRequest) (core.OutboundResponse, error) {
	if s == nil || s.Client == nil {
		return core.OutboundResponse{}, outboundError(stageUnconfigured, nil, "transport: http sender requires an http client", nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	method := strings.TrimSpace(strings.ToUpper(req.Method))
	if method == "" {
		method = http.MethodPost
	}
	parsedURL, err := url.Parse(strings.TrimSpace(req.URL))
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return core.OutboundResponse{}, outboundError(stageInvalidURL, err, "transport: invalid webhook url", map[string]any{
			"url": redactURL(req.URL),
		})
	}

	requestCtx := ctx
	cancel := func() {}
	if req.Timeout > 0 {
		requestCtx, cancel = context.WithTimeout(ctx, req.Timeout)
	}
	defer cancel()

	httpReq, err := http.NewRequestWithContext(requestCtx, method, parsedURL.String(), bytes.NewReader(req.Body))
	if err != nil {
		return core.OutboundResponse{}, outboundError(stageBuildRequest, err, "transport: create http request", map[string]any{
			"method": method,
			"url":    redactURL(parsedURL.String()),
		})
	}
	for key, value := range s.DefaultHeaders {
		if strings.TrimSpace(key) == "" {
			continue
		}
		httpReq.Header.Set(strings.TrimSpace(key), strings.TrimSpace(value))
	}
	for key, value := range req.Headers {
		if strings.TrimSpace(key) == "" {
			continue
		}
		httpReq.Header.Set(strings.TrimSpace(key), strings.TrimSpace(value))
	}

	startedAt := time.Now()
	httpRes, err := s.Client.Do(httpReq)
	if err != nil {
		return core.OutboundResponse{}, outboundError(stageExecute, err, "transport: execute http request", map[string]any{
			"method": method,
			"url":    redactURL(parsedURL.String()),
		})
	}
	defer httpRes.Body.Close()

	limit := s.MaxResponseBodyBytes
	if limit <= 0 {
		limit = defaultResponseBodyLimit
	}
	body, _ := io.ReadAll(io.LimitReader(httpRes.Body, limit))
	_, _ = io.Copy(io.Discard, io.LimitReader(httpRes.Body, 4*limit))

	return core.OutboundResponse{
		StatusCode: httpRes.StatusCode,
		Headers:    flattenHeaders(httpRes.Header),
		Body:       body,
		Duration:   time.Since(startedAt),
	}, nil
}

func flattenHeaders(headers http.Header) map[string]string {
	if len(headers) == 0 {
		return map[string]string{}
	}
	flat := make(map[string]string, len(headers))
	for key, values := range headers {
		if len(values) == 0 {
			flat[key] = ""
			continue
		}
		flat[key] = strings.Join(values, ",")
	}
	return flat
}

var _ core.DeliverySender = (*HTTPSender)(nil)
