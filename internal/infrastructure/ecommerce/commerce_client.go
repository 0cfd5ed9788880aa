package ecommerce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/erp/kksync/internal/domain/integration"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// maxResponseSize is the maximum allowed response size from the commerce API (10MB)
const maxResponseSize = 10 * 1024 * 1024

const tracerName = "github.com/erp/kksync/internal/infrastructure/ecommerce"

// CommerceClient implements integration.CommerceClient over the commerce
// REST API with OAuth 1.0a request signing
type CommerceClient struct {
	config     *CommerceConfig
	httpClient *http.Client
	signer     *oauth1Signer
	limiter    *rate.Limiter
	logger     *zap.Logger
	tracer     trace.Tracer
}

// CommerceOption configures a CommerceClient
type CommerceOption func(*CommerceClient)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(c *http.Client) CommerceOption {
	return func(cc *CommerceClient) {
		cc.httpClient = c
	}
}

// WithLogger sets the client logger
func WithLogger(l *zap.Logger) CommerceOption {
	return func(cc *CommerceClient) {
		cc.logger = l
	}
}

// NewCommerceClient creates a new commerce REST client
func NewCommerceClient(config *CommerceConfig, opts ...CommerceOption) (*CommerceClient, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	limit := rate.Inf
	if config.RateLimit > 0 {
		limit = rate.Limit(config.RateLimit)
	}

	c := &CommerceClient{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		signer:     newOAuth1Signer(config),
		limiter:    rate.NewLimiter(limit, config.RateBurst),
		logger:     zap.NewNop(),
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Get fetches a resource. query may be nil.
func (c *CommerceClient) Get(ctx context.Context, resource string, query url.Values, out any) error {
	return c.doRequest(ctx, http.MethodGet, resource, query, nil, out)
}

// Post sends payload as JSON
func (c *CommerceClient) Post(ctx context.Context, resource string, payload any, out any) error {
	return c.doRequest(ctx, http.MethodPost, resource, nil, payload, out)
}

// Put sends payload as JSON
func (c *CommerceClient) Put(ctx context.Context, resource string, payload any, out any) error {
	return c.doRequest(ctx, http.MethodPut, resource, nil, payload, out)
}

// Delete removes a resource
func (c *CommerceClient) Delete(ctx context.Context, resource string, out any) error {
	return c.doRequest(ctx, http.MethodDelete, resource, nil, nil, out)
}

// doRequest performs a signed request. 4xx and 5xx responses are returned
// as *integration.HTTPError; transport failures wrap ErrPlatformUnavailable.
func (c *CommerceClient) doRequest(ctx context.Context, method, resource string, query url.Values, payload, out any) error {
	resource = strings.TrimPrefix(resource, "/")

	ctx, span := c.tracer.Start(ctx, "commerce "+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("commerce.resource", resource),
		),
	)
	defer span.End()

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limiter: %v", integration.ErrPlatformUnavailable, err)
	}

	u, err := url.Parse(c.config.RestRoot() + resource)
	if err != nil {
		return fmt.Errorf("commerce: invalid resource %q: %w", resource, err)
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("commerce: failed to encode payload: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("commerce: failed to create request: %w", err)
	}
	req.Header.Set("Authorization", c.signer.Authorization(method, u))
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("commerce request", zap.String("method", method), zap.String("resource", resource))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport error")
		return fmt.Errorf("%w: %v", integration.ErrPlatformUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %v", integration.ErrPlatformUnavailable, err)
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode >= http.StatusBadRequest {
		httpErr := &integration.HTTPError{
			StatusCode: resp.StatusCode,
			Method:     method,
			Resource:   resource,
			Body:       decodeBody(respBody),
		}
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
		c.logger.Warn("commerce request rejected",
			zap.String("method", method),
			zap.String("resource", resource),
			zap.Int("status", resp.StatusCode),
			zap.String("body", httpErr.BodyString()),
		)
		return httpErr
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: failed to parse response: %v", integration.ErrPlatformInvalidResponse, err)
	}
	return nil
}

// decodeBody returns the JSON value of body, or the trimmed text when it
// is not JSON
func decodeBody(body []byte) any {
	var v any
	if err := json.Unmarshal(body, &v); err == nil {
		return v
	}
	return strings.TrimSpace(string(body))
}

var _ integration.CommerceClient = (*CommerceClient)(nil)
